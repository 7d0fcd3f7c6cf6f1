package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"physiocore/clinic-media/internal/domain"
	"physiocore/clinic-media/internal/repository"
	"physiocore/clinic-media/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// metadata key holding the storage path reserved at request time. The
// record's Path field stays empty until the upload is confirmed — a pending
// record must never look completed.
const pendingPathKey = "pending_path"

// PresignResult is the request-phase response: everything the client needs
// to PUT the file straight to object storage.
type PresignResult struct {
	VideoID   primitive.ObjectID
	UploadURL string
	Path      string
	ExpiresAt time.Time
	Record    *domain.MediaUpload
}

// PresignService drives the two-phase direct-to-storage upload protocol:
// the server hands out a short-lived write URL, the client transfers the
// bytes out-of-band, then confirms completion. The server never touches the
// file content.
type PresignService interface {
	Request(ctx context.Context, filename, mimeType string, size int64, owner *domain.OwnerRef) (*PresignResult, error)
	Confirm(ctx context.Context, id primitive.ObjectID, size *int64, mimeType *string) (*domain.MediaUpload, error)
}

type presignService struct {
	mediaRepo repository.MediaRepository
	store     storage.ObjectStorage
	cdn       *storage.CDNResolver
	directory string
	ttl       time.Duration

	now   func() time.Time
	newID func() string
}

// NewPresignService creates the presigned-upload flow. directory is the
// storage prefix for client-direct uploads, ttl bounds the write grant.
func NewPresignService(
	mediaRepo repository.MediaRepository,
	store storage.ObjectStorage,
	cdn *storage.CDNResolver,
	directory string,
	ttl time.Duration,
) PresignService {
	if ttl <= 0 {
		ttl = storage.DefaultPresignExpiry
	}
	return &presignService{
		mediaRepo: mediaRepo,
		store:     store,
		cdn:       cdn,
		directory: directory,
		ttl:       ttl,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Request creates a pending record, reserves a storage path for it, and
// returns a presigned write URL. No bytes move through this server.
func (s *presignService) Request(ctx context.Context, filename, mimeType string, size int64, owner *domain.OwnerRef) (*PresignResult, error) {
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", ErrValidationFailed)
	}
	if size < 0 {
		return nil, fmt.Errorf("%w: size cannot be negative", ErrValidationFailed)
	}

	storageName := fmt.Sprintf("%s_%d%s", s.newID(), s.now().Unix(), pathExt(filename))
	key := path.Join(s.directory, storageName)

	record := &domain.MediaUpload{
		OriginalFilename: filename,
		MimeType:         mimeType,
		Size:             size,
		Status:           domain.StatusPending,
		Owner:            owner,
		Metadata:         map[string]any{pendingPathKey: key},
	}
	id, err := s.mediaRepo.Create(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to create media record: %w", err)
	}

	presigned, err := s.store.PresignUpload(ctx, key, mimeType, s.ttl)
	if err != nil {
		// The record stays pending; the client can simply request again.
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	created, err := s.mediaRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return &PresignResult{
		VideoID:   id,
		UploadURL: presigned.UploadURL,
		Path:      key,
		ExpiresAt: presigned.ExpiresAt,
		Record:    created,
	}, nil
}

// Confirm marks a client-direct upload as completed, deriving the public
// URLs from the path reserved at request time. Confirming an
// already-completed record is a no-op returning the record as-is, so client
// retries of the confirm call are harmless.
func (s *presignService) Confirm(ctx context.Context, id primitive.ObjectID, size *int64, mimeType *string) (*domain.MediaUpload, error) {
	record, err := s.mediaRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMediaNotFound
		}
		return nil, err
	}

	if record.Status == domain.StatusCompleted {
		return record, nil
	}
	if err := domain.ValidateTransition(record.Status, domain.StatusCompleted); err != nil {
		return nil, err
	}

	key, _ := record.Metadata[pendingPathKey].(string)
	if key == "" {
		return nil, fmt.Errorf("%w: record %s has no reserved upload path", ErrValidationFailed, id.Hex())
	}

	fields := repository.UpdateFields{
		Status:   statusPtr(domain.StatusCompleted),
		Filename: strPtr(path.Base(key)),
		Path:     &key,
		URL:      strPtr(s.store.URL(key)),
		CDNURL:   strPtr(s.cdn.CDNURL(key)),
	}
	// The client may report corrected values after client-side compression.
	if size != nil {
		if *size < 0 {
			return nil, fmt.Errorf("%w: size cannot be negative", ErrValidationFailed)
		}
		fields.Size = size
	}
	if mimeType != nil && *mimeType != "" {
		fields.MimeType = mimeType
	}

	confirmed, err := s.mediaRepo.Update(ctx, id, fields)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMediaNotFound
		}
		return nil, err
	}
	return confirmed, nil
}

// pathExt returns the extension of a client-supplied filename, including
// the dot, or "" when there is none.
func pathExt(filename string) string {
	ext := path.Ext(filename)
	if ext == "." {
		return ""
	}
	return ext
}
