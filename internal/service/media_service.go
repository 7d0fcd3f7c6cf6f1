package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"path/filepath"
	"time"

	"physiocore/clinic-media/internal/domain"
	"physiocore/clinic-media/internal/events"
	"physiocore/clinic-media/internal/repository"
	"physiocore/clinic-media/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// --- Error Definitions ---
var (
	ErrMediaNotFound    = errors.New("media record not found")
	ErrUploadFailed     = errors.New("upload failed")
	ErrValidationFailed = errors.New("media validation failed")
)

// UploadedFile carries one incoming file through the pipeline. Size must be
// the exact byte count of Content.
type UploadedFile struct {
	Content          io.Reader
	OriginalFilename string
	MimeType         string
	Size             int64
}

// BatchError pairs a failed file with the reason it was rejected.
type BatchError struct {
	OriginalFilename string
	Err              error
}

// BatchResult reports a multi-file upload: successes and failures are
// collected independently, one file's failure never aborts the rest.
type BatchResult struct {
	Uploaded []*domain.MediaUpload
	Errors   []BatchError
}

// Stats aggregates the record store for the admin dashboard.
type Stats struct {
	Count     int64
	TotalSize int64
	Recent    []domain.MediaUpload
}

// --- Service Interface ---

// MediaService is the synchronous upload orchestrator plus the CRUD facade
// over the record store.
type MediaService interface {
	UploadOne(ctx context.Context, file UploadedFile, directory string, owner *domain.OwnerRef) (*domain.MediaUpload, error)
	UploadMany(ctx context.Context, files []UploadedFile, directory string) *BatchResult
	Get(ctx context.Context, id primitive.ObjectID) (*domain.MediaUpload, error)
	List(ctx context.Context, f repository.Filter) (*repository.Page, error)
	Delete(ctx context.Context, id primitive.ObjectID, force bool) error
	Restore(ctx context.Context, id primitive.ObjectID) error
	UpdateMetadata(ctx context.Context, id primitive.ObjectID, partial map[string]any) (*domain.MediaUpload, error)
	Stats(ctx context.Context) (*Stats, error)
}

// --- Service Implementation ---

type mediaService struct {
	mediaRepo repository.MediaRepository
	store     storage.ObjectStorage
	cdn       *storage.CDNResolver
	publisher events.Publisher // nil disables event publishing

	// Injectable for deterministic tests.
	now   func() time.Time
	newID func() string
}

// NewMediaService creates the synchronous upload orchestrator. publisher may
// be nil when the deployment has no event bus.
func NewMediaService(
	mediaRepo repository.MediaRepository,
	store storage.ObjectStorage,
	cdn *storage.CDNResolver,
	publisher events.Publisher,
) MediaService {
	return &mediaService{
		mediaRepo: mediaRepo,
		store:     store,
		cdn:       cdn,
		publisher: publisher,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// storageFilename builds a collision-resistant storage name distinct from
// the client-supplied one: random token + timestamp + original extension.
func (s *mediaService) storageFilename(originalFilename string) string {
	return fmt.Sprintf("%s_%d%s", s.newID(), s.now().Unix(), filepath.Ext(originalFilename))
}

// publishStatus emits a lifecycle event. Publish failures are logged and
// swallowed: the record store is the source of truth, the bus is advisory.
func (s *mediaService) publishStatus(ctx context.Context, m *domain.MediaUpload, from domain.Status) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishStatusChanged(ctx, events.StatusChanged{
		MediaID:    m.ID.Hex(),
		From:       from,
		To:         m.Status,
		Path:       m.Path,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		log.Printf("ERROR: Failed to publish status event for media %s: %v", m.ID.Hex(), err)
	}
}

// UploadOne transfers one file to object storage synchronously, driving its
// record from processing to exactly one of completed or failed before
// returning. On failure the record is retained with the error in metadata —
// the record, not the returned error, is the durable trace.
func (s *mediaService) UploadOne(ctx context.Context, file UploadedFile, directory string, owner *domain.OwnerRef) (*domain.MediaUpload, error) {
	if file.OriginalFilename == "" {
		return nil, fmt.Errorf("%w: original filename is required", ErrValidationFailed)
	}
	if file.Size < 0 {
		return nil, fmt.Errorf("%w: size cannot be negative", ErrValidationFailed)
	}

	record := &domain.MediaUpload{
		OriginalFilename: file.OriginalFilename,
		MimeType:         file.MimeType,
		Size:             file.Size,
		Status:           domain.StatusProcessing,
		Owner:            owner,
	}
	id, err := s.mediaRepo.Create(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to create media record: %w", err)
	}

	filename := s.storageFilename(file.OriginalFilename)
	key := path.Join(directory, filename)

	if err := s.store.Put(ctx, key, file.Content, file.Size, file.MimeType); err != nil {
		failed, markErr := s.mediaRepo.Update(ctx, id, repository.UpdateFields{
			Status:   statusPtr(domain.StatusFailed),
			Metadata: map[string]any{"error": err.Error()},
		})
		if markErr != nil {
			log.Printf("ERROR: Failed to mark media %s as failed: %v", id.Hex(), markErr)
		} else {
			s.publishStatus(ctx, failed, domain.StatusProcessing)
		}
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	completed, err := s.mediaRepo.Update(ctx, id, repository.UpdateFields{
		Status:   statusPtr(domain.StatusCompleted),
		Filename: &filename,
		Path:     &key,
		URL:      strPtr(s.store.URL(key)),
		CDNURL:   strPtr(s.cdn.CDNURL(key)),
		Metadata: map[string]any{
			"original_name": file.OriginalFilename,
			"mime_type":     file.MimeType,
			"size":          file.Size,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to finalize media record: %w", err)
	}

	s.publishStatus(ctx, completed, domain.StatusProcessing)
	return completed, nil
}

// UploadMany applies UploadOne independently per file and reports partial
// success rather than failing the batch.
func (s *mediaService) UploadMany(ctx context.Context, files []UploadedFile, directory string) *BatchResult {
	result := &BatchResult{}
	for _, file := range files {
		record, err := s.UploadOne(ctx, file, directory, nil)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{
				OriginalFilename: file.OriginalFilename,
				Err:              err,
			})
			continue
		}
		result.Uploaded = append(result.Uploaded, record)
	}
	return result
}

func (s *mediaService) Get(ctx context.Context, id primitive.ObjectID) (*domain.MediaUpload, error) {
	record, err := s.mediaRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMediaNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *mediaService) List(ctx context.Context, f repository.Filter) (*repository.Page, error) {
	return s.mediaRepo.ListFiltered(ctx, f)
}

// Delete removes the stored object (and thumbnail, when present) and then
// soft- or force-deletes the record per the flag. Objects already gone from
// storage are tolerated, not errors.
func (s *mediaService) Delete(ctx context.Context, id primitive.ObjectID, force bool) error {
	record, err := s.mediaRepo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if !force {
			return ErrMediaNotFound
		}
		// The record may exist soft-deleted, which GetByID hides. Its
		// storage objects were already removed when it was soft-deleted,
		// so only the purge remains; ForceDelete tells us whether the
		// record was ever there.
		if err := s.mediaRepo.ForceDelete(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrMediaNotFound
			}
			return err
		}
		return nil
	}

	if record.Path != "" {
		if _, err := s.store.Delete(ctx, record.Path); err != nil {
			return fmt.Errorf("failed to delete storage object %q: %w", record.Path, err)
		}
	}
	if record.ThumbnailPath != "" {
		if _, err := s.store.Delete(ctx, record.ThumbnailPath); err != nil {
			return fmt.Errorf("failed to delete thumbnail object %q: %w", record.ThumbnailPath, err)
		}
	}

	if err := s.mediaRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMediaNotFound
		}
		return err
	}
	if force {
		return s.mediaRepo.ForceDelete(ctx, id)
	}
	return nil
}

func (s *mediaService) Restore(ctx context.Context, id primitive.ObjectID) error {
	if err := s.mediaRepo.Restore(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMediaNotFound
		}
		return err
	}
	return nil
}

// UpdateMetadata shallow-merges partial into the record's metadata: new keys
// win, existing keys not present in partial survive.
func (s *mediaService) UpdateMetadata(ctx context.Context, id primitive.ObjectID, partial map[string]any) (*domain.MediaUpload, error) {
	if len(partial) == 0 {
		return nil, fmt.Errorf("%w: metadata payload is empty", ErrValidationFailed)
	}

	record, err := s.mediaRepo.Update(ctx, id, repository.UpdateFields{Metadata: partial})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrMediaNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *mediaService) Stats(ctx context.Context) (*Stats, error) {
	count, err := s.mediaRepo.Count(ctx)
	if err != nil {
		return nil, err
	}
	totalSize, err := s.mediaRepo.TotalSize(ctx)
	if err != nil {
		return nil, err
	}
	recent, err := s.mediaRepo.Recent(ctx, 5)
	if err != nil {
		return nil, err
	}
	return &Stats{Count: count, TotalSize: totalSize, Recent: recent}, nil
}

// --- small pointer helpers for UpdateFields ---

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

func statusPtr(st domain.Status) *domain.Status { return &st }
