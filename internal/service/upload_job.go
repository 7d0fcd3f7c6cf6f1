package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path"
	"time"

	"physiocore/clinic-media/internal/domain"
	"physiocore/clinic-media/internal/events"
	"physiocore/clinic-media/internal/queue"
	"physiocore/clinic-media/internal/repository"
	"physiocore/clinic-media/internal/staging"
	"physiocore/clinic-media/internal/storage"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AsyncUploader stages incoming files locally and hands the durable transfer
// to a background job. Dispatch returns as soon as the job is queued — the
// caller never waits for the transfer.
type AsyncUploader interface {
	Dispatch(ctx context.Context, file UploadedFile, directory string, owner *domain.OwnerRef) (*domain.MediaUpload, error)
}

type asyncUploader struct {
	mediaRepo repository.MediaRepository
	store     storage.ObjectStorage
	cdn       *storage.CDNResolver
	staging   *staging.Store
	jobs      queue.Queue
	publisher events.Publisher

	now   func() time.Time
	newID func() string
}

// NewAsyncUploader creates the queued upload path. publisher may be nil.
func NewAsyncUploader(
	mediaRepo repository.MediaRepository,
	store storage.ObjectStorage,
	cdn *storage.CDNResolver,
	stagingStore *staging.Store,
	jobs queue.Queue,
	publisher events.Publisher,
) AsyncUploader {
	return &asyncUploader{
		mediaRepo: mediaRepo,
		store:     store,
		cdn:       cdn,
		staging:   stagingStore,
		jobs:      jobs,
		publisher: publisher,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Dispatch stages the file to local scratch space, creates a pending record,
// and enqueues the transfer job. The returned record is still pending.
func (u *asyncUploader) Dispatch(ctx context.Context, file UploadedFile, directory string, owner *domain.OwnerRef) (*domain.MediaUpload, error) {
	if file.OriginalFilename == "" {
		return nil, fmt.Errorf("%w: original filename is required", ErrValidationFailed)
	}
	if file.Size < 0 {
		return nil, fmt.Errorf("%w: size cannot be negative", ErrValidationFailed)
	}

	stagedPath, err := u.staging.Save(file.Content, file.OriginalFilename)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	record := &domain.MediaUpload{
		OriginalFilename: file.OriginalFilename,
		MimeType:         file.MimeType,
		Size:             file.Size,
		Status:           domain.StatusPending,
		Owner:            owner,
		Metadata: map[string]any{
			"original_name": file.OriginalFilename,
			"mime_type":     file.MimeType,
			"size":          file.Size,
		},
	}
	id, err := u.mediaRepo.Create(ctx, record)
	if err != nil {
		_ = u.staging.Remove(stagedPath)
		return nil, fmt.Errorf("failed to create media record: %w", err)
	}

	// The storage key is fixed at dispatch time so every retry of the job
	// writes the same object — that is what makes re-entry safe.
	storageName := fmt.Sprintf("%s_%d%s", u.newID(), u.now().Unix(), pathExt(file.OriginalFilename))
	job := &UploadJob{
		RecordID:         id,
		StagedPath:       stagedPath,
		Directory:        directory,
		StorageKey:       path.Join(directory, storageName),
		OriginalFilename: file.OriginalFilename,
		MimeType:         file.MimeType,

		mediaRepo: u.mediaRepo,
		store:     u.store,
		cdn:       u.cdn,
		staging:   u.staging,
		publisher: u.publisher,
		now:       u.now,
	}

	if err := u.jobs.Enqueue(ctx, job); err != nil {
		_ = u.staging.Remove(stagedPath)
		if _, markErr := u.mediaRepo.Update(ctx, id, repository.UpdateFields{
			Status:   statusPtr(domain.StatusFailed),
			Metadata: map[string]any{"error": "failed to queue upload: " + err.Error()},
		}); markErr != nil {
			log.Printf("ERROR: Failed to mark media %s as failed after enqueue error: %v", id.Hex(), markErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	created, err := u.mediaRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UploadJob performs the durable transfer of one staged file. The queue may
// run it several times; each attempt re-marks the record processing and
// re-PUTs the same storage key, so redelivery is harmless. The staged file
// survives retryable failures and is removed only on terminal outcomes.
type UploadJob struct {
	RecordID         primitive.ObjectID
	StagedPath       string
	Directory        string
	StorageKey       string
	OriginalFilename string
	MimeType         string

	mediaRepo repository.MediaRepository
	store     storage.ObjectStorage
	cdn       *storage.CDNResolver
	staging   *staging.Store
	publisher events.Publisher
	now       func() time.Time
}

func (j *UploadJob) Name() string {
	return "media-upload:" + j.RecordID.Hex()
}

// Execute runs one transfer attempt. Transport errors are returned as-is so
// the pool's retry accounting sees them; conditions that cannot improve with
// a retry are wrapped with queue.Permanent.
func (j *UploadJob) Execute(ctx context.Context) error {
	record, err := j.mediaRepo.GetByID(ctx, j.RecordID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Record deleted while the job sat in the queue; retrying
			// cannot bring it back.
			return queue.Permanent(err)
		}
		return err
	}

	if record.Status == domain.StatusCompleted {
		// Redelivered after a completed attempt: only the cleanup is left.
		return j.staging.Remove(j.StagedPath)
	}

	from := record.Status
	marked, err := j.mediaRepo.Update(ctx, j.RecordID, repository.UpdateFields{
		Status: statusPtr(domain.StatusProcessing),
	})
	if err != nil {
		return err
	}
	if from != domain.StatusProcessing {
		j.publish(ctx, marked, from)
	}

	f, size, err := j.staging.Open(j.StagedPath)
	if err != nil {
		if errors.Is(err, staging.ErrStagedFileMissing) {
			return queue.Permanent(err)
		}
		return err
	}
	defer f.Close()

	if err := j.store.Put(ctx, j.StorageKey, f, size, j.MimeType); err != nil {
		// Retryable: the staged file stays in place for the next attempt.
		return err
	}

	filename := path.Base(j.StorageKey)
	completed, err := j.mediaRepo.Update(ctx, j.RecordID, repository.UpdateFields{
		Status:   statusPtr(domain.StatusCompleted),
		Filename: &filename,
		Path:     &j.StorageKey,
		URL:      strPtr(j.store.URL(j.StorageKey)),
		CDNURL:   strPtr(j.cdn.CDNURL(j.StorageKey)),
		Size:     int64Ptr(size),
		Metadata: map[string]any{
			"original_name": j.OriginalFilename,
			"mime_type":     j.MimeType,
			"size":          size,
		},
	})
	if err != nil {
		return err
	}

	if err := j.staging.Remove(j.StagedPath); err != nil {
		log.Printf("ERROR: Failed to remove staged file %s: %v", j.StagedPath, err)
	}

	j.publish(ctx, completed, domain.StatusProcessing)
	return nil
}

// Failed is the terminal failure hook: it runs once, after the pool has
// exhausted retries or hit a permanent error. Only here does the staged file
// get cleaned up on the failure path.
func (j *UploadJob) Failed(ctx context.Context, cause error) {
	failed, err := j.mediaRepo.Update(ctx, j.RecordID, repository.UpdateFields{
		Status:   statusPtr(domain.StatusFailed),
		Metadata: map[string]any{"error": cause.Error()},
	})
	if err != nil {
		log.Printf("ERROR: Failed to mark media %s as failed: %v", j.RecordID.Hex(), err)
	} else {
		j.publish(ctx, failed, domain.StatusProcessing)
	}

	if err := j.staging.Remove(j.StagedPath); err != nil {
		log.Printf("ERROR: Failed to remove staged file %s: %v", j.StagedPath, err)
	}
}

func (j *UploadJob) publish(ctx context.Context, m *domain.MediaUpload, from domain.Status) {
	if j.publisher == nil {
		return
	}
	err := j.publisher.PublishStatusChanged(ctx, events.StatusChanged{
		MediaID:    m.ID.Hex(),
		From:       from,
		To:         m.Status,
		Path:       m.Path,
		OccurredAt: j.now().UTC(),
	})
	if err != nil {
		log.Printf("ERROR: Failed to publish status event for media %s: %v", m.ID.Hex(), err)
	}
}
