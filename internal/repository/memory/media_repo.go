package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"physiocore/clinic-media/internal/domain"
	"physiocore/clinic-media/internal/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MediaRepository is an in-memory implementation of repository.MediaRepository.
// It backs the test suites and local development without a Mongo instance.
// All methods take defensive copies so callers cannot mutate stored records.
type MediaRepository struct {
	mu   sync.RWMutex
	data map[primitive.ObjectID]*domain.MediaUpload
}

// NewMediaRepository creates an empty in-memory media repository.
func NewMediaRepository() *MediaRepository {
	return &MediaRepository{
		data: make(map[primitive.ObjectID]*domain.MediaUpload),
	}
}

func copyRecord(m *domain.MediaUpload) *domain.MediaUpload {
	cp := *m
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	if m.Owner != nil {
		owner := *m.Owner
		cp.Owner = &owner
	}
	if m.DeletedAt != nil {
		t := *m.DeletedAt
		cp.DeletedAt = &t
	}
	return &cp
}

func (r *MediaRepository) Create(ctx context.Context, m *domain.MediaUpload) (primitive.ObjectID, error) {
	if err := ctx.Err(); err != nil {
		return primitive.NilObjectID, err
	}
	if m.Size < 0 {
		return primitive.NilObjectID, repository.RepositoryError("size cannot be negative")
	}
	if m.Status == "" {
		m.Status = domain.StatusPending
	}

	m.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now
	m.Deleted = false

	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[m.ID] = copyRecord(m)

	return m.ID, nil
}

func (r *MediaRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.MediaUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.data[id]
	if !ok || m.Deleted {
		return nil, repository.ErrNotFound
	}
	return copyRecord(m), nil
}

func (r *MediaRepository) Update(ctx context.Context, id primitive.ObjectID, fields repository.UpdateFields) (*domain.MediaUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.data[id]
	if !ok || m.Deleted {
		return nil, repository.ErrNotFound
	}

	if fields.Filename != nil {
		m.Filename = *fields.Filename
	}
	if fields.Path != nil {
		m.Path = *fields.Path
	}
	if fields.URL != nil {
		m.URL = *fields.URL
	}
	if fields.CDNURL != nil {
		m.CDNURL = *fields.CDNURL
	}
	if fields.MimeType != nil {
		m.MimeType = *fields.MimeType
	}
	if fields.Size != nil {
		if *fields.Size < 0 {
			return nil, repository.RepositoryError("size cannot be negative")
		}
		m.Size = *fields.Size
	}
	if fields.Status != nil {
		m.Status = *fields.Status
	}
	if fields.ThumbnailPath != nil {
		m.ThumbnailPath = *fields.ThumbnailPath
	}
	if fields.ThumbnailURL != nil {
		m.ThumbnailURL = *fields.ThumbnailURL
	}
	if fields.Metadata != nil {
		m.Metadata = domain.MergeMetadata(m.Metadata, fields.Metadata)
	}
	m.UpdatedAt = time.Now().UTC()

	return copyRecord(m), nil
}

func (r *MediaRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.data[id]
	if !ok || m.Deleted {
		return repository.ErrNotFound
	}

	now := time.Now().UTC()
	m.Deleted = true
	m.DeletedAt = &now
	m.UpdatedAt = now
	return nil
}

func (r *MediaRepository) ForceDelete(ctx context.Context, id primitive.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.data[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !m.Deleted {
		return repository.ErrNotDeleted
	}

	delete(r.data, id)
	return nil
}

func (r *MediaRepository) Restore(ctx context.Context, id primitive.ObjectID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.data[id]
	if !ok || !m.Deleted {
		return repository.ErrNotFound
	}

	m.Deleted = false
	m.DeletedAt = nil
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// live returns copies of all non-deleted records, newest first.
func (r *MediaRepository) live() []domain.MediaUpload {
	items := make([]domain.MediaUpload, 0, len(r.data))
	for _, m := range r.data {
		if !m.Deleted {
			items = append(items, *copyRecord(m))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID.Hex() > items[j].ID.Hex()
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items
}

func (r *MediaRepository) List(ctx context.Context, page, pageSize int) (*repository.Page, error) {
	return r.ListFiltered(ctx, repository.Filter{Page: page, PageSize: pageSize})
}

func (r *MediaRepository) ListFiltered(ctx context.Context, f repository.Filter) (*repository.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 15
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []domain.MediaUpload{}
	for _, m := range r.live() {
		if f.Status != "" && m.Status != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(m.OriginalFilename), strings.ToLower(f.Search)) {
			continue
		}
		matched = append(matched, m)
	}

	total := int64(len(matched))
	start := (f.Page - 1) * f.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + f.PageSize
	if end > len(matched) {
		end = len(matched)
	}

	return &repository.Page{
		Items:    matched[start:end],
		Page:     f.Page,
		PageSize: f.PageSize,
		Total:    total,
	}, nil
}

func (r *MediaRepository) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.live())), nil
}

func (r *MediaRepository) TotalSize(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var total int64
	for _, m := range r.live() {
		total += m.Size
	}
	return total, nil
}

func (r *MediaRepository) Recent(ctx context.Context, limit int) ([]domain.MediaUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 5
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	items := r.live()
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *MediaRepository) ByStatus(ctx context.Context, status domain.Status) ([]domain.MediaUpload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	items := []domain.MediaUpload{}
	for _, m := range r.live() {
		if m.Status == status {
			items = append(items, m)
		}
	}
	return items, nil
}
