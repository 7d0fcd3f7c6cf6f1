package repository

import (
	"context"

	"physiocore/clinic-media/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for repository layer
var (
	ErrNotFound     = RepositoryError("not found")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDeleteFailed = RepositoryError("delete failed")
	ErrNotDeleted   = RepositoryError("record is not soft-deleted")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UpdateFields is a partial update of a MediaUpload. Nil pointers leave the
// stored value untouched. Metadata is shallow-merged into the existing map,
// never replaced.
type UpdateFields struct {
	Filename      *string
	Path          *string
	URL           *string
	CDNURL        *string
	MimeType      *string
	Size          *int64
	Status        *domain.Status
	ThumbnailPath *string
	ThumbnailURL  *string
	Metadata      map[string]any
}

// Filter narrows a paginated listing. Zero values mean "no constraint".
type Filter struct {
	Status   domain.Status // exact match
	Search   string        // substring match against originalFilename
	Page     int
	PageSize int
}

// Page is one page of a listing plus the total match count.
type Page struct {
	Items    []domain.MediaUpload
	Page     int
	PageSize int
	Total    int64
}

// MediaRepository defines persistence for media upload records. It holds no
// business logic: every status transition is decided by the services, the
// repository only reads and writes what it is told.
//
// Soft-deleted records are excluded from all reads except Restore and
// ForceDelete; ForceDelete requires a prior soft delete.
type MediaRepository interface {
	Create(ctx context.Context, m *domain.MediaUpload) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.MediaUpload, error)
	Update(ctx context.Context, id primitive.ObjectID, fields UpdateFields) (*domain.MediaUpload, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	ForceDelete(ctx context.Context, id primitive.ObjectID) error
	Restore(ctx context.Context, id primitive.ObjectID) error

	List(ctx context.Context, page, pageSize int) (*Page, error)
	ListFiltered(ctx context.Context, f Filter) (*Page, error)

	Count(ctx context.Context) (int64, error)
	TotalSize(ctx context.Context) (int64, error)
	Recent(ctx context.Context, limit int) ([]domain.MediaUpload, error)
	ByStatus(ctx context.Context, status domain.Status) ([]domain.MediaUpload, error)
}
