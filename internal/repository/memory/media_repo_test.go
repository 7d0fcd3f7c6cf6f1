package memory

import (
	"context"
	"testing"

	"physiocore/clinic-media/internal/domain"
	"physiocore/clinic-media/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func seed(t *testing.T, repo *MediaRepository, m domain.MediaUpload) primitive.ObjectID {
	t.Helper()
	id, err := repo.Create(context.Background(), &m)
	require.NoError(t, err)
	return id
}

func TestCreateAndGetByID(t *testing.T) {
	repo := NewMediaRepository()
	ctx := context.Background()

	id := seed(t, repo, domain.MediaUpload{
		OriginalFilename: "knee-raise.mp4",
		MimeType:         "video/mp4",
		Size:             2048,
		Metadata:         map[string]any{"codec": "h264"},
	})

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "knee-raise.mp4", got.OriginalFilename)
	assert.Equal(t, domain.StatusPending, got.Status, "empty status defaults to pending")
	assert.False(t, got.CreatedAt.IsZero())
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)

	// The returned record is a copy; mutating it must not leak into the store.
	got.Metadata["codec"] = "vp9"
	again, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "h264", again.Metadata["codec"])
}

func TestCreate_NegativeSizeRejected(t *testing.T) {
	repo := NewMediaRepository()
	_, err := repo.Create(context.Background(), &domain.MediaUpload{OriginalFilename: "x.mp4", Size: -1})
	require.Error(t, err)
}

func TestGetByID_Unknown(t *testing.T) {
	repo := NewMediaRepository()
	_, err := repo.GetByID(context.Background(), primitive.NewObjectID())
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUpdate_AppliesOnlySetFields(t *testing.T) {
	repo := NewMediaRepository()
	ctx := context.Background()
	id := seed(t, repo, domain.MediaUpload{OriginalFilename: "a.mp4", MimeType: "video/mp4", Size: 10})

	path := "videos/a.mp4"
	status := domain.StatusCompleted
	updated, err := repo.Update(ctx, id, repository.UpdateFields{
		Path:   &path,
		Status: &status,
	})
	require.NoError(t, err)
	assert.Equal(t, "videos/a.mp4", updated.Path)
	assert.Equal(t, domain.StatusCompleted, updated.Status)
	assert.Equal(t, "a.mp4", updated.OriginalFilename, "unset fields untouched")
	assert.EqualValues(t, 10, updated.Size)
}

func TestUpdate_MergesMetadata(t *testing.T) {
	repo := NewMediaRepository()
	ctx := context.Background()
	id := seed(t, repo, domain.MediaUpload{
		OriginalFilename: "a.mp4",
		Metadata:         map[string]any{"codec": "h264", "duration": 12},
	})

	updated, err := repo.Update(ctx, id, repository.UpdateFields{
		Metadata: map[string]any{"codec": "vp9"},
	})
	require.NoError(t, err)
	assert.Equal(t, "vp9", updated.Metadata["codec"])
	assert.Equal(t, 12, updated.Metadata["duration"])
}

func TestUpdate_NegativeSizeRejected(t *testing.T) {
	repo := NewMediaRepository()
	ctx := context.Background()
	id := seed(t, repo, domain.MediaUpload{OriginalFilename: "a.mp4", Size: 10})

	bad := int64(-5)
	_, err := repo.Update(ctx, id, repository.UpdateFields{Size: &bad})
	require.Error(t, err)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 10, got.Size)
}

func TestSoftDeleteLifecycle(t *testing.T) {
	repo := NewMediaRepository()
	ctx := context.Background()
	id := seed(t, repo, domain.MediaUpload{OriginalFilename: "a.mp4", Size: 100})

	require.NoError(t, repo.Delete(ctx, id))

	// Soft-deleted records are invisible to reads and counts.
	_, err := repo.GetByID(ctx, id)
	require.ErrorIs(t, err, repository.ErrNotFound)
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// Deleting twice is not-found, same as a missing record.
	require.ErrorIs(t, repo.Delete(ctx, id), repository.ErrNotFound)

	// Restore brings it back.
	require.NoError(t, repo.Restore(ctx, id))
	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, got.Deleted)
	assert.Nil(t, got.DeletedAt)
}

func TestForceDelete_RequiresPriorSoftDelete(t *testing.T) {
	repo := NewMediaRepository()
	ctx := context.Background()
	id := seed(t, repo, domain.MediaUpload{OriginalFilename: "a.mp4"})

	require.ErrorIs(t, repo.ForceDelete(ctx, id), repository.ErrNotDeleted)

	require.NoError(t, repo.Delete(ctx, id))
	require.NoError(t, repo.ForceDelete(ctx, id))

	// Gone for good now.
	require.ErrorIs(t, repo.Restore(ctx, id), repository.ErrNotFound)
	require.ErrorIs(t, repo.ForceDelete(ctx, id), repository.ErrNotFound)
}

func TestRestore_NotDeletedIsNotFound(t *testing.T) {
	repo := NewMediaRepository()
	ctx := context.Background()
	id := seed(t, repo, domain.MediaUpload{OriginalFilename: "a.mp4"})

	require.ErrorIs(t, repo.Restore(ctx, id), repository.ErrNotFound)
}

func TestListFiltered(t *testing.T) {
	repo := NewMediaRepository()
	ctx := context.Background()

	seed(t, repo, domain.MediaUpload{OriginalFilename: "Shoulder Stretch.mp4", Status: domain.StatusCompleted, Size: 10})
	seed(t, repo, domain.MediaUpload{OriginalFilename: "knee-raise.mp4", Status: domain.StatusCompleted, Size: 20})
	failedID := seed(t, repo, domain.MediaUpload{OriginalFilename: "hip-hinge.mp4", Status: domain.StatusFailed, Size: 30})
	deletedID := seed(t, repo, domain.MediaUpload{OriginalFilename: "knee-bend.mp4", Status: domain.StatusCompleted, Size: 40})
	require.NoError(t, repo.Delete(ctx, deletedID))

	// Status filter.
	page, err := repo.ListFiltered(ctx, repository.Filter{Status: domain.StatusFailed})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, failedID, page.Items[0].ID)

	// Search is case-insensitive on the original filename; the soft-deleted
	// knee-bend record stays hidden.
	page, err = repo.ListFiltered(ctx, repository.Filter{Search: "KNEE"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "knee-raise.mp4", page.Items[0].OriginalFilename)
	assert.EqualValues(t, 1, page.Total)
}

func TestList_PaginationAndOrdering(t *testing.T) {
	repo := NewMediaRepository()
	ctx := context.Background()

	first := seed(t, repo, domain.MediaUpload{OriginalFilename: "one.mp4"})
	second := seed(t, repo, domain.MediaUpload{OriginalFilename: "two.mp4"})
	third := seed(t, repo, domain.MediaUpload{OriginalFilename: "three.mp4"})

	page, err := repo.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	// Newest first.
	assert.Equal(t, third, page.Items[0].ID)
	assert.Equal(t, second, page.Items[1].ID)

	page, err = repo.List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, first, page.Items[0].ID)

	// Past the last page comes back empty, not an error.
	page, err = repo.List(ctx, 5, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestAggregates(t *testing.T) {
	repo := NewMediaRepository()
	ctx := context.Background()

	seed(t, repo, domain.MediaUpload{OriginalFilename: "a.mp4", Size: 100, Status: domain.StatusCompleted})
	seed(t, repo, domain.MediaUpload{OriginalFilename: "b.mp4", Size: 250, Status: domain.StatusProcessing})
	deletedID := seed(t, repo, domain.MediaUpload{OriginalFilename: "c.mp4", Size: 999, Status: domain.StatusCompleted})
	require.NoError(t, repo.Delete(ctx, deletedID))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	total, err := repo.TotalSize(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 350, total)

	recent, err := repo.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "b.mp4", recent[0].OriginalFilename)

	processing, err := repo.ByStatus(ctx, domain.StatusProcessing)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, "b.mp4", processing[0].OriginalFilename)
}

func TestContextCancellation(t *testing.T) {
	repo := NewMediaRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.Create(ctx, &domain.MediaUpload{OriginalFilename: "a.mp4"})
	require.ErrorIs(t, err, context.Canceled)
	_, err = repo.List(ctx, 1, 10)
	require.ErrorIs(t, err, context.Canceled)
}
