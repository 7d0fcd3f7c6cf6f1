package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"physiocore/clinic-media/internal/domain"
	"physiocore/clinic-media/internal/repository"
	"physiocore/clinic-media/internal/repository/memory"
	"physiocore/clinic-media/internal/storage"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	fixedID   = "11111111-2222-3333-4444-555555555555"
	fixedUnix = 1766000000
)

func newTestMediaService(repo repository.MediaRepository, st storage.ObjectStorage, pub *PublisherSpy) *mediaService {
	svc := &mediaService{
		mediaRepo: repo,
		store:     st,
		cdn:       storage.NewCDNResolver("https://cdn.clinic.example"),
		now:       func() time.Time { return time.Unix(fixedUnix, 0).UTC() },
		newID:     func() string { return fixedID },
	}
	if pub != nil {
		svc.publisher = pub
	}
	return svc
}

func testFile(name, mime, content string) UploadedFile {
	return UploadedFile{
		Content:          strings.NewReader(content),
		OriginalFilename: name,
		MimeType:         mime,
		Size:             int64(len(content)),
	}
}

func TestUploadOne_Success(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	st := new(StorageMock)
	pub := &PublisherSpy{}
	svc := newTestMediaService(repo, st, pub)

	wantKey := "videos/" + fixedID + "_1766000000.mp4"
	st.On("Put", mock.Anything, wantKey, mock.Anything, int64(5), "video/mp4").Return(nil).Once()
	st.On("URL", wantKey).Return("https://s3.local/media/" + wantKey).Once()

	record, err := svc.UploadOne(ctx, testFile("lesson.mp4", "video/mp4", "hello"), "videos", nil)
	require.NoError(t, err)
	require.NotNil(t, record)

	// By the time the call returns, the record is terminal.
	require.Equal(t, domain.StatusCompleted, record.Status)
	require.Equal(t, wantKey, record.Path)
	require.NotEmpty(t, record.URL)
	require.Equal(t, "https://cdn.clinic.example/"+wantKey, record.CDNURL)
	require.Equal(t, "lesson.mp4", record.OriginalFilename)
	require.NotEqual(t, record.OriginalFilename, record.Filename)
	require.Equal(t, "lesson.mp4", record.Metadata["original_name"])

	// The stored record matches what was returned.
	stored, err := repo.GetByID(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusCompleted, stored.Status)

	evts := pub.Events()
	require.Len(t, evts, 1)
	require.Equal(t, domain.StatusCompleted, evts[0].To)
	st.AssertExpectations(t)
}

func TestUploadOne_StorageFailureMarksRecordFailed(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	st := new(StorageMock)
	svc := newTestMediaService(repo, st, nil)

	transportErr := &storage.TransferError{Op: "put", Key: "x", Err: errors.New("connection reset")}
	st.On("Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(transportErr).Once()

	record, err := svc.UploadOne(ctx, testFile("broken.mp4", "video/mp4", "junk"), "videos", nil)
	require.ErrorIs(t, err, ErrUploadFailed)
	require.ErrorIs(t, err, storage.ErrTransferFailed)
	require.Nil(t, record)

	// The record is retained as the durable trace of the failure.
	failed, err := repo.ByStatus(ctx, domain.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Empty(t, failed[0].Path)
	require.Contains(t, failed[0].Metadata["error"], "connection reset")
	st.AssertExpectations(t)
}

func TestUploadOne_RejectsEmptyFilename(t *testing.T) {
	repo := memory.NewMediaRepository()
	st := new(StorageMock)
	svc := newTestMediaService(repo, st, nil)

	_, err := svc.UploadOne(context.Background(), testFile("", "video/mp4", "x"), "videos", nil)
	require.ErrorIs(t, err, ErrValidationFailed)

	// Validation failures never produce a record.
	count, cerr := repo.Count(context.Background())
	require.NoError(t, cerr)
	require.Zero(t, count)
	st.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUploadMany_PartialFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	st := new(StorageMock)
	svc := newTestMediaService(repo, st, nil)

	// First Put fails, second succeeds.
	st.On("Put", mock.Anything, mock.Anything, mock.Anything, int64(3), "video/mp4").
		Return(&storage.TransferError{Op: "put", Key: "a", Err: errors.New("quota")}).Once()
	st.On("Put", mock.Anything, mock.Anything, mock.Anything, int64(4), "video/mp4").Return(nil).Once()
	st.On("URL", mock.AnythingOfType("string")).Return("https://s3.local/ok").Once()

	result := svc.UploadMany(ctx, []UploadedFile{
		testFile("bad.mp4", "video/mp4", "abc"),
		testFile("good.mp4", "video/mp4", "abcd"),
	}, "videos")

	require.Len(t, result.Errors, 1)
	require.Len(t, result.Uploaded, 1)
	require.Equal(t, "bad.mp4", result.Errors[0].OriginalFilename)
	require.Equal(t, "good.mp4", result.Uploaded[0].OriginalFilename)
	st.AssertExpectations(t)
}

func TestUpdateMetadata_ShallowMerge(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	svc := newTestMediaService(repo, new(StorageMock), nil)

	id, err := repo.Create(ctx, &domain.MediaUpload{
		OriginalFilename: "clip.mp4",
		Status:           domain.StatusCompleted,
		Metadata:         map[string]any{"a": 1},
	})
	require.NoError(t, err)

	record, err := svc.UpdateMetadata(ctx, id, map[string]any{"b": 2})
	require.NoError(t, err)
	require.Equal(t, 1, record.Metadata["a"])
	require.Equal(t, 2, record.Metadata["b"])
}

func TestUpdateMetadata_NotFound(t *testing.T) {
	repo := memory.NewMediaRepository()
	svc := newTestMediaService(repo, new(StorageMock), nil)

	_, err := svc.UpdateMetadata(context.Background(), primitive.NewObjectID(), map[string]any{"k": "v"})
	require.ErrorIs(t, err, ErrMediaNotFound)
}

func TestDelete_WithThumbnailIssuesTwoStorageDeletes(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	st := new(StorageMock)
	svc := newTestMediaService(repo, st, nil)

	id, err := repo.Create(ctx, &domain.MediaUpload{
		OriginalFilename: "clip.mp4",
		Status:           domain.StatusCompleted,
		Path:             "videos/clip.mp4",
		ThumbnailPath:    "thumbs/clip.jpg",
	})
	require.NoError(t, err)

	st.On("Delete", mock.Anything, "videos/clip.mp4").Return(true, nil).Once()
	// Thumbnail already gone from storage: tolerated, not an error.
	st.On("Delete", mock.Anything, "thumbs/clip.jpg").Return(false, nil).Once()

	require.NoError(t, svc.Delete(ctx, id, false))
	st.AssertExpectations(t)

	// Soft-deleted: invisible but restorable.
	_, err = repo.GetByID(ctx, id)
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.NoError(t, repo.Restore(ctx, id))
}

func TestDelete_WithoutThumbnailIssuesOneStorageDelete(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	st := new(StorageMock)
	svc := newTestMediaService(repo, st, nil)

	id, err := repo.Create(ctx, &domain.MediaUpload{
		OriginalFilename: "clip.mp4",
		Status:           domain.StatusCompleted,
		Path:             "videos/clip.mp4",
	})
	require.NoError(t, err)

	st.On("Delete", mock.Anything, "videos/clip.mp4").Return(true, nil).Once()

	require.NoError(t, svc.Delete(ctx, id, false))
	st.AssertExpectations(t)
	st.AssertNumberOfCalls(t, "Delete", 1)
}

func TestDelete_ForceRemovesRecordEntirely(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	st := new(StorageMock)
	svc := newTestMediaService(repo, st, nil)

	id, err := repo.Create(ctx, &domain.MediaUpload{
		OriginalFilename: "clip.mp4",
		Status:           domain.StatusCompleted,
		Path:             "videos/clip.mp4",
	})
	require.NoError(t, err)

	st.On("Delete", mock.Anything, "videos/clip.mp4").Return(true, nil).Once()

	require.NoError(t, svc.Delete(ctx, id, true))

	// Gone for good: restore has nothing to bring back.
	require.ErrorIs(t, repo.Restore(ctx, id), repository.ErrNotFound)
}

func TestDelete_ForcePurgesSoftDeletedRecord(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	st := new(StorageMock)
	svc := newTestMediaService(repo, st, nil)

	id, err := repo.Create(ctx, &domain.MediaUpload{
		OriginalFilename: "clip.mp4",
		Status:           domain.StatusCompleted,
		Path:             "videos/clip.mp4",
	})
	require.NoError(t, err)

	st.On("Delete", mock.Anything, "videos/clip.mp4").Return(true, nil).Once()
	require.NoError(t, svc.Delete(ctx, id, false))

	// A record soft-deleted earlier can still be purged; the storage object
	// went away with the soft delete, so no second storage call is made.
	require.NoError(t, svc.Delete(ctx, id, true))
	st.AssertNumberOfCalls(t, "Delete", 1)
	require.ErrorIs(t, repo.Restore(ctx, id), repository.ErrNotFound)
}

func TestDelete_ForceUnknownIDIsNotFound(t *testing.T) {
	repo := memory.NewMediaRepository()
	svc := newTestMediaService(repo, new(StorageMock), nil)

	err := svc.Delete(context.Background(), primitive.NewObjectID(), true)
	require.ErrorIs(t, err, ErrMediaNotFound)
}

func TestDelete_NotFound(t *testing.T) {
	repo := memory.NewMediaRepository()
	svc := newTestMediaService(repo, new(StorageMock), nil)

	err := svc.Delete(context.Background(), primitive.NewObjectID(), false)
	require.ErrorIs(t, err, ErrMediaNotFound)
}

func TestStats_Aggregates(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewMediaRepository()
	svc := newTestMediaService(repo, new(StorageMock), nil)

	for i, size := range []int64{100, 200, 300} {
		_, err := repo.Create(ctx, &domain.MediaUpload{
			OriginalFilename: "clip.mp4",
			Status:           domain.StatusCompleted,
			Size:             size,
			Metadata:         map[string]any{"n": i},
		})
		require.NoError(t, err)
	}

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, stats.Count)
	require.EqualValues(t, 600, stats.TotalSize)
	require.Len(t, stats.Recent, 3)
}
