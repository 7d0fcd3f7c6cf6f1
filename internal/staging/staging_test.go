package staging

import (
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveOpenRemove(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	path, err := store.Save(strings.NewReader("video bytes"), "knee-raise.mp4")
	require.NoError(t, err)
	assert.Equal(t, ".mp4", filepath.Ext(path))
	assert.Equal(t, store.Dir(), filepath.Dir(path))

	f, size, err := store.Open(path)
	require.NoError(t, err)
	defer f.Close()
	assert.EqualValues(t, len("video bytes"), size)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "video bytes", string(data))

	require.NoError(t, store.Remove(path))
	// Idempotent: a second remove of the same path is fine.
	require.NoError(t, store.Remove(path))
}

func TestSave_UniqueNames(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	a, err := store.Save(strings.NewReader("a"), "same.mp4")
	require.NoError(t, err)
	b, err := store.Save(strings.NewReader("b"), "same.mp4")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestOpen_MissingFile(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = store.Open(filepath.Join(store.Dir(), "nope.mp4"))
	require.ErrorIs(t, err, ErrStagedFileMissing)
}

func TestNewStore_RequiresDir(t *testing.T) {
	_, err := NewStore("")
	require.Error(t, err)
}
