// Package staging persists incoming uploads to local scratch space so an
// async job can transfer them to object storage after the originating HTTP
// request has finished. Staged files live only until the job reaches a
// terminal state.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrStagedFileMissing signals that a staged file disappeared before the
// worker could read it (e.g. cleaned up out of band). Jobs treat this as a
// permanent failure, not a retryable one.
var ErrStagedFileMissing = errors.New("staged file missing")

// Store manages a local scratch directory for staged uploads. Each staged
// file gets a collision-free name, so concurrent dispatches never contend on
// the same path and no locking is needed between jobs.
type Store struct {
	dir string
}

// NewStore creates the staging directory if needed and returns a Store
// rooted at it.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("staging directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the scratch directory root.
func (s *Store) Dir() string { return s.dir }

// Save copies src into the staging directory under a unique name that keeps
// the original extension, and returns the full local path.
func (s *Store) Save(src io.Reader, originalFilename string) (string, error) {
	name := uuid.NewString() + filepath.Ext(originalFilename)
	path := filepath.Join(s.dir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write staged file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close staged file: %w", err)
	}

	return path, nil
}

// Open opens a previously staged file for reading and reports its size.
// A missing file maps to ErrStagedFileMissing.
func (s *Store) Open(path string) (*os.File, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, fmt.Errorf("%w: %s", ErrStagedFileMissing, path)
		}
		return nil, 0, fmt.Errorf("open staged file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat staged file: %w", err)
	}

	return f, info.Size(), nil
}

// Remove deletes a staged file. Removing an already-gone file is not an
// error — cleanup must be idempotent because terminal job hooks can race
// with out-of-band tmp reaping.
func (s *Store) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}
