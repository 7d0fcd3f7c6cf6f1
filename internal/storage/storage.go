package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrTransferFailed matches any *TransferError via errors.Is.
var ErrTransferFailed = errors.New("storage transfer failed")

// Default expiry duration for presigned upload URLs
const DefaultPresignExpiry = 15 * time.Minute

// PresignedUpload is a time-boxed write grant for a single object.
type PresignedUpload struct {
	UploadURL string
	ExpiresAt time.Time
}

// ObjectStorage defines the interface for object storage operations.
// Implementations never retry internally — retry policy lives in callers.
type ObjectStorage interface {
	// Put writes the object under key. Writes are idempotent by key;
	// overwriting an existing object is allowed.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error

	// Delete removes the object at key. Returns false (and a nil error)
	// if the object did not exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Exists reports whether an object is present at key.
	Exists(ctx context.Context, key string) (bool, error)

	// URL constructs the storage-origin URL for key.
	URL(key string) string

	// PresignUpload creates a temporary URL that allows a single PUT of
	// the object at key without exposing storage credentials.
	PresignUpload(ctx context.Context, key string, contentType string, expires time.Duration) (PresignedUpload, error)
}

// TransferError wraps any transport failure while talking to the storage
// provider. Callers get a single error kind to match on while the underlying
// cause stays reachable via errors.Unwrap.
type TransferError struct {
	Op  string // "put", "delete", "head", "presign"
	Key string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("storage transfer failed: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool { return target == ErrTransferFailed }
