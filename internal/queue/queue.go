// Package queue provides the background-job machinery for the media
// pipeline: a small queue contract, an explicit retry policy, and a
// channel-backed in-process worker pool. Jobs carry their own terminal
// failure handling so the pool stays ignorant of media semantics.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job is one unit of background work. Execute is invoked once per attempt;
// returning an error surfaces it to the pool's retry accounting. Failed is
// invoked exactly once, only when no further attempts will be made.
type Job interface {
	Name() string
	Execute(ctx context.Context) error
	Failed(ctx context.Context, err error)
}

// Queue accepts jobs for later execution. Enqueue returns as soon as the job
// is accepted — it never waits for the work itself.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
}

// ErrQueueClosed is returned by Enqueue after shutdown has begun.
var ErrQueueClosed = errors.New("queue is closed")

// permanentError marks an error as non-retryable: remaining attempts are
// skipped and the job goes straight to its Failed hook.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the pool will not retry it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked non-retryable.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// RetryPolicy bounds how often and how long a job may run.
type RetryPolicy struct {
	// MaxAttempts is the total number of tries, first attempt included.
	MaxAttempts int
	// Backoff holds the delay before each retry. With fewer entries than
	// retries, the last entry repeats.
	Backoff []time.Duration
	// AttemptTimeout caps the wall-clock time of a single attempt.
	// Exceeding it counts as a transport failure for retry purposes.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy mirrors the deployment defaults: three attempts with
// increasing backoff and a per-attempt timeout generous enough for large
// video files.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		Backoff:        []time.Duration{30 * time.Second, 60 * time.Second, 120 * time.Second},
		AttemptTimeout: 600 * time.Second,
	}
}

// Delay returns the backoff before retry number retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if retry < 1 {
		retry = 1
	}
	if retry > len(p.Backoff) {
		retry = len(p.Backoff)
	}
	return p.Backoff[retry-1]
}

// Validate rejects policies the pool cannot run.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("retry policy: max attempts must be >= 1, got %d", p.MaxAttempts)
	}
	if p.AttemptTimeout <= 0 {
		return fmt.Errorf("retry policy: attempt timeout must be positive, got %s", p.AttemptTimeout)
	}
	return nil
}
