package service

import (
	"context"
	"io"
	"sync"
	"time"

	"physiocore/clinic-media/internal/events"
	"physiocore/clinic-media/internal/queue"
	"physiocore/clinic-media/internal/storage"

	"github.com/stretchr/testify/mock"
)

// StorageMock is a testify mock of storage.ObjectStorage.
type StorageMock struct {
	mock.Mock
}

func (m *StorageMock) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, body, size, contentType)
	return args.Error(0)
}

func (m *StorageMock) Delete(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *StorageMock) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *StorageMock) URL(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *StorageMock) PresignUpload(ctx context.Context, key string, contentType string, expires time.Duration) (storage.PresignedUpload, error) {
	args := m.Called(ctx, key, contentType, expires)
	return args.Get(0).(storage.PresignedUpload), args.Error(1)
}

// PublisherSpy records every published event.
type PublisherSpy struct {
	mu     sync.Mutex
	events []events.StatusChanged
}

func (p *PublisherSpy) PublishStatusChanged(ctx context.Context, event events.StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *PublisherSpy) Close() error { return nil }

func (p *PublisherSpy) Events() []events.StatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.StatusChanged, len(p.events))
	copy(out, p.events)
	return out
}

// QueueSpy captures enqueued jobs without running them.
type QueueSpy struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *QueueSpy) Enqueue(ctx context.Context, job queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *QueueSpy) Jobs() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]queue.Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}
