package queue

import (
	"context"
	"log"
	"sync"
	"time"
)

// Pool is an in-process, channel-backed job queue with a fixed set of worker
// goroutines. One worker owns a job from first attempt to terminal outcome,
// so a given job is never processed concurrently with itself.
type Pool struct {
	jobs    chan Job
	policy  RetryPolicy
	workers int

	mu     sync.Mutex
	closed bool
	// senders counts Enqueue calls between the closed check and the channel
	// send. Shutdown waits on it before closing the channel, so a sender
	// parked on a full buffer can never hit a closed channel.
	senders sync.WaitGroup

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPool creates a pool with the given worker count, queue buffer, and
// retry policy. Call Start before enqueueing.
func NewPool(workers, buffer int, policy RetryPolicy) (*Pool, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if workers < 1 {
		workers = 1
	}
	if buffer < 1 {
		buffer = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		jobs:    make(chan Job, buffer),
		policy:  policy,
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
		sleep:   sleepCtx,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(worker int) {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(worker, job)
			}
		}(i)
	}
	log.Printf("INFO: Job pool started with %d workers (max %d attempts per job)", p.workers, p.policy.MaxAttempts)
}

// Enqueue hands a job to the pool. It returns once the job is buffered; the
// transfer itself happens later on a worker goroutine.
func (p *Pool) Enqueue(ctx context.Context, job Job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrQueueClosed
	}
	// Registered under the same lock as the closed check: once Shutdown has
	// flipped closed, no new sender can appear after its senders.Wait().
	p.senders.Add(1)
	p.mu.Unlock()
	defer p.senders.Done()

	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrQueueClosed
	}
}

// run drives one job through its attempts until success, a permanent error,
// or retry exhaustion. The job's Failed hook fires exactly once, and only on
// the terminal failure path — never on an individual retryable attempt.
func (p *Pool) run(worker int, job Job) {
	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(p.ctx, p.policy.AttemptTimeout)
		err := job.Execute(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 1 {
				log.Printf("INFO: [worker %d] job %s succeeded on attempt %d", worker, job.Name(), attempt)
			}
			return
		}

		if IsPermanent(err) {
			log.Printf("ERROR: [worker %d] job %s failed permanently: %v", worker, job.Name(), err)
			job.Failed(p.ctx, err)
			return
		}

		if attempt >= p.policy.MaxAttempts {
			log.Printf("ERROR: [worker %d] job %s exhausted %d attempts: %v", worker, job.Name(), attempt, err)
			job.Failed(p.ctx, err)
			return
		}

		delay := p.policy.Delay(attempt)
		log.Printf("INFO: [worker %d] job %s attempt %d failed, retrying in %s: %v", worker, job.Name(), attempt, delay, err)
		if p.sleep(p.ctx, delay) != nil {
			// Pool is shutting down mid-backoff; the job will not run
			// again, so give it its terminal callback.
			job.Failed(context.Background(), err)
			return
		}
	}
}

// Shutdown stops accepting jobs, lets queued work drain, and waits for the
// workers up to ctx's deadline.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	// Let senders already past the closed check finish their send before the
	// channel closes. The workers keep draining, so a sender parked on a full
	// buffer unblocks rather than deadlocking this wait.
	p.senders.Wait()
	close(p.jobs)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
