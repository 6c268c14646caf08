package persist

import (
	"context"
	"time"

	"github.com/dcpeer/dcpeer/internal/dcerr"
	"github.com/dcpeer/dcpeer/internal/logger"
)

// RetryPolicy controls the exponential backoff applied to a failed
// write, adapted from the teacher's own retry helper.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryPolicy matches the teacher's own defaults.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

func withRetry(ctx context.Context, policy RetryPolicy, op func() error) error {
	if policy.MaxAttempts <= 1 {
		return op()
	}

	var lastErr error
	delay := policy.InitialDelay

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if !dcerr.Retryable(err) {
			return err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		logger.Warn("persist: write failed, retrying", "attempt", attempt, "max", policy.MaxAttempts, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return lastErr
}

// Queue is the multi-producer, single-consumer write-behind path in
// front of a Store (§5: "database write-behind queue is
// multi-producer, single-consumer"). Enqueue never blocks the caller on
// the write itself; Close drains every queued write before returning,
// satisfying the durability property that a clean close persists
// everything queued.
type Queue struct {
	store  Store
	policy RetryPolicy
	jobs   chan func(Store) error
	done   chan struct{}
}

// NewQueue starts the consumer goroutine for store.
func NewQueue(store Store, policy RetryPolicy) *Queue {
	q := &Queue{
		store:  store,
		policy: policy,
		jobs:   make(chan func(Store) error, 256),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.done)
	for job := range q.jobs {
		if err := withRetry(context.Background(), q.policy, func() error { return job(q.store) }); err != nil {
			logger.Error("persist: write permanently failed", "error", err)
		}
	}
}

// Enqueue schedules job to run against the store on the consumer
// goroutine.
func (q *Queue) Enqueue(job func(Store) error) {
	q.jobs <- job
}

// Close stops accepting new writes and blocks until every queued write
// has been applied.
func (q *Queue) Close() {
	close(q.jobs)
	<-q.done
}
