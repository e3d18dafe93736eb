// Package queue implements the durable, at-least-once job queue that
// carries orders from the gateway to the worker pool. Delivery of a
// given order never overlaps with a still-in-flight attempt for the
// same order; that mutual-exclusion contract is enforced here, not by
// workers.
package queue

import (
	"context"
	"time"

	"github.com/swapline/swapline/pkg/models"
)

// Job is a queued unit of work wrapping an order plus queue metadata.
type Job struct {
	Order       models.Order `json:"order"`
	Attempt     int          `json:"attempt"`
	MaxAttempts int          `json:"maxAttempts"`
}

// WillRetry reports whether a failure on this attempt leads to a
// redelivery rather than a permanent failure.
func (j Job) WillRetry() bool {
	return j.Attempt < j.MaxAttempts
}

// Delivery is one attempt of a job handed to a worker. The worker must
// finish it with exactly one of Complete or Fail.
type Delivery struct {
	Job Job
}

// DeadJob is a job that exhausted its attempts and was dead-lettered.
type DeadJob struct {
	Order    models.Order `json:"order"`
	Attempts int          `json:"attempts"`
	Reason   string       `json:"reason"`
	FailedAt time.Time    `json:"failedAt"`
}

// Queue delivers enqueued orders to workers at-least-once with
// exponential retry backoff.
type Queue interface {
	// Enqueue adds an order to the queue.
	Enqueue(ctx context.Context, order models.Order) error

	// Dequeue blocks until a job attempt is available or ctx is done.
	Dequeue(ctx context.Context) (*Delivery, error)

	// Complete removes a successfully processed job from the queue.
	Complete(ctx context.Context, d *Delivery) error

	// Fail records a failed attempt. When attempts remain, the job is
	// scheduled for redelivery after the backoff delay and requeued is
	// true; otherwise the job is dead-lettered and requeued is false.
	Fail(ctx context.Context, d *Delivery, reason string) (requeued bool, err error)

	// Close stops background processing.
	Close() error
}

// Backoff returns the redelivery delay after the given 1-based failed
// attempt: base, then doubling per attempt.
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}
