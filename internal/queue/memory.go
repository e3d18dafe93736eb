package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/swapline/swapline/internal/config"
	"github.com/swapline/swapline/pkg/models"
)

type memJob struct {
	order    models.Order
	attempts int
}

// Memory is a process-local queue with the same retry contract as the
// Redis queue. It backs tests and single-process runs.
type Memory struct {
	cfg config.QueueConfig

	mu     sync.Mutex
	jobs   map[string]*memJob
	timers map[string]*time.Timer
	dead   []DeadJob

	ready  chan string
	closed chan struct{}
	once   sync.Once
}

// NewMemory creates an in-memory queue.
func NewMemory(cfg config.QueueConfig) *Memory {
	return &Memory{
		cfg:    cfg,
		jobs:   make(map[string]*memJob),
		timers: make(map[string]*time.Timer),
		ready:  make(chan string, 1024),
		closed: make(chan struct{}),
	}
}

func (q *Memory) Enqueue(_ context.Context, order models.Order) error {
	q.mu.Lock()
	if _, exists := q.jobs[order.ID]; exists {
		q.mu.Unlock()
		return fmt.Errorf("order %s already enqueued", order.ID)
	}
	q.jobs[order.ID] = &memJob{order: order}
	q.mu.Unlock()

	select {
	case q.ready <- order.ID:
		return nil
	default:
		return fmt.Errorf("queue full")
	}
}

func (q *Memory) Dequeue(ctx context.Context) (*Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closed:
		return nil, fmt.Errorf("queue closed")
	case id := <-q.ready:
		q.mu.Lock()
		defer q.mu.Unlock()
		j, ok := q.jobs[id]
		if !ok {
			return nil, fmt.Errorf("job %s vanished", id)
		}
		j.attempts++
		return &Delivery{Job: Job{
			Order:       j.order,
			Attempt:     j.attempts,
			MaxAttempts: q.cfg.MaxAttempts,
		}}, nil
	}
}

func (q *Memory) Complete(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, d.Job.Order.ID)
	return nil
}

func (q *Memory) Fail(_ context.Context, d *Delivery, reason string) (bool, error) {
	id := d.Job.Order.ID

	q.mu.Lock()
	defer q.mu.Unlock()

	if d.Job.WillRetry() {
		delay := Backoff(q.cfg.BackoffBase, d.Job.Attempt)
		q.timers[id] = time.AfterFunc(delay, func() {
			q.mu.Lock()
			delete(q.timers, id)
			q.mu.Unlock()
			select {
			case q.ready <- id:
			case <-q.closed:
			}
		})
		return true, nil
	}

	delete(q.jobs, id)
	q.dead = append(q.dead, DeadJob{
		Order:    d.Job.Order,
		Attempts: d.Job.Attempt,
		Reason:   models.TruncateReason(reason),
		FailedAt: time.Now().UTC(),
	})
	return false, nil
}

// DeadLetters returns a copy of the dead-lettered jobs.
func (q *Memory) DeadLetters() []DeadJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadJob, len(q.dead))
	copy(out, q.dead)
	return out
}

// Len reports the number of live jobs, delivered or queued.
func (q *Memory) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

func (q *Memory) Close() error {
	q.once.Do(func() {
		close(q.closed)
		q.mu.Lock()
		for id, timer := range q.timers {
			timer.Stop()
			delete(q.timers, id)
		}
		q.mu.Unlock()
	})
	return nil
}
