package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/swapline/swapline/internal/config"
	"github.com/swapline/swapline/pkg/models"
)

// promoteScript atomically moves due delayed jobs back onto the wait
// list. KEYS[1] = delayed zset, KEYS[2] = wait list, ARGV[1] = now in
// unix milliseconds.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(due) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('LPUSH', KEYS[2], id)
end
return #due
`)

// reclaimScript atomically moves stalled active jobs (lease expired, so
// the worker holding them is presumed dead) back onto the wait list.
// KEYS[1] = lease zset, KEYS[2] = active list, KEYS[3] = wait list,
// ARGV[1] = now in unix milliseconds.
var reclaimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('LREM', KEYS[2], 1, id)
	redis.call('LPUSH', KEYS[3], id)
end
return #expired
`)

// Redis is the durable queue implementation. A job's ID lives in exactly
// one of the wait list, the active list, or the delayed set at any time,
// which is what guarantees no concurrent delivery of the same order.
// Active jobs carry a lease; once it expires the promoter returns them to
// the wait list, so a worker crash mid-attempt redelivers the job.
type Redis struct {
	rdb    *redis.Client
	cfg    config.QueueConfig
	logger *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewRedis creates the queue and starts the delayed-job promoter.
func NewRedis(rdb *redis.Client, cfg config.QueueConfig, logger *zap.Logger) *Redis {
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Redis{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go q.promoteLoop(ctx)
	return q
}

func (q *Redis) key(suffix string) string {
	return "swapline:" + q.cfg.Name + ":" + suffix
}

func (q *Redis) jobKey(orderID string) string {
	return q.key("job:" + orderID)
}

// Enqueue stores the job payload and pushes the order onto the wait list.
func (q *Redis) Enqueue(ctx context.Context, order models.Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, q.jobKey(order.ID), "order", payload, "attempts", 0)
	pipe.LPush(ctx, q.key("wait"), order.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue order %s: %w", order.ID, err)
	}

	q.logger.Info("order enqueued", zap.String("order_id", order.ID))
	return nil
}

// Dequeue blocks until a job is available, moves it to the active list,
// and bumps its attempt counter.
func (q *Redis) Dequeue(ctx context.Context) (*Delivery, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id, err := q.rdb.BRPopLPush(ctx, q.key("wait"), q.key("active"), time.Second).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("dequeue: %w", err)
		}

		// The lease is recorded before the job hash is touched: if any
		// step below errors (or the process dies), the job sits in the
		// active list with an expiring lease and the promoter redelivers
		// it instead of leaving it stranded.
		leaseUntil := time.Now().Add(q.cfg.VisibilityTimeout).UnixMilli()
		if err := q.rdb.ZAdd(ctx, q.key("lease"), redis.Z{Score: float64(leaseUntil), Member: id}).Err(); err != nil {
			return nil, fmt.Errorf("lease job %s: %w", id, err)
		}

		attempt, err := q.rdb.HIncrBy(ctx, q.jobKey(id), "attempts", 1).Result()
		if err != nil {
			return nil, fmt.Errorf("bump attempts for %s: %w", id, err)
		}

		payload, err := q.rdb.HGet(ctx, q.jobKey(id), "order").Result()
		if err != nil {
			return nil, fmt.Errorf("load job %s: %w", id, err)
		}

		var order models.Order
		if err := json.Unmarshal([]byte(payload), &order); err != nil {
			return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
		}

		return &Delivery{Job: Job{
			Order:       order,
			Attempt:     int(attempt),
			MaxAttempts: q.cfg.MaxAttempts,
		}}, nil
	}
}

// Complete removes the job from the active list and deletes its payload.
func (q *Redis) Complete(ctx context.Context, d *Delivery) error {
	id := d.Job.Order.ID
	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.key("active"), 1, id)
	pipe.ZRem(ctx, q.key("lease"), id)
	pipe.Del(ctx, q.jobKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// Fail schedules a redelivery with exponential backoff, or dead-letters
// the job once attempts are exhausted.
func (q *Redis) Fail(ctx context.Context, d *Delivery, reason string) (bool, error) {
	id := d.Job.Order.ID

	if d.Job.WillRetry() {
		delay := Backoff(q.cfg.BackoffBase, d.Job.Attempt)
		readyAt := time.Now().Add(delay).UnixMilli()

		pipe := q.rdb.TxPipeline()
		pipe.LRem(ctx, q.key("active"), 1, id)
		pipe.ZRem(ctx, q.key("lease"), id)
		pipe.HSet(ctx, q.jobKey(id), "last_error", reason)
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(readyAt), Member: id})
		if _, err := pipe.Exec(ctx); err != nil {
			return false, fmt.Errorf("schedule retry for %s: %w", id, err)
		}

		q.logger.Warn("attempt failed, retry scheduled",
			zap.String("order_id", id),
			zap.Int("attempt", d.Job.Attempt),
			zap.Duration("delay", delay),
		)
		return true, nil
	}

	dead, err := json.Marshal(DeadJob{
		Order:    d.Job.Order,
		Attempts: d.Job.Attempt,
		Reason:   models.TruncateReason(reason),
		FailedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("marshal dead job %s: %w", id, err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.LRem(ctx, q.key("active"), 1, id)
	pipe.ZRem(ctx, q.key("lease"), id)
	pipe.Del(ctx, q.jobKey(id))
	pipe.RPush(ctx, q.key("dead"), dead)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("dead-letter job %s: %w", id, err)
	}

	q.logger.Error("job permanently failed",
		zap.String("order_id", id),
		zap.Int("attempts", d.Job.Attempt),
		zap.String("reason", reason),
	)
	return false, nil
}

// DeadLetters returns up to limit dead-lettered jobs, oldest first.
func (q *Redis) DeadLetters(ctx context.Context, limit int64) ([]DeadJob, error) {
	raw, err := q.rdb.LRange(ctx, q.key("dead"), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read dead letters: %w", err)
	}
	out := make([]DeadJob, 0, len(raw))
	for _, item := range raw {
		var dj DeadJob
		if err := json.Unmarshal([]byte(item), &dj); err != nil {
			return nil, fmt.Errorf("unmarshal dead letter: %w", err)
		}
		out = append(out, dj)
	}
	return out, nil
}

// Close stops the promoter loop.
func (q *Redis) Close() error {
	q.cancel()
	<-q.done
	return nil
}

func (q *Redis) promoteLoop(ctx context.Context) {
	defer close(q.done)

	ticker := time.NewTicker(q.cfg.PromoteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := strconv.FormatInt(time.Now().UnixMilli(), 10)
			keys := []string{q.key("delayed"), q.key("wait")}
			if err := promoteScript.Run(ctx, q.rdb, keys, now).Err(); err != nil && !errors.Is(err, context.Canceled) {
				q.logger.Error("failed to promote delayed jobs", zap.Error(err))
			}

			keys = []string{q.key("lease"), q.key("active"), q.key("wait")}
			n, err := reclaimScript.Run(ctx, q.rdb, keys, now).Int()
			if err != nil && !errors.Is(err, context.Canceled) {
				q.logger.Error("failed to reclaim stalled jobs", zap.Error(err))
			} else if n > 0 {
				q.logger.Warn("reclaimed stalled jobs", zap.Int("count", n))
			}
		}
	}
}
