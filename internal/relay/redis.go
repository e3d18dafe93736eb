package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/swapline/swapline/pkg/models"
)

// Redis broadcasts events over a Redis pub/sub channel, decoupling the
// worker pool from whichever gateway instances hold the connections.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewRedis creates a Redis-backed relay.
func NewRedis(rdb *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{rdb: rdb, logger: logger}
}

func (r *Redis) Publish(ctx context.Context, event models.StatusEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	if err := r.rdb.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish status event: %w", err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context) (<-chan models.StatusEvent, func(), error) {
	sub := r.rdb.Subscribe(ctx, Channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, nil, fmt.Errorf("subscribe to %s: %w", Channel, err)
	}

	events := make(chan models.StatusEvent, 256)
	go func() {
		defer close(events)
		for msg := range sub.Channel() {
			var event models.StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.Warn("dropping malformed status event", zap.Error(err))
				continue
			}
			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() { sub.Close() }
	return events, stop, nil
}
