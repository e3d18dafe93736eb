// The worker pulls order jobs from the shared Redis queue, runs the
// swap workflow against the configured venues, publishes status events,
// and records terminal outcomes.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/swapline/swapline/internal/config"
	"github.com/swapline/swapline/internal/messaging"
	"github.com/swapline/swapline/internal/metrics"
	"github.com/swapline/swapline/internal/queue"
	"github.com/swapline/swapline/internal/redisclient"
	"github.com/swapline/swapline/internal/relay"
	"github.com/swapline/swapline/internal/router"
	"github.com/swapline/swapline/internal/store"
	"github.com/swapline/swapline/internal/venue"
	"github.com/swapline/swapline/internal/worker"
	"github.com/swapline/swapline/pkg/logger"
)

func main() {
	cfg, err := config.Load(os.Args[1:]...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync()

	rc, err := redisclient.New(cfg.Redis, zlog)
	if err != nil {
		zlog.Fatal("redis connection failed", zap.Error(err))
	}
	defer rc.Close()

	q := queue.NewRedis(rc.Redis(), cfg.Queue, zlog)
	defer q.Close()

	rl := relay.NewRedis(rc.Redis(), zlog)

	db, err := store.Open(cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}

	var sink store.Sink = db
	if cfg.Kafka.Enabled {
		audit := messaging.NewAuditPublisher(cfg.Kafka, zlog)
		defer audit.Close()
		sink = store.Multi{db, audit}
	}

	venues := make([]venue.QuoteSource, 0, len(cfg.Venues))
	for _, vc := range cfg.Venues {
		venues = append(venues, venue.NewMock(vc))
	}
	rt := router.New(venues, zlog)

	pool := worker.New(q, rl, rt, sink, cfg.Queue.Concurrency, zlog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr, zlog); err != nil {
			zlog.Error("metrics server exited", zap.Error(err))
		}
	}()

	pool.Run(ctx)
}
