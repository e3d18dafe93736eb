// The gateway accepts client order connections, enqueues jobs on the
// shared Redis queue, and streams status events back to clients.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/swapline/swapline/internal/config"
	"github.com/swapline/swapline/internal/gateway"
	"github.com/swapline/swapline/internal/queue"
	"github.com/swapline/swapline/internal/redisclient"
	"github.com/swapline/swapline/internal/relay"
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

	srv := gateway.New(cfg.Server, q, rl, zlog)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		zlog.Fatal("gateway exited", zap.Error(err))
	}
}
