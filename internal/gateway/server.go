// Package gateway accepts client WebSocket connections, enqueues their
// orders, and forwards matching status events from the relay until a
// terminal status closes the connection.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/swapline/swapline/internal/config"
	"github.com/swapline/swapline/internal/metrics"
	"github.com/swapline/swapline/internal/queue"
	"github.com/swapline/swapline/internal/relay"
)

// Server is one gateway instance. Its binding table is scoped to the
// instance lifetime; nothing about connections is shared across
// processes.
type Server struct {
	cfg      config.ServerConfig
	queue    queue.Queue
	relay    relay.Relay
	logger   *zap.Logger
	engine   *gin.Engine
	bindings *bindings
	started  time.Time
}

// New creates a gateway server and registers its routes.
func New(cfg config.ServerConfig, q queue.Queue, r relay.Relay, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		queue:    q,
		relay:    r,
		logger:   logger,
		engine:   engine,
		bindings: newBindings(),
		started:  time.Now(),
	}

	engine.GET("/health", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws/orders", s.handleOrders)

	return s
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully. The
// relay consumer runs for the lifetime of the server.
func (s *Server) Run(ctx context.Context) error {
	consumerCtx, cancelConsumer := context.WithCancel(ctx)
	defer cancelConsumer()
	if err := s.consumeRelay(consumerCtx); err != nil {
		return fmt.Errorf("start relay consumer: %w", err)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("gateway listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("gateway stopped")
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.started).Seconds(),
	})
}

// consumeRelay subscribes to the status relay and forwards events to
// whichever connection tracks the event's order. Events for orders this
// instance does not track are someone else's and are skipped.
func (s *Server) consumeRelay(ctx context.Context) error {
	events, stop, err := s.relay.Subscribe(ctx)
	if err != nil {
		return err
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				cl := s.bindings.get(ev.OrderID)
				if cl == nil {
					continue
				}

				terminal := ev.Terminal()
				if terminal {
					// Removing first makes a duplicate terminal event a no-op.
					s.bindings.remove(ev.OrderID)
				}
				cl.deliver(wireFromEvent(ev), terminal)
				metrics.EventsForwarded.Inc()
			}
		}
	}()
	return nil
}
