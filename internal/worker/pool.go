// Package worker runs the multi-stage order workflow against jobs pulled
// from the queue, publishing a status event before each stage's work.
package worker

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/swapline/swapline/internal/metrics"
	"github.com/swapline/swapline/internal/queue"
	"github.com/swapline/swapline/internal/relay"
	"github.com/swapline/swapline/internal/router"
	"github.com/swapline/swapline/internal/store"
	"github.com/swapline/swapline/pkg/models"
)

// Pool executes jobs with a bounded number of concurrent slots. Slots
// never share per-job state.
type Pool struct {
	queue       queue.Queue
	relay       relay.Relay
	router      *router.Router
	sink        store.Sink
	concurrency int
	logger      *zap.Logger
}

// New creates a worker pool.
func New(q queue.Queue, r relay.Relay, rt *router.Router, sink store.Sink, concurrency int, logger *zap.Logger) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{
		queue:       q,
		relay:       r,
		router:      rt,
		sink:        sink,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run blocks until ctx is cancelled and every slot has drained.
func (p *Pool) Run(ctx context.Context) {
	p.logger.Info("worker pool starting", zap.Int("concurrency", p.concurrency))

	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			p.runSlot(ctx, slot)
		}(i)
	}
	wg.Wait()

	p.logger.Info("worker pool stopped")
}

func (p *Pool) runSlot(ctx context.Context, slot int) {
	log := p.logger.With(zap.Int("slot", slot))
	for {
		d, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", zap.Error(err))
			continue
		}
		p.process(ctx, d)
	}
}

// process runs one delivery attempt of the workflow:
// routing -> building -> submitted -> confirmed.
func (p *Pool) process(ctx context.Context, d *queue.Delivery) {
	order := d.Job.Order
	log := p.logger.With(zap.String("order_id", order.ID), zap.Int("attempt", d.Job.Attempt))
	log.Info("processing order", zap.String("pair", order.Pair()), zap.String("amount", order.Amount.String()))

	metrics.JobAttempts.Inc()
	timer := prometheus.NewTimer(metrics.ExecutionDuration)
	defer timer.ObserveDuration()

	p.publish(ctx, d, models.StatusRouting, "Comparing venue prices...", nil, "")

	route, err := p.router.FindBestRoute(ctx, order.InputToken, order.OutputToken, order.Amount)
	if err != nil {
		p.fail(ctx, d, err)
		return
	}

	p.publish(ctx, d, models.StatusBuilding, "Creating transaction...", map[string]any{
		"venue":           route.Venue,
		"price":           route.Quote.Price,
		"estimatedOutput": route.Quote.EstimatedOutput,
	}, "")

	p.publish(ctx, d, models.StatusSubmitted, "Transaction sent.", map[string]any{
		"venue": route.Venue,
	}, "")

	txHash, err := p.router.ExecuteSwap(ctx, route.Venue, order.Amount)
	if err != nil {
		p.fail(ctx, d, err)
		return
	}

	finalOutput := route.Quote.EstimatedOutput
	p.publish(ctx, d, models.StatusConfirmed, "Transaction successful.", map[string]any{
		"venue":         route.Venue,
		"executedPrice": route.Quote.Price,
		"finalOutput":   finalOutput,
	}, txHash)

	if err := p.queue.Complete(ctx, d); err != nil {
		log.Error("failed to complete job", zap.Error(err))
	}
	metrics.OrdersConfirmed.Inc()

	// The client outcome is already sent; a sink failure is logged and
	// swallowed.
	if err := p.sink.SaveConfirmed(ctx, order, route.Quote.Price, finalOutput, txHash); err != nil {
		log.Error("failed to persist confirmed order", zap.Error(err))
	}

	log.Info("order confirmed", zap.String("venue", route.Venue), zap.String("tx_hash", txHash))
}

// fail publishes the attempt's failed event before requeueing, so the
// client sees every attempt's outcome, then hands the retry decision to
// the queue.
func (p *Pool) fail(ctx context.Context, d *queue.Delivery, stageErr error) {
	order := d.Job.Order
	final := !d.Job.WillRetry()

	event := models.StatusEvent{
		OrderID: order.ID,
		Status:  models.StatusFailed,
		Message: "Order execution failed.",
		Error:   stageErr.Error(),
		Attempt: d.Job.Attempt,
		Final:   final,
	}
	if err := p.relay.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish status event",
			zap.String("order_id", order.ID), zap.Error(err))
	}

	requeued, err := p.queue.Fail(ctx, d, stageErr.Error())
	if err != nil {
		p.logger.Error("failed to record job failure",
			zap.String("order_id", order.ID), zap.Error(err))
		requeued = !final
	}

	if requeued {
		metrics.JobRetries.Inc()
		return
	}

	metrics.OrdersFailed.Inc()
	if err := p.sink.SaveFailed(ctx, order, stageErr.Error()); err != nil {
		p.logger.Error("failed to persist failed order",
			zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (p *Pool) publish(ctx context.Context, d *queue.Delivery, status models.Status, message string, data map[string]any, txHash string) {
	event := models.StatusEvent{
		OrderID: d.Job.Order.ID,
		Status:  status,
		Message: message,
		Data:    data,
		TxHash:  txHash,
		Attempt: d.Job.Attempt,
	}
	if err := p.relay.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish status event",
			zap.String("order_id", d.Job.Order.ID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
}
