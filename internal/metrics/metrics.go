// Package metrics exposes the pipeline's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gateway side.
	OrdersAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapline_gateway_orders_accepted_total",
		Help: "Orders validated and enqueued by the gateway.",
	})
	OrdersRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapline_gateway_orders_rejected_total",
		Help: "Connections rejected for invalid order parameters.",
	})
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "swapline_gateway_connections_active",
		Help: "Client connections currently tracked by this gateway.",
	})
	EventsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapline_gateway_events_forwarded_total",
		Help: "Status events forwarded to client connections.",
	})

	// Worker side.
	JobAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapline_worker_attempts_total",
		Help: "Job delivery attempts processed by the worker pool.",
	})
	JobRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapline_worker_retries_total",
		Help: "Failed attempts that were requeued for redelivery.",
	})
	OrdersConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapline_worker_orders_confirmed_total",
		Help: "Orders that reached the confirmed terminal status.",
	})
	OrdersFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapline_worker_orders_failed_total",
		Help: "Orders that exhausted retries and failed permanently.",
	})
	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapline_worker_execution_seconds",
		Help:    "Wall time of one workflow attempt, routing through confirmation.",
		Buckets: prometheus.DefBuckets,
	})
)
