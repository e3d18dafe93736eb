// Package models defines the core domain types shared by the gateway,
// the worker pool, and the persistence layer.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is a lifecycle state of an order as seen by clients.
type Status string

const (
	// StatusAccepted is the gateway's acknowledgement that an order was
	// validated and enqueued. It is never published on the relay.
	StatusAccepted Status = "accepted"

	// StatusPending is the queued state between enqueue and the first
	// worker delivery. The workflow's first published event is routing.
	StatusPending Status = "pending"

	StatusRouting   Status = "routing"
	StatusBuilding  Status = "building"
	StatusSubmitted Status = "submitted"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// MaxFailReasonLen bounds the failure reason stored for a permanently
// failed order.
const MaxFailReasonLen = 255

// Order is a client-submitted request to convert an amount of one token
// into another. Its parameters are immutable once accepted.
type Order struct {
	ID          string          `json:"id"`
	InputToken  string          `json:"inputToken"`
	OutputToken string          `json:"outputToken"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Pair returns the canonical trading pair key, e.g. "SOL-USDC".
func (o Order) Pair() string {
	return o.InputToken + "-" + o.OutputToken
}

// Quote is a single venue's price for a pair and amount. Quotes are
// ephemeral: produced by a venue, consumed by the router's comparison.
type Quote struct {
	Venue           string          `json:"venue"`
	Price           decimal.Decimal `json:"price"`
	EstimatedOutput decimal.Decimal `json:"estimatedOutput"`
}

// RouteDecision is the venue chosen as having the best estimated output.
// Immutable once selected.
type RouteDecision struct {
	Venue string `json:"venue"`
	Quote Quote  `json:"quote"`
}

// StatusEvent is one progress update for an order, published on the
// status relay by workers and forwarded to the owning client connection
// by whichever gateway holds it.
type StatusEvent struct {
	OrderID string         `json:"orderId"`
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
	TxHash  string         `json:"txHash,omitempty"`

	// Attempt is the 1-based delivery attempt that produced the event.
	Attempt int `json:"attempt,omitempty"`

	// Final marks a failed event whose retries are exhausted. A failed
	// event with Final unset means the queue will redeliver the order,
	// so the gateway must keep the connection open.
	Final bool `json:"final,omitempty"`
}

// Terminal reports whether the event ends the order's lifecycle. Every
// confirmed event is terminal; a failed event is terminal only once the
// queue has given up on the order.
func (e StatusEvent) Terminal() bool {
	return e.Status == StatusConfirmed || (e.Status == StatusFailed && e.Final)
}

// TruncateReason bounds a failure reason to MaxFailReasonLen bytes.
func TruncateReason(reason string) string {
	if len(reason) <= MaxFailReasonLen {
		return reason
	}
	return reason[:MaxFailReasonLen]
}
