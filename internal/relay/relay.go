// Package relay carries status events from workers to gateways over a
// single broadcast topic. Publishing is fire-and-forget: no delivery
// guarantee is made to subscribers that are not connected at publish
// time, and publishers never block on subscribers.
package relay

import (
	"context"

	"github.com/swapline/swapline/pkg/models"
)

// Channel is the broadcast topic name.
const Channel = "order-updates"

// Relay fans status events out to every subscriber. Subscribers filter
// by order ID themselves.
type Relay interface {
	// Publish broadcasts the event to current subscribers.
	Publish(ctx context.Context, event models.StatusEvent) error

	// Subscribe returns a stream of all published events plus a stop
	// function releasing the subscription.
	Subscribe(ctx context.Context) (<-chan models.StatusEvent, func(), error)
}
