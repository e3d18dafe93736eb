// Package router selects the best execution venue for a swap.
package router

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/swapline/swapline/internal/venue"
	"github.com/swapline/swapline/pkg/models"
)

// Router queries every configured venue concurrently and routes
// execution to the one with the best estimated output.
type Router struct {
	venues []venue.QuoteSource
	byName map[string]venue.QuoteSource
	logger *zap.Logger
}

// New creates a Router. Venue order is significant: when two venues
// quote exactly equal output, the earlier one wins.
func New(venues []venue.QuoteSource, logger *zap.Logger) *Router {
	byName := make(map[string]venue.QuoteSource, len(venues))
	for _, v := range venues {
		byName[v.Name()] = v
	}
	return &Router{venues: venues, byName: byName, logger: logger}
}

// FindBestRoute fans the quote request out to every venue, waits for all
// of them, and picks the strictly greatest estimated output. Total
// latency is the slowest single quote, not the sum. There is no
// early-exit on the first response: a losing-but-faster quote must not
// pre-empt a better slower one.
func (r *Router) FindBestRoute(ctx context.Context, inputToken, outputToken string, amount decimal.Decimal) (models.RouteDecision, error) {
	if len(r.venues) == 0 {
		return models.RouteDecision{}, fmt.Errorf("no venues configured")
	}

	quotes := make([]models.Quote, len(r.venues))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range r.venues {
		i, v := i, v
		g.Go(func() error {
			q, err := v.Quote(gctx, inputToken, outputToken, amount)
			if err != nil {
				return fmt.Errorf("quote from %s: %w", v.Name(), err)
			}
			quotes[i] = q
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.RouteDecision{}, err
	}

	best := quotes[0]
	for _, q := range quotes[1:] {
		// Strictly greater output wins; ties keep the earlier venue.
		if q.EstimatedOutput.GreaterThan(best.EstimatedOutput) {
			best = q
		}
	}

	r.logger.Info("best route selected",
		zap.String("venue", best.Venue),
		zap.String("pair", inputToken+"-"+outputToken),
		zap.String("estimated_output", best.EstimatedOutput.String()),
	)

	return models.RouteDecision{Venue: best.Venue, Quote: best}, nil
}

// ExecuteSwap executes the swap on the named venue.
func (r *Router) ExecuteSwap(ctx context.Context, venueName string, amount decimal.Decimal) (string, error) {
	v, ok := r.byName[venueName]
	if !ok {
		return "", fmt.Errorf("unknown venue %q", venueName)
	}

	txHash, err := v.Execute(ctx, amount)
	if err != nil {
		return "", fmt.Errorf("execute on %s: %w", venueName, err)
	}

	r.logger.Info("swap executed", zap.String("venue", venueName), zap.String("tx_hash", txHash))
	return txHash, nil
}
