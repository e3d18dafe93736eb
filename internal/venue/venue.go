// Package venue models the liquidity sources a swap can route through.
package venue

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/swapline/swapline/internal/config"
	"github.com/swapline/swapline/pkg/models"
)

// QuoteSource is a venue capable of quoting and executing a swap.
type QuoteSource interface {
	Name() string

	// Quote prices the given pair and amount. Completes after the
	// venue's simulated network latency.
	Quote(ctx context.Context, inputToken, outputToken string, amount decimal.Decimal) (models.Quote, error)

	// Execute performs the swap and returns the transaction hash.
	Execute(ctx context.Context, amount decimal.Decimal) (string, error)
}

// basePrices are the reference mid prices per pair. Unknown pairs fall
// back to defaultBasePrice so a quote is always producible.
var basePrices = map[string]decimal.Decimal{
	"SOL-USDC": decimal.RequireFromString("150.50"),
	"BTC-USDC": decimal.RequireFromString("70000.00"),
	"ETH-USDC": decimal.RequireFromString("3500.00"),
}

var defaultBasePrice = decimal.NewFromInt(100)

// BasePrice returns the reference price for a pair.
func BasePrice(inputToken, outputToken string) decimal.Decimal {
	if p, ok := basePrices[inputToken+"-"+outputToken]; ok {
		return p
	}
	return defaultBasePrice
}

// Mock is a simulated venue. Each quote applies a venue-specific random
// factor to the pair's base price after a fixed latency.
type Mock struct {
	cfg config.VenueConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock creates a simulated venue from its configuration.
func NewMock(cfg config.VenueConfig) *Mock {
	return &Mock{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *Mock) Name() string { return m.cfg.Name }

func (m *Mock) Quote(ctx context.Context, inputToken, outputToken string, amount decimal.Decimal) (models.Quote, error) {
	if err := sleep(ctx, m.cfg.QuoteDelay); err != nil {
		return models.Quote{}, err
	}

	factor := m.cfg.VarianceMin + m.randFloat()*(m.cfg.VarianceMax-m.cfg.VarianceMin)
	price := BasePrice(inputToken, outputToken).Mul(decimal.NewFromFloat(factor))

	return models.Quote{
		Venue:           m.cfg.Name,
		Price:           price,
		EstimatedOutput: price.Mul(amount),
	}, nil
}

func (m *Mock) Execute(ctx context.Context, amount decimal.Decimal) (string, error) {
	spread := m.cfg.ExecuteMaxDelay - m.cfg.ExecuteMinDelay
	delay := m.cfg.ExecuteMinDelay
	if spread > 0 {
		delay += time.Duration(m.randFloat() * float64(spread))
	}
	if err := sleep(ctx, delay); err != nil {
		return "", err
	}
	return mockTxHash(m.randHex(64)), nil
}

func (m *Mock) randFloat() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Float64()
}

func (m *Mock) randHex(n int) string {
	const hexDigits = "0123456789abcdef"
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = hexDigits[m.rng.Intn(len(hexDigits))]
	}
	return string(buf)
}

func mockTxHash(hex string) string {
	return "mock_tx_" + hex
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
