package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/swapline/swapline/pkg/models"
)

func newTestStore(t *testing.T) *DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	s, err := New(db, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s
}

func sampleOrder() models.Order {
	return models.Order{
		ID:          uuid.NewString(),
		InputToken:  "SOL",
		OutputToken: "USDC",
		Amount:      decimal.NewFromInt(10),
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSaveConfirmedRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	order := sampleOrder()

	price := decimal.NewFromInt(150)
	output := decimal.NewFromInt(1500)
	require.NoError(t, s.SaveConfirmed(ctx, order, price, output, "mock_tx_abc"))

	rec, err := s.Find(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, RecordConfirmed, rec.Status)
	assert.Equal(t, "SOL", rec.InputToken)
	assert.Equal(t, "USDC", rec.OutputToken)
	assert.True(t, rec.InputAmount.Equal(order.Amount))
	assert.True(t, rec.ExecutedPrice.Equal(price))
	assert.True(t, rec.FinalOutput.Equal(output))
	assert.Equal(t, "mock_tx_abc", rec.TransactionHash)
	assert.Empty(t, rec.FailReason)
}

func TestSaveFailedTruncatesReason(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	order := sampleOrder()

	require.NoError(t, s.SaveFailed(ctx, order, strings.Repeat("e", 400)))

	rec, err := s.Find(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, RecordFailed, rec.Status)
	assert.Len(t, rec.FailReason, models.MaxFailReasonLen)
	assert.Empty(t, rec.TransactionHash)
}

func TestFindMissingOrder(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Find(context.Background(), "no-such-order")
	assert.Error(t, err)
}

type failingSink struct{ calls int }

func (f *failingSink) SaveConfirmed(context.Context, models.Order, decimal.Decimal, decimal.Decimal, string) error {
	f.calls++
	return assert.AnError
}

func (f *failingSink) SaveFailed(context.Context, models.Order, string) error {
	f.calls++
	return assert.AnError
}

func TestMultiInvokesAllSinks(t *testing.T) {
	s := newTestStore(t)
	bad := &failingSink{}
	multi := Multi{bad, s}

	order := sampleOrder()
	err := multi.SaveConfirmed(context.Background(), order, decimal.NewFromInt(150), decimal.NewFromInt(1500), "mock_tx_x")
	assert.Error(t, err)
	assert.Equal(t, 1, bad.calls)

	// The later sink still received the record.
	rec, findErr := s.Find(context.Background(), order.ID)
	require.NoError(t, findErr)
	assert.Equal(t, RecordConfirmed, rec.Status)
}
