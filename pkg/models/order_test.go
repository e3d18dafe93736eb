package models

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderPair(t *testing.T) {
	o := Order{InputToken: "SOL", OutputToken: "USDC", Amount: decimal.NewFromInt(10)}
	assert.Equal(t, "SOL-USDC", o.Pair())
}

func TestStatusEventTerminal(t *testing.T) {
	tests := []struct {
		name     string
		event    StatusEvent
		terminal bool
	}{
		{"confirmed", StatusEvent{Status: StatusConfirmed}, true},
		{"failed final", StatusEvent{Status: StatusFailed, Final: true}, true},
		{"failed with retry pending", StatusEvent{Status: StatusFailed}, false},
		{"routing", StatusEvent{Status: StatusRouting}, false},
		{"submitted", StatusEvent{Status: StatusSubmitted}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.event.Terminal())
		})
	}
}

func TestTruncateReason(t *testing.T) {
	short := "quote source unavailable"
	assert.Equal(t, short, TruncateReason(short))

	long := strings.Repeat("x", 1000)
	assert.Len(t, TruncateReason(long), MaxFailReasonLen)

	exact := strings.Repeat("y", MaxFailReasonLen)
	assert.Equal(t, exact, TruncateReason(exact))
}
