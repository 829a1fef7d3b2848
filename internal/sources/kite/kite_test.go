package kite

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"research-terminal/internal/errors"
	"research-terminal/internal/models"
)

func TestSplitSymbol(t *testing.T) {
	tests := []struct {
		in       string
		exchange string
		symbol   string
		ok       bool
	}{
		{"NSE:INFY", "NSE", "INFY", true},
		{"bse:reliance", "BSE", "RELIANCE", true},
		{"NYSE:IBM", "", "", false},
		{"INFY", "", "", false},
		{"NSE:", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ex, sym, ok := SplitSymbol(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.exchange, ex)
			assert.Equal(t, tt.symbol, sym)
		})
	}
}

func TestHistoryRequiresCredentials(t *testing.T) {
	c := New("key", "", zerolog.Nop())
	assert.False(t, c.Configured())

	_, err := c.History(context.Background(), "NSE:INFY", models.Range{Period: "1y"})
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
}

func TestHistoryRejectsUnqualifiedSymbol(t *testing.T) {
	c := New("key", "token", zerolog.Nop())
	assert.True(t, c.Configured())

	_, err := c.History(context.Background(), "INFY", models.Range{Period: "1y"})
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}
