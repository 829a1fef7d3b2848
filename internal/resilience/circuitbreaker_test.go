package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("provider down")

func newTestBreaker(threshold int) (*CircuitBreaker, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("coingecko", CircuitBreakerConfig{
		FailureThreshold: threshold,
		SuccessThreshold: 1,
		Cooldown:         time.Minute,
	})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func() error { return errDown }), errDown)
	}
	assert.Equal(t, CircuitOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.Equal(t, int64(1), cb.Stats().TotalRejected)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	cb, _ := newTestBreaker(2)
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errDown })
	require.NoError(t, cb.Execute(ctx, func() error { return nil }))
	_ = cb.Execute(ctx, func() error { return errDown })
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestHalfOpenTrialAfterCooldown(t *testing.T) {
	cb, now := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, func() error { return errDown })
	require.Equal(t, CircuitOpen, cb.State())

	*now = now.Add(2 * time.Minute)
	_ = cb.Execute(ctx, func() error { return errDown })
	assert.Equal(t, CircuitOpen, cb.State(), "a failed trial call reopens the circuit")

	*now = now.Add(2 * time.Minute)
	v, err := ExecuteWithResult(ctx, cb, func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestIsFailureFiltersErrors(t *testing.T) {
	notFound := errors.New("not found")
	cb := NewCircuitBreaker("defillama", CircuitBreakerConfig{
		FailureThreshold: 1,
		Cooldown:         time.Minute,
		IsFailure:        func(err error) bool { return !errors.Is(err, notFound) },
	})

	assert.ErrorIs(t, cb.Execute(context.Background(), func() error { return notFound }), notFound)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCancelledContextIsNotAFailure(t *testing.T) {
	cb, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = cb.Execute(ctx, func() error { return ctx.Err() })
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestRegistrySharesBreakers(t *testing.T) {
	r := NewRegistry(DefaultCircuitBreakerConfig())
	assert.Same(t, r.Get("yahoo"), r.Get("yahoo"))
	assert.NotSame(t, r.Get("yahoo"), r.Get("kite"))

	stats := r.AllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "kite", stats[0].Name)
	assert.Zero(t, stats[0].FailureRate())
}
