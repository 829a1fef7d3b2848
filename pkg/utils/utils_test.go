package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestRetryStopsOnSuccess(t *testing.T) {
	calls := 0
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}

	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	cfg := RetryConfig{
		MaxAttempts:   5,
		InitialDelay:  time.Millisecond,
		MaxDelay:      time.Millisecond,
		BackoffFactor: 2,
		ShouldRetry:   func(err error) bool { return !errors.Is(err, permanent) },
	}

	_, err := RetryWithResult(context.Background(), cfg, func() (int, error) {
		calls++
		return 0, permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("error = %v, want permanent", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Second, BackoffFactor: 1}
	err := Retry(ctx, cfg, func() error { return errors.New("fail") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCalculateBackoffProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("backoff never exceeds max delay", prop.ForAll(
		func(attempt int, factor float64) bool {
			d := CalculateBackoff(attempt, 10*time.Millisecond, 2*time.Second, factor)
			return d <= 2*time.Second && d >= 0
		},
		gen.IntRange(0, 30),
		gen.Float64Range(1.0, 4.0),
	))

	properties.Property("backoff is non-decreasing", prop.ForAll(
		func(attempt int) bool {
			a := CalculateBackoff(attempt, 10*time.Millisecond, time.Minute, 2)
			b := CalculateBackoff(attempt+1, 10*time.Millisecond, time.Minute, 2)
			return b >= a
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

func TestFormatCompact(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{1_234_567_890_123, "1.23T"},
		{2_500_000_000, "2.50B"},
		{-3_100_000, "-3.10M"},
		{12_345, "12.35K"},
		{999.5, "999.50"},
	}
	for _, tt := range tests {
		if got := FormatCompact(tt.in); got != tt.want {
			t.Errorf("FormatCompact(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSnakeUpper(t *testing.T) {
	tests := map[string]string{
		"Asset Class":             "ASSET_CLASS",
		" Current Invested Amount": "CURRENT_INVESTED_AMOUNT",
		"sector":                  "SECTOR",
		"risk-free.rate":          "RISK_FREE_RATE",
	}
	for in, want := range tests {
		if got := SnakeUpper(in); got != want {
			t.Errorf("SnakeUpper(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatPercent(t *testing.T) {
	if got := FormatPercent(1.5); got != "+1.50%" {
		t.Errorf("FormatPercent(1.5) = %q", got)
	}
	if got := FormatPercent(-2); got != "-2.00%" {
		t.Errorf("FormatPercent(-2) = %q", got)
	}
}
