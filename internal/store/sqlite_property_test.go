package store

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"research-terminal/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "terminal.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Property: saving daily prices and reading the same window back returns them in date order.
func TestProperty_PriceCacheRoundTrip(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	sources := gen.OneConstOf("yahoo", "coingecko", "kite")
	run := 0

	properties.Property("prices read back equal to what was saved", prop.ForAll(
		func(source string, count int, basePrice float64) bool {
			ctx := context.Background()
			run++
			symbol := fmt.Sprintf("SYM%d", run)

			candles := generateTestCandles(count, basePrice)
			if err := store.SavePrices(ctx, symbol, source, candles); err != nil {
				t.Logf("Failed to save prices: %v", err)
				return false
			}

			retrieved, err := store.GetPrices(ctx, symbol, source, candles[0].Timestamp, candles[len(candles)-1].Timestamp)
			if err != nil {
				t.Logf("Failed to get prices: %v", err)
				return false
			}
			if len(retrieved) != len(candles) {
				t.Logf("Count mismatch: expected %d, got %d", len(candles), len(retrieved))
				return false
			}
			for i, orig := range candles {
				if !candlesEqual(orig, retrieved[i]) {
					t.Logf("Price mismatch at index %d: original=%+v, retrieved=%+v", i, orig, retrieved[i])
					return false
				}
			}
			return true
		},
		sources,
		gen.IntRange(1, 30),
		gen.Float64Range(1, 5000),
	))

	properties.Property("saving the same day twice keeps one row", prop.ForAll(
		func(first, second float64) bool {
			ctx := context.Background()
			run++
			symbol := fmt.Sprintf("DUP%d", run)
			day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

			_ = store.SavePrices(ctx, symbol, "yahoo", []models.Candle{{Timestamp: day, Close: first}})
			_ = store.SavePrices(ctx, symbol, "yahoo", []models.Candle{{Timestamp: day, Close: second}})
			got, err := store.GetPrices(ctx, symbol, "yahoo", day, day)
			return err == nil && len(got) == 1 && got[0].Close == second
		},
		gen.Float64Range(1, 100),
		gen.Float64Range(1, 100),
	))

	properties.TestingRun(t)
}

// generateTestCandles creates consecutive daily candles with valid OHLC relationships.
func generateTestCandles(count int, basePrice float64) []models.Candle {
	candles := make([]models.Candle, count)
	baseTime := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < count; i++ {
		variation := float64(i%10) * 0.01 * basePrice
		open := basePrice + variation
		close := basePrice + variation*0.5

		candles[i] = models.Candle{
			Timestamp: baseTime.AddDate(0, 0, i),
			Open:      roundToDecimal(open, 2),
			High:      roundToDecimal(math.Max(open, close)*1.01, 2),
			Low:       roundToDecimal(math.Min(open, close)*0.99, 2),
			Close:     roundToDecimal(close, 2),
			Volume:    float64(1000 + i*100),
		}
	}

	return candles
}

func roundToDecimal(val float64, places int) float64 {
	multiplier := math.Pow(10, float64(places))
	return math.Round(val*multiplier) / multiplier
}

func candlesEqual(a, b models.Candle) bool {
	const tolerance = 1e-9
	return a.Timestamp.Equal(b.Timestamp) &&
		math.Abs(a.Open-b.Open) <= tolerance &&
		math.Abs(a.High-b.High) <= tolerance &&
		math.Abs(a.Low-b.Low) <= tolerance &&
		math.Abs(a.Close-b.Close) <= tolerance &&
		a.Volume == b.Volume
}
