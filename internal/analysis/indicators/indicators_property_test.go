package indicators

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	terrors "research-terminal/internal/errors"
	"research-terminal/internal/models"
)

// candlesFromCloses builds daily candles with a small range around each close.
func candlesFromCloses(closes []float64) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]models.Candle, len(closes))
	for i, c := range closes {
		candles[i] = models.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000,
		}
	}
	return candles
}

func closesGen(minLen int) gopter.Gen {
	return gen.SliceOfN(minLen+40, gen.Float64Range(10, 1000))
}

func TestIndicatorBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("RSI stays within [0, 100]", prop.ForAll(
		func(closes []float64) bool {
			series, err := NewRSI(14).Calculate(candlesFromCloses(closes))
			if err != nil {
				return false
			}
			for _, v := range series[0].Values {
				if !math.IsNaN(v) && (v < 0 || v > 100) {
					return false
				}
			}
			return true
		},
		closesGen(15),
	))

	properties.Property("Bollinger lower <= middle <= upper", prop.ForAll(
		func(closes []float64) bool {
			series, err := NewBollingerBands(20, 2).Calculate(candlesFromCloses(closes))
			if err != nil {
				return false
			}
			upper, middle, lower := series[0].Values, series[1].Values, series[2].Values
			for i := range upper {
				if math.IsNaN(middle[i]) {
					continue
				}
				if lower[i] > middle[i]+1e-9 || middle[i] > upper[i]+1e-9 {
					return false
				}
			}
			return true
		},
		closesGen(20),
	))

	properties.Property("ATR is non-negative", prop.ForAll(
		func(closes []float64) bool {
			series, err := NewATR(14).Calculate(candlesFromCloses(closes))
			if err != nil {
				return false
			}
			for _, v := range series[0].Values {
				if !math.IsNaN(v) && v < 0 {
					return false
				}
			}
			return true
		},
		closesGen(15),
	))

	properties.Property("moving averages of a constant series equal the constant", prop.ForAll(
		func(price float64, n int) bool {
			closes := make([]float64, n)
			for i := range closes {
				closes[i] = price
			}
			candles := candlesFromCloses(closes)
			for _, ind := range []Indicator{NewSMA(10), NewEMA(10)} {
				series, err := ind.Calculate(candles)
				if err != nil {
					return false
				}
				for _, v := range series[0].Values {
					if !math.IsNaN(v) && math.Abs(v-price) > 1e-9*price {
						return false
					}
				}
			}
			return true
		},
		gen.Float64Range(1, 10000),
		gen.IntRange(10, 80),
	))

	properties.Property("series are aligned with the candles", prop.ForAll(
		func(closes []float64) bool {
			inds, err := ParseList("sma20,ema20,rsi14,macd,bbands20,atr14")
			if err != nil {
				return false
			}
			candles := candlesFromCloses(closes)
			series, err := Calculate(context.Background(), candles, inds, 3)
			if err != nil {
				return false
			}
			for _, s := range series {
				if len(s.Values) != len(candles) {
					return false
				}
				if !math.IsNaN(s.Values[0]) {
					return false
				}
			}
			return true
		},
		closesGen(34),
	))

	properties.TestingRun(t)
}

func TestSMAWarmUp(t *testing.T) {
	candles := candlesFromCloses([]float64{1, 2, 3, 4, 5})
	series, err := NewSMA(3).Calculate(candles)
	require.NoError(t, err)
	require.Len(t, series, 1)

	values := series[0].Values
	assert.True(t, math.IsNaN(values[0]))
	assert.True(t, math.IsNaN(values[1]))
	assert.InDelta(t, 2.0, values[2], 1e-12)
	assert.InDelta(t, 3.0, values[3], 1e-12)
	assert.InDelta(t, 4.0, values[4], 1e-12)
	assert.Equal(t, "SMA 3", series[0].Name)
}

func TestEMASeededWithMean(t *testing.T) {
	candles := candlesFromCloses([]float64{2, 4, 6, 8})
	series, err := NewEMA(3).Calculate(candles)
	require.NoError(t, err)

	values := series[0].Values
	assert.InDelta(t, 4.0, values[2], 1e-12)
	// multiplier 2/(3+1) = 0.5
	assert.InDelta(t, 6.0, values[3], 1e-12)
}

func TestRSIExtremes(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	series, err := NewRSI(14).Calculate(candlesFromCloses(rising))
	require.NoError(t, err)
	assert.InDelta(t, 100.0, series[0].Values[19], 1e-9)

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 50
	}
	series, err = NewRSI(14).Calculate(candlesFromCloses(flat))
	require.NoError(t, err)
	assert.InDelta(t, 50.0, series[0].Values[19], 1e-9)
}

func TestMACDOutputs(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)/5)*10
	}
	series, err := NewMACD(12, 26, 9).Calculate(candlesFromCloses(closes))
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, "MACD", series[0].Name)
	assert.Equal(t, "Signal", series[1].Name)
	assert.Equal(t, "Histogram", series[2].Name)

	assert.True(t, math.IsNaN(series[0].Values[24]))
	assert.False(t, math.IsNaN(series[0].Values[25]))
	assert.True(t, math.IsNaN(series[2].Values[32]))
	assert.False(t, math.IsNaN(series[2].Values[33]))
	assert.InDelta(t, series[0].Values[50]-series[1].Values[50], series[2].Values[50], 1e-12)
}

func TestInsufficientData(t *testing.T) {
	candles := candlesFromCloses([]float64{1, 2, 3})
	for _, ind := range []Indicator{NewSMA(5), NewEMA(5), NewRSI(14), NewMACD(12, 26, 9), NewBollingerBands(20, 2), NewATR(14)} {
		_, err := ind.Calculate(candles)
		assert.ErrorIs(t, err, ErrInsufficientData, ind.Name())
	}

	_, err := NewSMA(0).Calculate(candles)
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestParse(t *testing.T) {
	tests := []struct {
		spec   string
		name   string
		period int
	}{
		{"sma", "SMA 20", 20},
		{"SMA50", "SMA 50", 50},
		{" ema9 ", "EMA 9", 9},
		{"rsi", "RSI 14", 15},
		{"macd", "MACD 12/26/9", 34},
		{"bb", "BB 20/2.0", 20},
		{"bbands10", "BB 10/2.0", 10},
		{"atr7", "ATR 7", 8},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			ind, err := Parse(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.name, ind.Name())
			assert.Equal(t, tt.period, ind.Period())
		})
	}

	for _, bad := range []string{"vwap", "macd5", "sma0", ""} {
		_, err := Parse(bad)
		var verr *terrors.ValidationError
		assert.True(t, terrors.As(err, &verr), "spec %q", bad)
	}
}

func TestParseList(t *testing.T) {
	inds, err := ParseList("sma20, rsi14,,macd")
	require.NoError(t, err)
	require.Len(t, inds, 3)
	assert.Equal(t, "RSI 14", inds[1].Name())

	_, err = ParseList(" , ")
	assert.Error(t, err)

	_, err = ParseList("sma20,foo")
	assert.Error(t, err)
}

func TestCalculateReportsFailingIndicator(t *testing.T) {
	candles := candlesFromCloses([]float64{1, 2, 3, 4, 5})
	_, err := Calculate(context.Background(), candles, []Indicator{NewSMA(3), NewRSI(14)}, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Contains(t, err.Error(), "RSI 14")
}

func TestTableNewestFirst(t *testing.T) {
	candles := candlesFromCloses([]float64{1, 2, 3, 4})
	series, err := NewSMA(2).Calculate(candles)
	require.NoError(t, err)

	tbl := Table("TEST", candles, series)
	assert.Equal(t, []string{"Date", "Close", "SMA 2"}, tbl.Headers)
	require.Equal(t, 4, tbl.Len())
	assert.Equal(t, "2024-01-04", tbl.Rows[0][0])
	assert.InDelta(t, 3.5, tbl.Rows[0][2].(float64), 1e-12)
	assert.True(t, math.IsNaN(tbl.Rows[3][2].(float64)))
}
