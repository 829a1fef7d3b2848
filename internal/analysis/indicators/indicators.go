// Package indicators computes technical indicators over daily candles.
package indicators

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/stat"

	terrors "research-terminal/internal/errors"
	"research-terminal/internal/models"
)

var (
	// ErrInsufficientData is returned when there's not enough data for calculation.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod is returned when the period is invalid.
	ErrInvalidPeriod = errors.New("invalid period")
)

// Series is one output column of an indicator. Values before the warm-up period are NaN.
type Series struct {
	Name   string
	Values []float64
}

// Indicator computes one or more series aligned with the input candles.
type Indicator interface {
	Name() string
	Period() int
	Calculate(candles []models.Candle) ([]Series, error)
}

// Names lists the indicators Parse understands with their default periods.
var Names = []string{"sma20", "ema20", "rsi14", "macd", "bbands20", "atr14"}

// Parse reads an indicator spec such as "sma50", "rsi" or "bbands20".
// A missing period takes the indicator's default.
func Parse(spec string) (Indicator, error) {
	spec = strings.ToLower(strings.TrimSpace(spec))
	name := strings.TrimRight(spec, "0123456789")
	period := 0
	if digits := spec[len(name):]; digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil || n <= 0 {
			return nil, terrors.NewValidationError("indicator", spec, "invalid period")
		}
		period = n
	}
	withDefault := func(def int) int {
		if period == 0 {
			return def
		}
		return period
	}

	switch name {
	case "sma":
		return NewSMA(withDefault(20)), nil
	case "ema":
		return NewEMA(withDefault(20)), nil
	case "rsi":
		return NewRSI(withDefault(14)), nil
	case "macd":
		if period != 0 {
			return nil, terrors.NewValidationError("indicator", spec, "macd uses fixed 12/26/9 periods")
		}
		return NewMACD(12, 26, 9), nil
	case "bbands", "bb":
		return NewBollingerBands(withDefault(20), 2), nil
	case "atr":
		return NewATR(withDefault(14)), nil
	}
	return nil, terrors.NewValidationError("indicator", spec, "unknown indicator (use "+strings.Join(Names, ", ")+")")
}

// ParseList parses a comma separated list of indicator specs.
func ParseList(specs string) ([]Indicator, error) {
	var out []Indicator
	for _, s := range strings.Split(specs, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		ind, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, ind)
	}
	if len(out) == 0 {
		return nil, terrors.NewValidationError("indicators", specs, "no indicators given")
	}
	return out, nil
}

// Calculate runs the indicators concurrently and returns their series in the order given.
func Calculate(ctx context.Context, candles []models.Candle, inds []Indicator, workers int) ([]Series, error) {
	if workers <= 0 {
		workers = 4
	}
	results := make([][]Series, len(inds))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(workers).WithCancelOnError()
	for i, ind := range inds {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			series, err := ind.Calculate(candles)
			if err != nil {
				return fmt.Errorf("%s: %w", ind.Name(), err)
			}
			results[i] = series
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	var out []Series
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

// Table lays out the candles' dates and closes next to every series, newest first.
func Table(name string, candles []models.Candle, series []Series) *models.Table {
	headers := []string{"Date", "Close"}
	for _, s := range series {
		headers = append(headers, s.Name)
	}
	tbl := models.NewTable(name, headers...)
	for i := len(candles) - 1; i >= 0; i-- {
		row := []interface{}{candles[i].Timestamp.Format("2006-01-02"), candles[i].Close}
		for _, s := range series {
			row = append(row, s.Values[i])
		}
		tbl.AddRow(row...)
	}
	return tbl
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func closePrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return prices
}

// trueRange calculates the true range for a candle.
func trueRange(current, previous models.Candle) float64 {
	return math.Max(current.High-current.Low,
		math.Max(math.Abs(current.High-previous.Close), math.Abs(current.Low-previous.Close)))
}

// emaOf smooths values from start onward, seeding with the simple mean of the first period values.
func emaOf(values []float64, start, period int) []float64 {
	result := nanSeries(len(values))
	if period <= 0 || len(values)-start < period {
		return result
	}
	multiplier := 2.0 / float64(period+1)
	seed := start + period - 1
	result[seed] = stat.Mean(values[start:seed+1], nil)
	for i := seed + 1; i < len(values); i++ {
		result[i] = (values[i]-result[i-1])*multiplier + result[i-1]
	}
	return result
}
