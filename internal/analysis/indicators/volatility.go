package indicators

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"research-terminal/internal/models"
)

// ATR calculates the Average True Range.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR %d", a.period)
}

func (a *ATR) Period() int {
	return a.period + 1
}

func (a *ATR) Calculate(candles []models.Candle) ([]Series, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < a.Period() {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	tr := make([]float64, n)
	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < n; i++ {
		tr[i] = trueRange(candles[i], candles[i-1])
	}

	result := nanSeries(n)
	result[a.period-1] = stat.Mean(tr[:a.period], nil)
	p := float64(a.period)
	for i := a.period; i < n; i++ {
		result[i] = (result[i-1]*(p-1) + tr[i]) / p
	}
	return []Series{{Name: a.Name(), Values: result}}, nil
}

// BollingerBands calculates Bollinger Bands around a simple moving average.
type BollingerBands struct {
	period    int
	stdDevMul float64
}

// NewBollingerBands creates a new Bollinger Bands indicator.
func NewBollingerBands(period int, stdDevMul float64) *BollingerBands {
	return &BollingerBands{
		period:    period,
		stdDevMul: stdDevMul,
	}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BB %d/%.1f", b.period, b.stdDevMul)
}

func (b *BollingerBands) Period() int {
	return b.period
}

func (b *BollingerBands) Calculate(candles []models.Candle) ([]Series, error) {
	if b.period <= 1 || b.stdDevMul <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < b.period {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	closes := closePrices(candles)
	upper, middle, lower := nanSeries(n), nanSeries(n), nanSeries(n)
	percentB := nanSeries(n)

	for i := b.period - 1; i < n; i++ {
		window := closes[i-b.period+1 : i+1]
		mean, std := stat.PopMeanStdDev(window, nil)
		middle[i] = mean
		upper[i] = mean + b.stdDevMul*std
		lower[i] = mean - b.stdDevMul*std
		if width := upper[i] - lower[i]; width != 0 {
			percentB[i] = (closes[i] - lower[i]) / width
		}
	}

	return []Series{
		{Name: "BB Upper", Values: upper},
		{Name: "BB Middle", Values: middle},
		{Name: "BB Lower", Values: lower},
		{Name: "BB PctB", Values: percentB},
	}, nil
}
