package indicators

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"research-terminal/internal/models"
)

// RSI calculates the Relative Strength Index with Wilder smoothing.
type RSI struct {
	period int
}

// NewRSI creates a new RSI indicator.
func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI %d", r.period)
}

func (r *RSI) Period() int {
	return r.period + 1
}

func (r *RSI) Calculate(candles []models.Candle) ([]Series, error) {
	if r.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < r.Period() {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	closes := closePrices(candles)
	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		if change := closes[i] - closes[i-1]; change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	result := nanSeries(n)
	avgGain := stat.Mean(gains[1:r.period+1], nil)
	avgLoss := stat.Mean(losses[1:r.period+1], nil)
	result[r.period] = rsi(avgGain, avgLoss)

	p := float64(r.period)
	for i := r.period + 1; i < n; i++ {
		avgGain = (avgGain*(p-1) + gains[i]) / p
		avgLoss = (avgLoss*(p-1) + losses[i]) / p
		result[i] = rsi(avgGain, avgLoss)
	}
	return []Series{{Name: r.Name(), Values: result}}, nil
}

func rsi(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
