package indicators

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"research-terminal/internal/models"
)

// SMA calculates Simple Moving Average.
type SMA struct {
	period int
}

// NewSMA creates a new SMA indicator.
func NewSMA(period int) *SMA {
	return &SMA{period: period}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA %d", s.period)
}

func (s *SMA) Period() int {
	return s.period
}

func (s *SMA) Calculate(candles []models.Candle) ([]Series, error) {
	if s.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < s.period {
		return nil, ErrInsufficientData
	}

	closes := closePrices(candles)
	result := nanSeries(len(candles))
	for i := s.period - 1; i < len(candles); i++ {
		result[i] = stat.Mean(closes[i-s.period+1:i+1], nil)
	}
	return []Series{{Name: s.Name(), Values: result}}, nil
}

// EMA calculates Exponential Moving Average.
type EMA struct {
	period int
}

// NewEMA creates a new EMA indicator.
func NewEMA(period int) *EMA {
	return &EMA{period: period}
}

func (e *EMA) Name() string {
	return fmt.Sprintf("EMA %d", e.period)
}

func (e *EMA) Period() int {
	return e.period
}

func (e *EMA) Calculate(candles []models.Candle) ([]Series, error) {
	if e.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < e.period {
		return nil, ErrInsufficientData
	}
	return []Series{{Name: e.Name(), Values: emaOf(closePrices(candles), 0, e.period)}}, nil
}

// MACD calculates Moving Average Convergence Divergence.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a MACD indicator, conventionally (12, 26, 9).
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD %d/%d/%d", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

func (m *MACD) Period() int {
	return m.slowPeriod + m.signalPeriod - 1
}

func (m *MACD) Calculate(candles []models.Candle) ([]Series, error) {
	if m.fastPeriod <= 0 || m.slowPeriod <= m.fastPeriod || m.signalPeriod <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < m.Period() {
		return nil, ErrInsufficientData
	}

	closes := closePrices(candles)
	fastEMA := emaOf(closes, 0, m.fastPeriod)
	slowEMA := emaOf(closes, 0, m.slowPeriod)

	// MACD line starts once the slow EMA exists.
	start := m.slowPeriod - 1
	macdLine := nanSeries(len(candles))
	for i := start; i < len(candles); i++ {
		macdLine[i] = fastEMA[i] - slowEMA[i]
	}

	signalLine := emaOf(macdLine, start, m.signalPeriod)
	histogram := nanSeries(len(candles))
	for i := m.Period() - 1; i < len(candles); i++ {
		histogram[i] = macdLine[i] - signalLine[i]
	}

	return []Series{
		{Name: "MACD", Values: macdLine},
		{Name: "Signal", Values: signalLine},
		{Name: "Histogram", Values: histogram},
	}, nil
}
