package po

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"research-terminal/internal/models"
)

// assetSpec drives a synthetic geometric random walk.
type assetSpec struct {
	symbol string
	drift  float64 // daily
	vol    float64 // daily
}

var testAssets = []assetSpec{
	{"LOWVOL", 0.0002, 0.004},
	{"MIDVOL", 0.0004, 0.010},
	{"HIGHVOL", 0.0008, 0.020},
	{"CYCLIC", 0.0003, 0.012},
}

// syntheticFrame builds business-day close prices. Assets share a common factor so the
// correlations are non-trivial.
func syntheticFrame(assets []assetSpec, days int, seed uint64) *models.PriceFrame {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	frame := &models.PriceFrame{}
	for _, a := range assets {
		frame.Symbols = append(frame.Symbols, a.symbol)
	}

	prices := make([]float64, len(assets))
	for i := range prices {
		prices[i] = 100
	}
	date := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	for len(frame.Dates) < days {
		if wd := date.Weekday(); wd != time.Saturday && wd != time.Sunday {
			market := rng.NormFloat64()
			row := make([]float64, len(assets))
			for i, a := range assets {
				shock := 0.5*market + math.Sqrt(0.75)*rng.NormFloat64()
				prices[i] *= math.Exp(a.drift + a.vol*shock)
				row[i] = prices[i]
			}
			frame.Dates = append(frame.Dates, date)
			frame.Values = append(frame.Values, row)
		}
		date = date.AddDate(0, 0, 1)
	}
	return frame
}

// stubPrices serves a fixed frame, restricted to the requested symbols.
type stubPrices struct {
	frame *models.PriceFrame
	calls int
}

func (s *stubPrices) Frame(_ context.Context, symbols []string, _ models.Range) (*models.PriceFrame, error) {
	s.calls++
	index := make(map[string]int, len(s.frame.Symbols))
	for j, sym := range s.frame.Symbols {
		index[sym] = j
	}
	out := &models.PriceFrame{Dates: s.frame.Dates, Symbols: symbols}
	for _, row := range s.frame.Values {
		values := make([]float64, len(symbols))
		for k, sym := range symbols {
			if j, ok := index[sym]; ok {
				values[k] = row[j]
			} else {
				values[k] = math.NaN()
			}
		}
		out.Values = append(out.Values, values)
	}
	return out, nil
}

func newTestEngine(symbols ...string) *Engine {
	if len(symbols) == 0 {
		for _, a := range testAssets {
			symbols = append(symbols, a.symbol)
		}
	}
	e, err := NewEngine(EngineOptions{Symbols: symbols})
	if err != nil {
		panic(err)
	}
	return e
}

// testModel builds a model over the synthetic assets with default options.
func testModel(overrides map[string]interface{}) (*model, Options) {
	opts, _, err := ValidateInputs(nil, overrides)
	if err != nil {
		panic(err)
	}
	r, _, err := BuildReturns(syntheticFrame(testAssets, 400, 7), opts)
	if err != nil {
		panic(err)
	}
	m, err := newModel(r, opts)
	if err != nil {
		panic(err)
	}
	return m, opts
}

func sum(w []float64) float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}
