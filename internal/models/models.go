// Package models provides domain models shared by the data sources, the optimizer and the CLI.
package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Source identifies where a price series came from.
type Source string

const (
	SourceYahoo     Source = "yahoo"
	SourceCoinGecko Source = "coingecko"
	SourceKite      Source = "kite"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Range selects a window of history either by a lookback period or by explicit dates.
type Range struct {
	Period   string // 1mo 3mo 6mo 1y 2y 3y 5y 10y ytd max
	Start    time.Time
	End      time.Time
	Interval string // 1d, 1wk, 1mo
}

// Bounds resolves the range into concrete start and end times relative to now.
func (r Range) Bounds(now time.Time) (time.Time, time.Time, error) {
	end := r.End
	if end.IsZero() {
		end = now
	}
	if !r.Start.IsZero() {
		if !r.Start.Before(end) {
			return time.Time{}, time.Time{}, fmt.Errorf("start %s is not before end %s",
				r.Start.Format("2006-01-02"), end.Format("2006-01-02"))
		}
		return r.Start, end, nil
	}

	switch strings.ToLower(r.Period) {
	case "1mo":
		return end.AddDate(0, -1, 0), end, nil
	case "3mo":
		return end.AddDate(0, -3, 0), end, nil
	case "6mo":
		return end.AddDate(0, -6, 0), end, nil
	case "1y":
		return end.AddDate(-1, 0, 0), end, nil
	case "2y":
		return end.AddDate(-2, 0, 0), end, nil
	case "", "3y":
		return end.AddDate(-3, 0, 0), end, nil
	case "5y":
		return end.AddDate(-5, 0, 0), end, nil
	case "10y":
		return end.AddDate(-10, 0, 0), end, nil
	case "ytd":
		return time.Date(end.Year(), 1, 1, 0, 0, 0, 0, end.Location()), end, nil
	case "max":
		return time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), end, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", r.Period)
	}
}

// PriceFrame is a date by symbol matrix of closing prices. Missing observations are NaN.
type PriceFrame struct {
	Dates   []time.Time
	Symbols []string
	Values  [][]float64 // Values[row][col]
}

// Column returns the closes for one symbol.
func (f *PriceFrame) Column(j int) []float64 {
	col := make([]float64, len(f.Dates))
	for i := range f.Dates {
		col[i] = f.Values[i][j]
	}
	return col
}

// AlignCloses builds a frame from per-symbol candles on the union of their dates.
func AlignCloses(series map[string][]Candle, symbols []string) *PriceFrame {
	index := make(map[int64]struct{})
	for _, sym := range symbols {
		for _, c := range series[sym] {
			index[dayKey(c.Timestamp)] = struct{}{}
		}
	}

	keys := make([]int64, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	row := make(map[int64]int, len(keys))
	frame := &PriceFrame{
		Dates:   make([]time.Time, len(keys)),
		Symbols: append([]string(nil), symbols...),
		Values:  make([][]float64, len(keys)),
	}
	for i, k := range keys {
		row[k] = i
		frame.Dates[i] = time.Unix(k, 0).UTC()
		frame.Values[i] = make([]float64, len(symbols))
		for j := range symbols {
			frame.Values[i][j] = math.NaN()
		}
	}

	for j, sym := range symbols {
		for _, c := range series[sym] {
			frame.Values[row[dayKey(c.Timestamp)]][j] = c.Close
		}
	}
	return frame
}

func dayKey(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// Article is a newsletter post.
type Article struct {
	Source    string
	Title     string
	Subtitle  string
	URL       string
	Published time.Time
}
