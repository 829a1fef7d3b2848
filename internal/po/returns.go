package po

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"research-terminal/internal/errors"
	"research-terminal/internal/models"
)

// ReturnsReport describes what BuildReturns changed while cleaning prices.
type ReturnsReport struct {
	Dropped  []string // assets with too many missing prices
	Filled   int      // missing prices filled
	Outliers int      // returns replaced as outliers
}

// BuildReturns converts a price frame into periodic returns:
// assets whose share of missing prices exceeds MaxNaN are dropped, remaining gaps are filled
// with Method, prices are resampled to Freq, and returns above Threshold in absolute value
// are replaced by interpolation. Weekends of weekday-only assets do not count as missing;
// they hold the previous close.
func BuildReturns(frame *models.PriceFrame, opts Options) (*Returns, ReturnsReport, error) {
	var report ReturnsReport
	if frame == nil || len(frame.Dates) == 0 {
		return nil, report, errors.ErrNoData
	}

	rows := nonEmptyRows(frame)
	if len(rows) < 3 {
		return nil, report, fmt.Errorf("%w: %d price rows", errors.ErrInsufficientData, len(rows))
	}
	dates := make([]time.Time, len(rows))
	for i, r := range rows {
		dates[i] = frame.Dates[r]
	}

	var symbols []string
	var columns [][]float64
	for j, sym := range frame.Symbols {
		col := make([]float64, len(rows))
		for i, r := range rows {
			col[i] = frame.Values[r][j]
			if math.IsNaN(col[i]) || col[i] <= 0 {
				col[i] = math.NaN()
			}
		}

		// Weekend rows of an asset that never trades on weekends are closed days, not gaps.
		weekends := tradesWeekends(col, dates)
		missing, closed, open := 0, 0, 0
		for i, v := range col {
			onCalendar := weekends || !isWeekend(dates[i])
			if onCalendar {
				open++
			}
			if !math.IsNaN(v) {
				continue
			}
			if onCalendar {
				missing++
			} else {
				closed++
			}
		}
		if missing+closed == len(col) || open == 0 || float64(missing)/float64(open) > opts.MaxNaN {
			report.Dropped = append(report.Dropped, sym)
			continue
		}
		report.Filled += missing + closed
		if !weekends {
			carryOverClosedDays(col, dates)
		}
		fillMissing(col, dates, opts.Method)
		symbols = append(symbols, sym)
		columns = append(columns, col)
	}
	if len(symbols) == 0 {
		return nil, report, fmt.Errorf("%w: every asset exceeded max_nan=%.2f", errors.ErrInsufficientData, opts.MaxNaN)
	}

	keep := resampleRows(dates, opts.Freq)
	if len(keep) < 3 {
		return nil, report, fmt.Errorf("%w: %d observations at frequency %q", errors.ErrInsufficientData, len(keep), opts.Freq)
	}

	t := len(keep) - 1
	data := mat.NewDense(t, len(symbols), nil)
	outDates := make([]time.Time, t)
	for i := 1; i < len(keep); i++ {
		outDates[i-1] = dates[keep[i]]
	}

	for j, col := range columns {
		r := make([]float64, t)
		for i := 1; i < len(keep); i++ {
			prev, cur := col[keep[i-1]], col[keep[i]]
			if opts.LogReturns {
				r[i-1] = math.Log(cur / prev)
			} else {
				r[i-1] = cur/prev - 1
			}
		}
		if opts.Threshold > 0 {
			replaced := 0
			for i, v := range r {
				if math.Abs(v) > opts.Threshold {
					r[i] = math.NaN()
					replaced++
				}
			}
			if replaced == len(r) {
				return nil, report, fmt.Errorf("%w: every return of %s exceeds threshold %.2f",
					errors.ErrInsufficientData, symbols[j], opts.Threshold)
			}
			if replaced > 0 {
				fillMissing(r, outDates, opts.Method)
				report.Outliers += replaced
			}
		}
		data.SetCol(j, r)
	}

	return &Returns{Dates: outDates, Symbols: symbols, Data: data, Freq: opts.Freq}, report, nil
}

func nonEmptyRows(frame *models.PriceFrame) []int {
	var rows []int
	for i, row := range frame.Values {
		for _, v := range row {
			if !math.IsNaN(v) {
				rows = append(rows, i)
				break
			}
		}
	}
	return rows
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// tradesWeekends reports whether the asset has any price on a Saturday or Sunday.
func tradesWeekends(col []float64, dates []time.Time) bool {
	for i, v := range col {
		if !math.IsNaN(v) && isWeekend(dates[i]) {
			return true
		}
	}
	return false
}

// carryOverClosedDays holds the last close through weekend rows. Leading weekend rows are
// left for fillMissing.
func carryOverClosedDays(col []float64, dates []time.Time) {
	last := math.NaN()
	for i, v := range col {
		switch {
		case !math.IsNaN(v):
			last = v
		case isWeekend(dates[i]):
			col[i] = last
		}
	}
}

// resampleRows returns the index of the last row of every week or month. Daily keeps all rows.
func resampleRows(dates []time.Time, freq string) []int {
	if freq != "w" && freq != "m" {
		keep := make([]int, len(dates))
		for i := range dates {
			keep[i] = i
		}
		return keep
	}

	bucket := func(t time.Time) int {
		if freq == "w" {
			y, w := t.ISOWeek()
			return y*100 + w
		}
		return t.Year()*100 + int(t.Month())
	}

	var keep []int
	for i := range dates {
		if i == len(dates)-1 || bucket(dates[i]) != bucket(dates[i+1]) {
			keep = append(keep, i)
		}
	}
	return keep
}

// fillMissing replaces NaN values in place. Edges that cannot be interpolated take the
// nearest valid value.
func fillMissing(values []float64, dates []time.Time, method string) {
	valid := make([]int, 0, len(values))
	for i, v := range values {
		if !math.IsNaN(v) {
			valid = append(valid, i)
		}
	}
	if len(valid) == 0 || len(valid) == len(values) {
		return
	}

	first, last := valid[0], valid[len(valid)-1]
	for i := 0; i < first; i++ {
		values[i] = values[first]
	}
	for i := last + 1; i < len(values); i++ {
		values[i] = values[last]
	}

	for k := 0; k < len(valid)-1; k++ {
		lo, hi := valid[k], valid[k+1]
		if hi-lo < 2 {
			continue
		}
		for i := lo + 1; i < hi; i++ {
			values[i] = interpolate(values, dates, lo, hi, i, method)
		}
	}
}

func interpolate(values []float64, dates []time.Time, lo, hi, i int, method string) float64 {
	switch method {
	case "ffill":
		return values[lo]
	case "bfill":
		return values[hi]
	case "nearest":
		if i-lo <= hi-i {
			return values[lo]
		}
		return values[hi]
	case "time":
		span := dates[hi].Sub(dates[lo]).Seconds()
		if span > 0 {
			frac := dates[i].Sub(dates[lo]).Seconds() / span
			return values[lo] + frac*(values[hi]-values[lo])
		}
		fallthrough
	default: // linear
		frac := float64(i-lo) / float64(hi-lo)
		return values[lo] + frac*(values[hi]-values[lo])
	}
}
