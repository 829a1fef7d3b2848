package export

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/vicanso/go-charts/v2"
)

// Slice is one labelled value of a pie chart.
type Slice struct {
	Label string
	Value float64
}

// PieChart renders a PNG pie of positive values, largest first.
func PieChart(title string, slices []Slice) ([]byte, error) {
	var kept []Slice
	for _, s := range slices {
		if s.Value > 0 {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("no positive values to plot")
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Value > kept[j].Value })

	var total float64
	for _, s := range kept {
		total += s.Value
	}
	values := make([]float64, len(kept))
	labels := make([]string, len(kept))
	for i, s := range kept {
		values[i] = s.Value
		labels[i] = fmt.Sprintf("%s (%.1f%%)", s.Label, s.Value/total*100)
	}

	p, err := charts.PieRender(
		values,
		charts.TitleTextOptionFunc(title),
		charts.LegendOptionFunc(charts.LegendOption{
			Data:   labels,
			Orient: charts.OrientVertical,
			Left:   charts.PositionLeft,
		}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(900),
		charts.HeightOptionFunc(600),
	)
	if err != nil {
		return nil, err
	}
	return p.Bytes()
}

// LineChart renders named series over shared x labels as a PNG.
func LineChart(title string, xLabels []string, names []string, series [][]float64) ([]byte, error) {
	if len(series) == 0 || len(xLabels) == 0 {
		return nil, fmt.Errorf("no data to plot")
	}
	split := len(xLabels) / 8
	if split < 1 {
		split = 1
	}

	p, err := charts.LineRender(series,
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: xLabels, BoundaryGap: charts.FalseFlag(), SplitNumber: split}),
		charts.LegendOptionFunc(charts.LegendOption{Data: names}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(900),
		charts.HeightOptionFunc(600),
	)
	if err != nil {
		return nil, err
	}
	return p.Bytes()
}

// Point is a portfolio in annualised risk/return space. Sharpe is only read for the
// tangency portfolio.
type Point struct {
	Risk   float64
	Return float64
	Sharpe float64
}

const frontierBands = 24

// FrontierChart plots annualised return against risk: the efficient frontier, the best
// random portfolio in each risk band, and the capital market line through the tangency
// portfolio. random and tangency may be empty.
func FrontierChart(title, riskLabel string, frontier, random []Point, tangency *Point) ([]byte, error) {
	labels, names, series, err := frontierSeries(riskLabel, frontier, random, tangency)
	if err != nil {
		return nil, err
	}
	return LineChart(title, labels, names, series)
}

// frontierSeries lays every series out on a shared grid of risk bands, in percent.
func frontierSeries(riskLabel string, frontier, random []Point, tangency *Point) ([]string, []string, [][]float64, error) {
	if len(frontier) == 0 {
		return nil, nil, nil, fmt.Errorf("frontier has no points")
	}
	front := append([]Point(nil), frontier...)
	sort.SliceStable(front, func(i, j int) bool { return front[i].Risk < front[j].Risk })

	lo, hi := front[0].Risk, front[len(front)-1].Risk
	for _, p := range random {
		lo, hi = math.Min(lo, p.Risk), math.Max(hi, p.Risk)
	}
	if tangency != nil {
		lo, hi = math.Min(lo, tangency.Risk), math.Max(hi, tangency.Risk)
	}
	if hi <= lo {
		hi = lo + 1e-9
	}
	grid := make([]float64, frontierBands)
	labels := make([]string, frontierBands)
	for k := range grid {
		grid[k] = lo + (hi-lo)*float64(k)/float64(frontierBands-1)
		labels[k] = fmt.Sprintf("%.1f%%", grid[k]*100)
	}

	curve := make([]float64, frontierBands)
	for k, x := range grid {
		curve[k] = interpolateReturn(front, x) * 100
	}
	names := []string{"Frontier (return % vs " + riskLabel + ")"}
	series := [][]float64{curve}

	if len(random) > 0 {
		best := make([]float64, frontierBands)
		seen := make([]bool, frontierBands)
		for _, p := range random {
			k := int(math.Round((p.Risk - lo) / (hi - lo) * float64(frontierBands-1)))
			if !seen[k] || p.Return > best[k] {
				best[k], seen[k] = p.Return, true
			}
		}
		var banded []Point
		for k := range best {
			if seen[k] {
				banded = append(banded, Point{Risk: grid[k], Return: best[k]})
			}
		}
		values := make([]float64, frontierBands)
		for k, x := range grid {
			values[k] = interpolateReturn(banded, x) * 100
		}
		names = append(names, fmt.Sprintf("Random portfolios (%d)", len(random)))
		series = append(series, values)
	}

	if tangency != nil {
		cml := make([]float64, frontierBands)
		for k, x := range grid {
			cml[k] = (tangency.Return + tangency.Sharpe*(x-tangency.Risk)) * 100
		}
		names = append(names, fmt.Sprintf("Tangency %.1f%% / %.1f%%", tangency.Risk*100, tangency.Return*100))
		series = append(series, cml)
	}
	return labels, names, series, nil
}

// interpolateReturn reads a piecewise linear curve of points sorted by risk, holding the end
// values outside its range.
func interpolateReturn(points []Point, x float64) float64 {
	if x <= points[0].Risk {
		return points[0].Return
	}
	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if x <= b.Risk {
			if b.Risk == a.Risk {
				return math.Max(a.Return, b.Return)
			}
			return a.Return + (b.Return-a.Return)*(x-a.Risk)/(b.Risk-a.Risk)
		}
	}
	return points[len(points)-1].Return
}

// SavePNG writes chart bytes under the exporter's directory and returns the path.
func (e *Exporter) SavePNG(command string, png []byte) (string, error) {
	if err := os.MkdirAll(e.Dir, 0755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := e.FileName(command, "png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", err
	}
	e.Logger.Info().Str("file", filepath.Base(path)).Int("bytes", len(png)).Msg("Chart saved")
	return path, nil
}
