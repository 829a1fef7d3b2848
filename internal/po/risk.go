package po

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"research-terminal/internal/errors"
)

// RiskMeasure evaluates the risk of a series of portfolio returns.
// alpha is the tail probability, rf the per-period risk free rate.
type RiskMeasure struct {
	Name        string
	Description string
	// Dispersion measures scale with the square root of time when annualised.
	Dispersion bool
	Fn         func(r []float64, alpha, rf float64) float64
}

// Annualize scales a per-period value of the measure to annual units.
func (m RiskMeasure) Annualize(v, periods float64) float64 {
	if m.Dispersion {
		return v * math.Sqrt(periods)
	}
	return v
}

var riskMeasures = map[string]RiskMeasure{
	"MV":   {Name: "MV", Description: "Standard deviation", Dispersion: true, Fn: stdDev},
	"MAD":  {Name: "MAD", Description: "Mean absolute deviation", Dispersion: true, Fn: meanAbsDev},
	"MSV":  {Name: "MSV", Description: "Semi standard deviation", Dispersion: true, Fn: semiDev},
	"FLPM": {Name: "FLPM", Description: "First lower partial moment", Dispersion: true, Fn: firstLPM},
	"SLPM": {Name: "SLPM", Description: "Second lower partial moment", Dispersion: true, Fn: secondLPM},
	"VaR":  {Name: "VaR", Description: "Historical value at risk", Fn: valueAtRisk},
	"CVaR": {Name: "CVaR", Description: "Conditional value at risk", Fn: conditionalVaR},
	"EVaR": {Name: "EVaR", Description: "Entropic value at risk", Fn: entropicVaR},
	"WR":   {Name: "WR", Description: "Worst realization", Fn: worstRealization},
	"MDD":  {Name: "MDD", Description: "Maximum drawdown of uncompounded returns", Fn: maxDrawdown},
	"ADD":  {Name: "ADD", Description: "Average drawdown of uncompounded returns", Fn: avgDrawdown},
	"CDaR": {Name: "CDaR", Description: "Conditional drawdown at risk", Fn: conditionalDaR},
	"UCI":  {Name: "UCI", Description: "Ulcer index", Fn: ulcerIndex},
	"EDaR": {Name: "EDaR", Description: "Entropic drawdown at risk", Fn: entropicDaR},
}

// LookupRiskMeasure finds a risk measure by name, case-insensitively.
func LookupRiskMeasure(name string) (RiskMeasure, error) {
	for k, m := range riskMeasures {
		if strings.EqualFold(k, name) {
			return m, nil
		}
	}
	return RiskMeasure{}, fmt.Errorf("%w: %s", errors.ErrUnknownRiskMeasure, name)
}

func stdDev(r []float64, _, _ float64) float64 {
	return stat.StdDev(r, nil)
}

func meanAbsDev(r []float64, _, _ float64) float64 {
	m := stat.Mean(r, nil)
	var s float64
	for _, v := range r {
		s += math.Abs(v - m)
	}
	return s / float64(len(r))
}

func semiDev(r []float64, _, _ float64) float64 {
	m := stat.Mean(r, nil)
	var s float64
	for _, v := range r {
		if d := v - m; d < 0 {
			s += d * d
		}
	}
	return math.Sqrt(s / float64(len(r)-1))
}

func firstLPM(r []float64, _, rf float64) float64 {
	var s float64
	for _, v := range r {
		s += math.Max(rf-v, 0)
	}
	return s / float64(len(r))
}

func secondLPM(r []float64, _, rf float64) float64 {
	var s float64
	for _, v := range r {
		d := math.Max(rf-v, 0)
		s += d * d
	}
	return math.Sqrt(s / float64(len(r)-1))
}

// tailLoss returns VaR and CVaR of losses -r at tail probability alpha.
func tailLoss(losses []float64, alpha float64) (float64, float64) {
	sorted := append([]float64(nil), losses...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	k := int(math.Ceil(alpha * float64(len(sorted))))
	if k < 1 {
		k = 1
	}
	if k > len(sorted) {
		k = len(sorted)
	}
	var s float64
	for _, v := range sorted[:k] {
		s += v
	}
	return sorted[k-1], s / float64(k)
}

func negate(r []float64) []float64 {
	out := make([]float64, len(r))
	for i, v := range r {
		out[i] = -v
	}
	return out
}

func valueAtRisk(r []float64, alpha, _ float64) float64 {
	v, _ := tailLoss(negate(r), alpha)
	return v
}

func conditionalVaR(r []float64, alpha, _ float64) float64 {
	_, c := tailLoss(negate(r), alpha)
	return c
}

func worstRealization(r []float64, _, _ float64) float64 {
	worst := math.Inf(-1)
	for _, v := range r {
		worst = math.Max(worst, -v)
	}
	return worst
}

// entropic computes inf_{z>0} z*ln(mean(exp(x/z))/alpha) over losses x.
func entropic(x []float64, alpha float64) float64 {
	scale := 0.0
	for _, v := range x {
		scale = math.Max(scale, math.Abs(v))
	}
	if scale == 0 {
		return 0
	}

	value := func(z float64) float64 {
		// log-sum-exp keeps exp(x/z) finite for small z
		m := math.Inf(-1)
		for _, v := range x {
			m = math.Max(m, v/z)
		}
		var s float64
		for _, v := range x {
			s += math.Exp(v/z - m)
		}
		return z * (m + math.Log(s/float64(len(x))) - math.Log(alpha))
	}

	problem := optimize.Problem{
		Func: func(p []float64) float64 { return value(scale * math.Exp(p[0])) },
	}
	result, err := optimize.Minimize(problem, []float64{0}, &optimize.Settings{MajorIterations: 200}, &optimize.NelderMead{})

	best := value(scale)
	if err == nil && result != nil && result.F < best {
		best = result.F
	}
	// EVaR is bounded above by the worst loss
	worst := math.Inf(-1)
	for _, v := range x {
		worst = math.Max(worst, v)
	}
	return math.Min(best, worst)
}

func entropicVaR(r []float64, alpha, _ float64) float64 {
	return entropic(negate(r), alpha)
}

// drawdowns returns the drawdown series of uncompounded cumulative returns, starting at zero.
func drawdowns(r []float64) []float64 {
	out := make([]float64, len(r))
	var cum, peak float64
	for i, v := range r {
		cum += v
		peak = math.Max(peak, cum)
		out[i] = peak - cum
	}
	return out
}

func maxDrawdown(r []float64, _, _ float64) float64 {
	var m float64
	for _, d := range drawdowns(r) {
		m = math.Max(m, d)
	}
	return m
}

func avgDrawdown(r []float64, _, _ float64) float64 {
	return stat.Mean(drawdowns(r), nil)
}

func conditionalDaR(r []float64, alpha, _ float64) float64 {
	_, c := tailLoss(drawdowns(r), alpha)
	return c
}

func ulcerIndex(r []float64, _, _ float64) float64 {
	var s float64
	dd := drawdowns(r)
	for _, d := range dd {
		s += d * d
	}
	return math.Sqrt(s / float64(len(dd)))
}

func entropicDaR(r []float64, alpha, _ float64) float64 {
	return entropic(drawdowns(r), alpha)
}
