package po

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distmv"

	"research-terminal/internal/errors"
)

// objectiveFunc builds the function minimised for a mean-risk objective, including the
// target return and target risk penalties.
func objectiveFunc(m *model, objective string, opts Options) func(w []float64) float64 {
	return func(w []float64) float64 {
		ret := m.ret(w)
		risk := m.risk(w)

		var f float64
		switch objective {
		case "Utility":
			f = -(ret - opts.RiskAversion*risk)
		case "Sharpe":
			if risk <= 1e-12 {
				return math.Inf(1)
			}
			f = -(ret - m.rfAnnual) / risk
		case "MaxRet":
			f = -ret
		default: // MinRisk
			f = risk
		}

		if opts.TargetReturn >= 0 {
			f += penalty(opts.TargetReturn - ret)
		}
		if opts.TargetRisk >= 0 {
			f += penalty(risk - opts.TargetRisk)
		}
		return f
	}
}

// meanRiskWeights solves a long-only mean-risk problem for the objective.
func meanRiskWeights(m *model, objective string, opts Options, w0 []float64) ([]float64, error) {
	if w0 == nil {
		w0 = equalWeights(m.n())
	}

	// Without a risk budget the maximum return portfolio is the best single asset.
	if objective == "MaxRet" && opts.TargetRisk < 0 && opts.TargetReturn < 0 {
		w := make([]float64, m.n())
		w[floats.MaxIdx(m.mu)] = 1
		return w, nil
	}

	w, err := solveSimplex(objective, objectiveFunc(m, objective, opts), w0, m.smooth())
	if err != nil {
		return nil, err
	}

	if opts.TargetReturn >= 0 && m.ret(w) < opts.TargetReturn-1e-3 {
		return nil, errors.NewOptimizationError(objective, "target return is not attainable", nil)
	}
	if opts.TargetRisk >= 0 && m.risk(w) > opts.TargetRisk+1e-3 {
		return nil, errors.NewOptimizationError(objective, "target risk is not attainable", nil)
	}
	return w, nil
}

// inverseVolWeights weights each asset by the inverse of its volatility.
func inverseVolWeights(m *model) []float64 {
	vols := m.assetVols()
	w := make([]float64, len(vols))
	for i, v := range vols {
		if v > 0 {
			w[i] = 1 / v
		}
	}
	return clean(w)
}

// maxDiversificationWeights maximises the diversification ratio w'σ / sqrt(w'Σw).
func maxDiversificationWeights(m *model) ([]float64, error) {
	vols := m.assetVols()
	f := func(w []float64) float64 {
		vol := m.vol(w)
		if vol <= 1e-12 {
			return math.Inf(1)
		}
		return -floats.Dot(w, vols) / vol
	}
	return solveSimplex("MaxDiversification", f, inverseVolWeights(m), true)
}

// maxDecorrelationWeights minimises w'Cw over the correlation matrix C.
func maxDecorrelationWeights(m *model) ([]float64, error) {
	corr := CorrelationFromCovariance(m.cov)
	inner := &model{cov: corr, periods: 1}
	return solveSimplex("MaxDecorrelation", inner.variance, equalWeights(m.n()), true)
}

// riskParityWeights finds equal risk contributions under the selected risk measure by
// minimising risk(w) - Σ b_i ln(w_i) over positive weights, then refining the weights
// multiplicatively against the measured contributions.
func riskParityWeights(m *model) ([]float64, error) {
	n := m.n()
	if n == 1 {
		return []float64{1}, nil
	}
	budget := 1 / float64(n)

	f := func(y []float64) float64 {
		w := make([]float64, n)
		var logs float64
		for i, v := range y {
			w[i] = math.Exp(v)
			logs += budget * v
		}
		return m.risk(w) - logs
	}

	y0 := logits(inverseVolWeights(m))
	y, err := minimize("RiskParity", f, y0, m.smooth())
	if err != nil {
		return nil, err
	}
	w := make([]float64, n)
	for i, v := range y {
		w[i] = math.Exp(v)
	}
	return refineRiskParity(m, clean(w)), nil
}

// refineRiskParity scales each weight by sqrt(budget / contribution) while that lowers the
// largest deviation from the equal budget.
func refineRiskParity(m *model, w []float64) []float64 {
	budget := 1 / float64(len(w))
	best, bestDev := w, parityDeviation(riskContributions(m, w), budget)
	for iter := 0; iter < 200 && bestDev > 1e-4; iter++ {
		rc := riskContributions(m, best)
		next := make([]float64, len(best))
		for i, v := range best {
			c := math.Max(rc[i], budget/10)
			next[i] = v * math.Sqrt(budget/c)
		}
		next = clean(next)
		dev := parityDeviation(riskContributions(m, next), budget)
		if dev >= bestDev {
			break
		}
		best, bestDev = next, dev
	}
	return best
}

func parityDeviation(rc []float64, budget float64) float64 {
	var dev float64
	for _, c := range rc {
		dev = math.Max(dev, math.Abs(c-budget))
	}
	return dev
}

// riskContributions splits the risk of w into per-asset shares summing to one. Marginal
// risks use central differences and the shares are normalised by their sum.
func riskContributions(m *model, w []float64) []float64 {
	rc := make([]float64, len(w))
	const h = 1e-6
	var total float64
	for i := range w {
		up := append([]float64(nil), w...)
		down := append([]float64(nil), w...)
		up[i] += h
		down[i] -= h
		rc[i] = w[i] * (m.risk(up) - m.risk(down)) / (2 * h)
		total += rc[i]
	}
	if math.Abs(total) < 1e-12 || math.IsNaN(total) {
		// flat measure at w
		return append(rc[:0], w...)
	}
	for i := range rc {
		rc[i] /= total
	}
	return rc
}

// FrontierPoint is one portfolio on or around the efficient frontier.
type FrontierPoint struct {
	Return  float64
	Risk    float64
	Sharpe  float64
	Weights []float64
}

// Frontier is an efficient frontier together with random portfolios for comparison.
type Frontier struct {
	Symbols  []string
	Measure  string
	Points   []FrontierPoint
	Random   []FrontierPoint
	Tangency *FrontierPoint
}

const frontierPoints = 20

func (m *model) point(w []float64) FrontierPoint {
	ret, risk := m.ret(w), m.risk(w)
	sharpe := math.NaN()
	if risk > 0 {
		sharpe = (ret - m.rfAnnual) / risk
	}
	return FrontierPoint{Return: ret, Risk: risk, Sharpe: sharpe, Weights: w}
}

// efficientFrontier traces minimum risk portfolios for target returns between the minimum
// risk and maximum return portfolios, and samples random Dirichlet portfolios.
func efficientFrontier(m *model, opts Options) (*Frontier, error) {
	free := opts
	free.TargetReturn, free.TargetRisk = -1, -1

	minRisk, err := meanRiskWeights(m, "MinRisk", free, nil)
	if err != nil {
		return nil, err
	}
	maxRet, err := meanRiskWeights(m, "MaxRet", free, nil)
	if err != nil {
		return nil, err
	}

	front := &Frontier{Symbols: m.returns.Symbols, Measure: m.measure.Name}
	lo, hi := m.ret(minRisk), m.ret(maxRet)
	front.Points = append(front.Points, m.point(minRisk))

	prev := minRisk
	for k := 1; k < frontierPoints-1; k++ {
		target := free
		target.TargetReturn = lo + (hi-lo)*float64(k)/float64(frontierPoints-1)
		w, err := solveSimplex("EfficientFrontier", objectiveFunc(m, "MinRisk", target), prev, m.smooth())
		if err != nil {
			continue
		}
		front.Points = append(front.Points, m.point(w))
		prev = w
	}
	front.Points = append(front.Points, m.point(maxRet))

	if opts.NPortfolios > 0 && m.n() > 1 {
		alpha := make([]float64, m.n())
		for i := range alpha {
			alpha[i] = 1
		}
		seed := uint64(opts.Seed)
		dir := distmv.NewDirichlet(alpha, rand.NewPCG(seed, seed))
		for i := 0; i < opts.NPortfolios; i++ {
			front.Random = append(front.Random, m.point(dir.Rand(nil)))
		}
	}

	if opts.Tangency {
		w, err := meanRiskWeights(m, "Sharpe", free, nil)
		if err != nil {
			return nil, err
		}
		p := m.point(w)
		front.Tangency = &p
	}
	return front, nil
}
