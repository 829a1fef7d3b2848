package po

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"research-terminal/internal/errors"
)

// View is an investor view on annual returns. An absolute view has no Short leg:
// "AAPL=0.10" expects 10% from AAPL, "AAPL>MSFT=0.02" expects AAPL to beat MSFT by 2%.
type View struct {
	Long  string
	Short string
	Value float64
}

// ParseView parses "SYM=value" or "LONG>SHORT=value".
func ParseView(s string) (View, error) {
	lhs, rhs, ok := strings.Cut(s, "=")
	if !ok {
		return View{}, errors.NewValidationError("view", s, "expected SYMBOL=value or LONG>SHORT=value")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(rhs), 64)
	if err != nil {
		return View{}, errors.NewValidationError("view", s, "value must be a number")
	}
	long, short, _ := strings.Cut(lhs, ">")
	view := View{Long: NormalizeSymbol(long), Short: NormalizeSymbol(short), Value: v}
	if view.Long == "" {
		return View{}, errors.NewValidationError("view", s, "missing symbol")
	}
	return view, nil
}

func (v View) String() string {
	if v.Short == "" {
		return fmt.Sprintf("%s=%g", v.Long, v.Value)
	}
	return fmt.Sprintf("%s>%s=%g", v.Long, v.Short, v.Value)
}

// viewMatrices builds the pick matrix P and per-period view returns Q.
func viewMatrices(symbols []string, views []View, periods float64) (*mat.Dense, *mat.VecDense, error) {
	index := make(map[string]int, len(symbols))
	for i, s := range symbols {
		index[s] = i
	}

	p := mat.NewDense(len(views), len(symbols), nil)
	q := mat.NewVecDense(len(views), nil)
	for k, v := range views {
		i, ok := index[v.Long]
		if !ok {
			return nil, nil, fmt.Errorf("%w: view on %s", errors.ErrUnknownSymbol, v.Long)
		}
		p.Set(k, i, 1)
		if v.Short != "" {
			j, ok := index[v.Short]
			if !ok {
				return nil, nil, fmt.Errorf("%w: view on %s", errors.ErrUnknownSymbol, v.Short)
			}
			p.Set(k, j, -1)
		}
		q.SetVec(k, v.Value/periods)
	}
	return p, q, nil
}

// blackLitterman returns the posterior expected returns and covariance (both per period)
// and the risk aversion used for the prior.
func blackLitterman(m *model, benchmark []float64, views []View, opts Options) ([]float64, *mat.SymDense, float64, error) {
	n := m.n()
	t, _ := m.returns.Dims()
	sigma := mat.DenseCopyOf(m.cov)
	wb := mat.NewVecDense(n, benchmark)

	delta := opts.Delta
	if delta <= 0 {
		var sw mat.VecDense
		sw.MulVec(sigma, wb)
		variance := mat.Dot(wb, &sw)
		if variance > 0 {
			delta = (floats.Dot(m.mu, benchmark) - m.rfPeriod) / variance
		}
		if delta <= 0 {
			delta = 1
		}
	}

	prior := mat.NewVecDense(n, nil)
	if opts.Equilibrium {
		prior.MulVec(sigma, wb)
		prior.ScaleVec(delta, prior)
	} else {
		prior.CopyVec(mat.NewVecDense(n, append([]float64(nil), m.mu...)))
	}

	tau := 1 / float64(t)
	tauSigma := mat.NewDense(n, n, nil)
	tauSigma.Scale(tau, sigma)

	posterior := mat.NewVecDense(n, nil)
	var post mat.Dense

	if len(views) == 0 {
		posterior.CopyVec(prior)
		post.CloneFrom(tauSigma)
	} else {
		p, q, err := viewMatrices(m.returns.Symbols, views, m.periods)
		if err != nil {
			return nil, nil, 0, err
		}
		k := len(views)

		var ptsp mat.Dense
		ptsp.Product(p, tauSigma, p.T())
		omegaInv := mat.NewDense(k, k, nil)
		for i := 0; i < k; i++ {
			if d := ptsp.At(i, i); d > 0 {
				omegaInv.Set(i, i, 1/d)
			}
		}

		var tauSigmaInv mat.Dense
		if err := tauSigmaInv.Inverse(tauSigma); err != nil {
			return nil, nil, 0, errors.NewOptimizationError("BlackLitterman", "covariance is singular", err)
		}

		var ptOmegaInv, ptOmegaInvP, precision mat.Dense
		ptOmegaInv.Mul(p.T(), omegaInv)
		ptOmegaInvP.Mul(&ptOmegaInv, p)
		precision.Add(&tauSigmaInv, &ptOmegaInvP)
		if err := post.Inverse(&precision); err != nil {
			return nil, nil, 0, errors.NewOptimizationError("BlackLitterman", "posterior precision is singular", err)
		}

		var a, b mat.VecDense
		a.MulVec(&tauSigmaInv, prior)
		b.MulVec(&ptOmegaInv, q)
		a.AddVec(&a, &b)
		posterior.MulVec(&post, &a)
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			cov.SetSym(i, j, sigma.At(i, j)+0.5*(post.At(i, j)+post.At(j, i)))
		}
	}
	return mat.Col(nil, 0, posterior), cov, delta, nil
}

// blackLittermanWeights optimises with Black-Litterman inputs, or uses the closed form
// (δΣ)^-1 μ clipped to long-only when opts.Optimize is false.
func blackLittermanWeights(m *model, benchmark []float64, views []View, opts Options) ([]float64, error) {
	mu, cov, delta, err := blackLitterman(m, benchmark, views, opts)
	if err != nil {
		return nil, err
	}

	if opts.Optimize {
		bl := *m
		bl.mu, bl.cov = mu, cov
		return meanRiskWeights(&bl, opts.Objective, opts, benchmark)
	}

	scaled := mat.NewDense(m.n(), m.n(), nil)
	scaled.Scale(delta, cov)
	var inv mat.Dense
	if err := inv.Inverse(scaled); err != nil {
		return nil, errors.NewOptimizationError("BlackLitterman", "covariance is singular", err)
	}
	var w mat.VecDense
	w.MulVec(&inv, mat.NewVecDense(m.n(), mu))

	out := make([]float64, m.n())
	for i := range out {
		if v := w.AtVec(i); v > 0 {
			out[i] = v
		}
	}
	if floats.Sum(out) == 0 {
		return nil, errors.NewOptimizationError("BlackLitterman", "every closed form weight is negative", nil)
	}
	return clean(out), nil
}
