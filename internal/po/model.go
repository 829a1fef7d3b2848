package po

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// model bundles the estimates one optimizer run works with. Returns and risks are annualised.
type model struct {
	returns  *Returns
	mu       []float64 // per period
	cov      *mat.SymDense
	periods  float64
	measure  RiskMeasure
	alpha    float64
	rfPeriod float64
	rfAnnual float64
}

func newModel(r *Returns, opts Options) (*model, error) {
	mu, err := ExpectedReturns(r, opts.Mean, opts.DEWMA)
	if err != nil {
		return nil, err
	}
	cov, err := Covariance(r, opts.Covariance, opts.DEWMA)
	if err != nil {
		return nil, err
	}
	measure, err := LookupRiskMeasure(opts.RiskMeasure)
	if err != nil {
		return nil, err
	}
	periods := opts.PeriodsPerYear()
	return &model{
		returns:  r,
		mu:       mu,
		cov:      cov,
		periods:  periods,
		measure:  measure,
		alpha:    opts.Alpha,
		rfPeriod: opts.RiskFreeRate / periods,
		rfAnnual: opts.RiskFreeRate,
	}, nil
}

func (m *model) n() int {
	return len(m.mu)
}

// ret is the annualised expected return of w.
func (m *model) ret(w []float64) float64 {
	return floats.Dot(m.mu, w) * m.periods
}

// variance is the per-period variance w'Σw.
func (m *model) variance(w []float64) float64 {
	v := mat.NewVecDense(len(w), w)
	return mat.Inner(v, m.cov, v)
}

// vol is the annualised volatility of w under the model covariance.
func (m *model) vol(w []float64) float64 {
	return math.Sqrt(math.Max(m.variance(w), 0) * m.periods)
}

// risk evaluates the selected risk measure on w in annual units.
func (m *model) risk(w []float64) float64 {
	if m.measure.Name == "MV" {
		return m.vol(w)
	}
	v := m.measure.Fn(m.returns.Portfolio(w), m.alpha, m.rfPeriod)
	return m.measure.Annualize(v, m.periods)
}

// smooth reports whether the risk measure is differentiable enough for BFGS.
func (m *model) smooth() bool {
	return m.measure.Name == "MV"
}

// assetVols returns each asset's annualised volatility.
func (m *model) assetVols() []float64 {
	out := make([]float64, m.n())
	for i := range out {
		out[i] = math.Sqrt(m.cov.At(i, i) * m.periods)
	}
	return out
}

// assetRisks returns each asset's stand-alone risk under the selected measure.
func (m *model) assetRisks() []float64 {
	out := make([]float64, m.n())
	for i := range out {
		w := make([]float64, m.n())
		w[i] = 1
		out[i] = m.risk(w)
	}
	return out
}
