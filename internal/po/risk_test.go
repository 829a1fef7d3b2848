package po

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"research-terminal/internal/errors"
)

func TestDrawdownMeasures(t *testing.T) {
	r := []float64{0.1, -0.2, 0.05, -0.1}
	// cumulative 0.1, -0.1, -0.05, -0.15 against a 0.1 peak
	assert.InDeltaSlice(t, []float64{0, 0.2, 0.15, 0.25}, drawdowns(r), 1e-12)
	assert.InDelta(t, 0.25, maxDrawdown(r, 0, 0), 1e-12)
	assert.InDelta(t, 0.15, avgDrawdown(r, 0, 0), 1e-12)
	assert.InDelta(t, 0.25, conditionalDaR(r, 0.25, 0), 1e-12)
	assert.InDelta(t, math.Sqrt((0.04+0.0225+0.0625)/4), ulcerIndex(r, 0, 0), 1e-12)
}

func TestTailMeasures(t *testing.T) {
	r := []float64{0.02, -0.05, 0.01, -0.01, 0.03, -0.03, 0.00, 0.04, -0.02, 0.01}

	assert.InDelta(t, 0.05, worstRealization(r, 0, 0), 1e-12)
	assert.InDelta(t, 0.05, valueAtRisk(r, 0.1, 0), 1e-12)
	assert.InDelta(t, 0.03, valueAtRisk(r, 0.2, 0), 1e-12)
	assert.InDelta(t, 0.04, conditionalVaR(r, 0.2, 0), 1e-12)
	assert.InDelta(t, stat.StdDev(r, nil), stdDev(r, 0, 0), 1e-12)
}

func TestLookupRiskMeasure(t *testing.T) {
	m, err := LookupRiskMeasure("cvar")
	require.NoError(t, err)
	assert.Equal(t, "CVaR", m.Name)
	assert.False(t, m.Dispersion)
	assert.InDelta(t, 0.1, m.Annualize(0.1, 252), 1e-12)

	mv, _ := LookupRiskMeasure("MV")
	assert.InDelta(t, 0.1*math.Sqrt(252), mv.Annualize(0.1, 252), 1e-12)

	_, err = LookupRiskMeasure("Sortino")
	assert.True(t, errors.Is(err, errors.ErrUnknownRiskMeasure))

	for _, name := range RiskMeasureNames {
		_, err := LookupRiskMeasure(name)
		assert.NoError(t, err, name)
	}
}

func TestRiskMeasureOrdering(t *testing.T) {
	properties := gopter.NewProperties(nil)

	returnsGen := gen.SliceOfN(60, gen.Float64Range(-0.1, 0.1))

	properties.Property("VaR <= CVaR <= EVaR <= worst loss", prop.ForAll(
		func(r []float64) bool {
			const alpha = 0.05
			v, c, e, w := valueAtRisk(r, alpha, 0), conditionalVaR(r, alpha, 0), entropicVaR(r, alpha, 0), worstRealization(r, 0, 0)
			const tol = 1e-6
			return v <= c+tol && c <= e+tol && e <= w+tol
		},
		returnsGen,
	))

	properties.Property("drawdown measures are ordered and non-negative", prop.ForAll(
		func(r []float64) bool {
			add, cdar, mdd := avgDrawdown(r, 0, 0), conditionalDaR(r, 0.05, 0), maxDrawdown(r, 0, 0)
			edar := entropicDaR(r, 0.05, 0)
			const tol = 1e-6
			return add >= 0 && add <= cdar+tol && cdar <= edar+tol && edar <= mdd+tol
		},
		returnsGen,
	))

	properties.TestingRun(t)
}

func TestEstimators(t *testing.T) {
	m, _ := testModel(nil)
	r := m.returns
	_, n := r.Dims()

	mu, err := ExpectedReturns(r, "hist", 0.94)
	require.NoError(t, err)
	for j := 0; j < n; j++ {
		assert.InDelta(t, stat.Mean(r.Column(j), nil), mu[j], 1e-12)
	}

	for _, method := range []string{"ewma1", "ewma2"} {
		mu, err := ExpectedReturns(r, method, 0.94)
		require.NoError(t, err, method)
		assert.Len(t, mu, n)
	}

	hist, err := Covariance(r, "hist", 0.94)
	require.NoError(t, err)
	for _, method := range []string{"hist", "ewma1", "ewma2", "ledoit", "oas", "shrunk"} {
		cov, err := Covariance(r, method, 0.94)
		require.NoError(t, err, method)
		for i := 0; i < n; i++ {
			assert.Greater(t, cov.At(i, i), 0.0, method)
			for j := 0; j < n; j++ {
				assert.InDelta(t, cov.At(i, j), cov.At(j, i), 1e-15, method)
			}
		}
	}

	// shrinkage keeps the trace of the sample covariance
	shrunk, _ := Covariance(r, "ledoit", 0.94)
	var traceHist, traceShrunk float64
	for i := 0; i < n; i++ {
		traceHist += hist.At(i, i)
		traceShrunk += shrunk.At(i, i)
	}
	assert.InDelta(t, traceHist, traceShrunk, traceHist*0.01)

	_, err = Covariance(r, "robust", 0.94)
	assert.Error(t, err)
}

func TestCodependence(t *testing.T) {
	m, _ := testModel(nil)
	_, n := m.returns.Dims()

	for _, method := range []string{"pearson", "spearman", "kendall", "abs_pearson", "abs_spearman", "abs_kendall", "distance"} {
		codep, err := Codependence(m.returns, method)
		require.NoError(t, err, method)
		dist := CodependenceDistance(codep, method)
		for i := 0; i < n; i++ {
			assert.InDelta(t, 1, codep.At(i, i), 1e-12, method)
			assert.Equal(t, 0.0, dist.At(i, i), method)
			for j := 0; j < n; j++ {
				assert.GreaterOrEqual(t, dist.At(i, j), 0.0, method)
				assert.LessOrEqual(t, dist.At(i, j), 1.0, method)
				assert.InDelta(t, dist.At(i, j), dist.At(j, i), 1e-12, method)
			}
		}
	}

	corr := CorrelationFromCovariance(m.cov)
	pearson, _ := Codependence(m.returns, "pearson")
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			assert.InDelta(t, pearson.At(i, j), corr.At(i, j), 1e-9)
		}
	}
}

func TestRanksShareTies(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, ranks([]float64{0.1, 0.3, 0.3, 0.5}))
}
