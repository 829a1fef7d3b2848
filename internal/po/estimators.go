package po

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ewmaWeights returns observation weights for an exponentially weighted estimate with decay d.
// adjust=true matches the normalised weights (1-a)^k, adjust=false the recursive form.
func ewmaWeights(t int, d float64, adjust bool) []float64 {
	alpha := 1 - d
	w := make([]float64, t)
	for i := 0; i < t; i++ {
		w[i] = math.Pow(d, float64(t-1-i))
		if !adjust && i > 0 {
			w[i] *= alpha
		}
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

// ExpectedReturns estimates per-period mean returns with hist, ewma1 or ewma2.
func ExpectedReturns(r *Returns, method string, d float64) ([]float64, error) {
	t, n := r.Dims()
	var weights []float64
	switch method {
	case "hist", "":
	case "ewma1":
		weights = ewmaWeights(t, d, true)
	case "ewma2":
		weights = ewmaWeights(t, d, false)
	default:
		return nil, fmt.Errorf("unknown expected return method %q", method)
	}

	mu := make([]float64, n)
	for j := 0; j < n; j++ {
		mu[j] = stat.Mean(r.Column(j), weights)
	}
	return mu, nil
}

// Covariance estimates the per-period covariance matrix.
func Covariance(r *Returns, method string, d float64) (*mat.SymDense, error) {
	t, n := r.Dims()
	if t < 2 {
		return nil, fmt.Errorf("need at least 2 observations, have %d", t)
	}

	switch method {
	case "hist", "":
		cov := mat.NewSymDense(n, nil)
		stat.CovarianceMatrix(cov, r.Data, nil)
		return cov, nil
	case "ewma1":
		return weightedCovariance(r.Data, ewmaWeights(t, d, true)), nil
	case "ewma2":
		return weightedCovariance(r.Data, ewmaWeights(t, d, false)), nil
	case "ledoit":
		return ledoitWolf(r.Data), nil
	case "oas":
		return oracleShrinkage(r.Data), nil
	case "shrunk":
		s := empiricalCovariance(r.Data)
		return shrinkToIdentity(s, 0.1), nil
	default:
		return nil, fmt.Errorf("unknown covariance method %q", method)
	}
}

// weightedCovariance computes sum_i w_i (x_i-m)(x_i-m)' for weights summing to one.
func weightedCovariance(x *mat.Dense, w []float64) *mat.SymDense {
	t, n := x.Dims()
	means := make([]float64, n)
	for j := 0; j < n; j++ {
		means[j] = stat.Mean(mat.Col(nil, j, x), w)
	}

	cov := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			var s float64
			for k := 0; k < t; k++ {
				s += w[k] * (x.At(k, i) - means[i]) * (x.At(k, j) - means[j])
			}
			cov.SetSym(i, j, s)
		}
	}
	return cov
}

// empiricalCovariance is the maximum likelihood estimate X'X/T on centred data.
func empiricalCovariance(x *mat.Dense) *mat.SymDense {
	t, _ := x.Dims()
	w := make([]float64, t)
	for i := range w {
		w[i] = 1 / float64(t)
	}
	return weightedCovariance(x, w)
}

func shrinkToIdentity(s *mat.SymDense, shrinkage float64) *mat.SymDense {
	n := s.SymmetricDim()
	mu := mat.Trace(s) / float64(n)
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := (1 - shrinkage) * s.At(i, j)
			if i == j {
				v += shrinkage * mu
			}
			out.SetSym(i, j, v)
		}
	}
	return out
}

// ledoitWolf shrinks the empirical covariance towards a scaled identity with the
// Ledoit-Wolf optimal intensity.
func ledoitWolf(x *mat.Dense) *mat.SymDense {
	t, n := x.Dims()
	s := empiricalCovariance(x)
	mu := mat.Trace(s) / float64(n)

	centred := centre(x)

	var d2 float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := s.At(i, j)
			if i == j {
				v -= mu
			}
			d2 += v * v
		}
	}
	d2 /= float64(n)
	if d2 == 0 {
		return s
	}

	var b2 float64
	for k := 0; k < t; k++ {
		row := centred.RawRowView(k)
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := row[i]*row[j] - s.At(i, j)
				b2 += v * v
			}
		}
	}
	b2 /= float64(t) * float64(t) * float64(n)
	b2 = math.Min(b2, d2)

	return shrinkToIdentity(s, b2/d2)
}

// oracleShrinkage applies the Oracle Approximating Shrinkage estimator.
func oracleShrinkage(x *mat.Dense) *mat.SymDense {
	t, n := x.Dims()
	s := empiricalCovariance(x)
	mu := mat.Trace(s) / float64(n)

	var alpha float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			alpha += s.At(i, j) * s.At(i, j)
		}
	}
	alpha /= float64(n * n)

	num := alpha + mu*mu
	den := float64(t+1) * (alpha - mu*mu/float64(n))
	shrinkage := 1.0
	if den != 0 {
		shrinkage = math.Min(num/den, 1)
	}
	return shrinkToIdentity(s, shrinkage)
}

func centre(x *mat.Dense) *mat.Dense {
	t, n := x.Dims()
	out := mat.NewDense(t, n, nil)
	for j := 0; j < n; j++ {
		col := mat.Col(nil, j, x)
		m := stat.Mean(col, nil)
		floats.AddConst(-m, col)
		out.SetCol(j, col)
	}
	return out
}

// Codependence returns the n x n co-dependence matrix used for clustering.
func Codependence(r *Returns, method string) (*mat.SymDense, error) {
	_, n := r.Dims()
	cols := make([][]float64, n)
	for j := range cols {
		cols[j] = r.Column(j)
	}

	var measure func(a, b []float64) float64
	switch method {
	case "pearson", "abs_pearson", "":
		measure = func(a, b []float64) float64 { return stat.Correlation(a, b, nil) }
	case "spearman", "abs_spearman":
		for j := range cols {
			cols[j] = ranks(cols[j])
		}
		measure = func(a, b []float64) float64 { return stat.Correlation(a, b, nil) }
	case "kendall", "abs_kendall":
		measure = func(a, b []float64) float64 { return stat.Kendall(a, b, nil) }
	case "distance":
		measure = distanceCorrelation
	default:
		return nil, fmt.Errorf("unknown co-dependence %q", method)
	}

	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			v := measure(cols[i], cols[j])
			if math.IsNaN(v) {
				v = 0
			}
			out.SetSym(i, j, v)
		}
	}
	return out, nil
}

// CodependenceDistance maps co-dependence to a distance in [0, 1].
func CodependenceDistance(codep *mat.SymDense, method string) *mat.Dense {
	n := codep.SymmetricDim()
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			rho := codep.At(i, j)
			var d float64
			switch method {
			case "abs_pearson", "abs_spearman", "abs_kendall", "distance":
				d = math.Sqrt(math.Max(0, 1-math.Abs(rho)))
			default:
				d = math.Sqrt(math.Max(0, 0.5*(1-rho)))
			}
			out.Set(i, j, d)
		}
	}
	return out
}

// CorrelationFromCovariance converts a covariance matrix to a correlation matrix.
func CorrelationFromCovariance(cov *mat.SymDense) *mat.SymDense {
	n := cov.SymmetricDim()
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			den := math.Sqrt(cov.At(i, i) * cov.At(j, j))
			if den == 0 {
				continue
			}
			out.SetSym(i, j, cov.At(i, j)/den)
		}
	}
	return out
}

// ranks returns average ranks (1-based) with ties sharing the mean rank.
func ranks(x []float64) []float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })

	out := make([]float64, len(x))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && x[idx[j+1]] == x[idx[i]] {
			j++
		}
		rank := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			out[idx[k]] = rank
		}
		i = j + 1
	}
	return out
}

// distanceCorrelation computes the Szekely distance correlation of two samples.
func distanceCorrelation(x, y []float64) float64 {
	a := doublyCentredDistances(x)
	b := doublyCentredDistances(y)
	n := float64(len(x))

	var xy, xx, yy float64
	for i := range a {
		for j := range a[i] {
			xy += a[i][j] * b[i][j]
			xx += a[i][j] * a[i][j]
			yy += b[i][j] * b[i][j]
		}
	}
	xy /= n * n
	xx /= n * n
	yy /= n * n
	if xx <= 0 || yy <= 0 {
		return 0
	}
	return math.Sqrt(math.Max(0, xy) / math.Sqrt(xx*yy))
}

func doublyCentredDistances(x []float64) [][]float64 {
	n := len(x)
	d := make([][]float64, n)
	rowMean := make([]float64, n)
	var grand float64
	for i := 0; i < n; i++ {
		d[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			d[i][j] = math.Abs(x[i] - x[j])
			rowMean[i] += d[i][j]
		}
		grand += rowMean[i]
		rowMean[i] /= float64(n)
	}
	grand /= float64(n * n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d[i][j] += grand - rowMean[i] - rowMean[j]
		}
	}
	return d
}
