package po

import (
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"research-terminal/internal/errors"
)

// minWeight is the weight below which a position is treated as zero after optimization.
const minWeight = 1e-5

// acceptable reports whether a termination status produced a usable location.
func acceptable(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.FunctionConvergence, optimize.GradientThreshold,
		optimize.StepConvergence, optimize.FunctionThreshold, optimize.MethodConverge,
		optimize.IterationLimit, optimize.FunctionEvaluationLimit:
		return true
	default:
		return false
	}
}

// minimize runs BFGS with finite difference gradients when smooth is set, falling back to
// Nelder-Mead, and returns the best location found.
func minimize(method string, f func(x []float64) float64, x0 []float64, smooth bool) ([]float64, error) {
	best := append([]float64(nil), x0...)
	bestF := f(x0)
	if math.IsNaN(bestF) {
		bestF = math.Inf(1)
	}

	try := func(m optimize.Method, start []float64, withGrad bool) {
		problem := optimize.Problem{Func: f}
		if withGrad {
			problem.Grad = func(grad, x []float64) {
				fd.Gradient(grad, f, x, nil)
			}
		}
		settings := &optimize.Settings{
			MajorIterations: 2000,
			FuncEvaluations: 40000,
		}
		result, err := optimize.Minimize(problem, start, settings, m)
		if result == nil || (err != nil && !acceptable(result.Status)) {
			return
		}
		if !math.IsNaN(result.F) && result.F < bestF {
			bestF = result.F
			best = append(best[:0], result.X...)
		}
	}

	if smooth {
		try(&optimize.BFGS{}, x0, true)
	}
	try(&optimize.NelderMead{}, best, false)
	// A restart from the best point escapes collapsed simplexes.
	try(&optimize.NelderMead{}, best, false)

	if math.IsInf(bestF, 1) {
		return nil, errors.NewOptimizationError(method, "objective is not finite at any evaluated point", nil)
	}
	return best, nil
}

// softmax maps unconstrained coordinates onto the long-only simplex.
func softmax(z []float64) []float64 {
	m := floats.Max(z)
	w := make([]float64, len(z))
	for i, v := range z {
		w[i] = math.Exp(v - m)
	}
	floats.Scale(1/floats.Sum(w), w)
	return w
}

// logits is the inverse of softmax for strictly positive weights.
func logits(w []float64) []float64 {
	z := make([]float64, len(w))
	for i, v := range w {
		z[i] = math.Log(math.Max(v, 1e-8))
	}
	return z
}

// solveSimplex minimises f over long-only weights summing to one, starting from w0.
func solveSimplex(method string, f func(w []float64) float64, w0 []float64, smooth bool) ([]float64, error) {
	if len(w0) == 1 {
		return []float64{1}, nil
	}
	z, err := minimize(method, func(z []float64) float64 { return f(softmax(z)) }, logits(w0), smooth)
	if err != nil {
		return nil, err
	}
	return clean(softmax(z)), nil
}

// clean zeroes negligible weights and renormalises to one.
func clean(w []float64) []float64 {
	out := append([]float64(nil), w...)
	for i, v := range out {
		if v < minWeight || math.IsNaN(v) {
			out[i] = 0
		}
	}
	s := floats.Sum(out)
	if s == 0 {
		return equalWeights(len(w))
	}
	floats.Scale(1/s, out)
	return out
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1 / float64(n)
	}
	return w
}

// penalty is an exterior penalty for a violated inequality.
func penalty(violation float64) float64 {
	if violation <= 0 {
		return 0
	}
	return 100*violation + 1e4*violation*violation
}
