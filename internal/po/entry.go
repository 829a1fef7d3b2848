package po

import (
	"context"
	"fmt"
	"time"

	"research-terminal/internal/errors"
	"research-terminal/internal/logging"
	"research-terminal/internal/models"
)

// PriceSource provides aligned close prices for a set of symbols.
type PriceSource interface {
	Frame(ctx context.Context, symbols []string, rng models.Range) (*models.PriceFrame, error)
}

// Result is the outcome of one optimizer run.
type Result struct {
	Method            string
	Symbols           []string
	Weights           map[string]float64
	Allocations       []Allocation
	Summary           Summary
	RiskContributions map[string]float64
	Clusters          map[string]int
	Frontier          *Frontier
	Report            ReturnsReport
	Options           Options
	Params            map[string]interface{} // native names
}

// WeightsTable returns symbol, weight, allocated amount and risk contribution, largest first.
func (r *Result) WeightsTable() *models.Table {
	tbl := models.NewTable(r.Method, "Symbol", "Weight", "Amount", "Risk Contribution")
	amounts := make(map[string]float64, len(r.Allocations))
	for _, a := range r.Allocations {
		amounts[a.Symbol] = a.Amount.InexactFloat64()
	}
	for _, sym := range sortedByWeight(r.Weights) {
		tbl.AddRow(sym, r.Weights[sym], amounts[sym], r.RiskContributions[sym])
	}
	return tbl
}

// EntryPoint is the common signature of the optimizers selectable by name.
type EntryPoint func(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error)

// EntryPoints maps CLI method names to optimizers. Black-Litterman takes views and is
// called directly.
var EntryPoints = map[string]EntryPoint{
	"equal":      GetEqualWeights,
	"invvol":     GetInverseVolatility,
	"maxsharpe":  GetMaxSharpe,
	"minrisk":    GetMinRisk,
	"maxutil":    GetMaxUtil,
	"maxret":     GetMaxRet,
	"maxdiv":     GetMaxDiversification,
	"maxdecorr":  GetMaxDecorrelation,
	"riskparity": GetRiskParity,
	"hrp":        GetHRP,
	"herc":       GetHERC,
	"nco":        GetNCO,
	"ef":         GetEF,
}

type solveFunc func(m *model, opts Options, res *Result) ([]float64, error)

// run validates inputs, builds returns, solves and stores the weights on the engine.
func run(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}, method string, solve solveFunc) (res *Result, err error) {
	logger := logging.WithOperation(e.logger, method)
	start := time.Now()
	assets := 0
	defer func() {
		logging.LogOptimization(logger, method, assets, time.Since(start), err)
	}()

	opts, native, err := ValidateInputs(e.GetParams(), overrides)
	if err != nil {
		return nil, err
	}

	frame, err := prices.Frame(ctx, e.GetSymbols(), opts.Range())
	if err != nil {
		return nil, fmt.Errorf("loading prices: %w", err)
	}
	returns, report, err := BuildReturns(frame, opts)
	if err != nil {
		return nil, err
	}
	if len(report.Dropped) > 0 {
		logger.Warn().Strs("dropped", report.Dropped).Float64("max_nan", opts.MaxNaN).Msg("Assets dropped for missing prices")
	}
	e.SetReturns(returns)
	_, assets = returns.Dims()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := newModel(returns, opts)
	if err != nil {
		return nil, err
	}

	res = &Result{Method: method, Symbols: returns.Symbols, Report: report, Options: opts, Params: native}
	w, err := solve(m, opts, res)
	if err != nil {
		return nil, err
	}

	res.Weights = make(map[string]float64, len(w))
	res.RiskContributions = make(map[string]float64, len(w))
	rc := riskContributions(m, w)
	for i, sym := range returns.Symbols {
		res.Weights[sym] = w[i]
		res.RiskContributions[sym] = rc[i]
	}
	if err := e.SetWeights(res.Weights); err != nil {
		return nil, err
	}

	res.Allocations = Allocate(res.Weights, opts.Value)
	if res.Summary, err = Performance(returns, w, opts, opts.RiskMeasure); err != nil {
		return nil, err
	}
	return res, nil
}

// GetEqualWeights assigns every asset the same weight.
func GetEqualWeights(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "EqualWeights", func(m *model, _ Options, _ *Result) ([]float64, error) {
		return equalWeights(m.n()), nil
	})
}

// GetInverseVolatility weights assets by the inverse of their volatility.
func GetInverseVolatility(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "InverseVolatility", func(m *model, _ Options, _ *Result) ([]float64, error) {
		return inverseVolWeights(m), nil
	})
}

func meanRisk(objective string) solveFunc {
	return func(m *model, opts Options, _ *Result) ([]float64, error) {
		return meanRiskWeights(m, objective, opts, nil)
	}
}

// GetMaxSharpe maximises the return per unit of the selected risk measure.
func GetMaxSharpe(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "MaxSharpe", meanRisk("Sharpe"))
}

// GetMinRisk minimises the selected risk measure.
func GetMinRisk(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "MinRisk", meanRisk("MinRisk"))
}

// GetMaxUtil maximises return minus risk_aversion times risk.
func GetMaxUtil(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "MaxUtil", meanRisk("Utility"))
}

// GetMaxRet maximises the expected return.
func GetMaxRet(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "MaxRet", meanRisk("MaxRet"))
}

// GetMaxDiversification maximises the diversification ratio.
func GetMaxDiversification(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "MaxDiversification", func(m *model, _ Options, _ *Result) ([]float64, error) {
		return maxDiversificationWeights(m)
	})
}

// GetMaxDecorrelation minimises the portfolio's weighted correlation.
func GetMaxDecorrelation(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "MaxDecorrelation", func(m *model, _ Options, _ *Result) ([]float64, error) {
		return maxDecorrelationWeights(m)
	})
}

// GetRiskParity equalises the risk contributions under the selected risk measure.
func GetRiskParity(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "RiskParity", func(m *model, _ Options, _ *Result) ([]float64, error) {
		return riskParityWeights(m)
	})
}

// GetBlackLitterman blends equilibrium returns implied by the benchmark with views.
// The benchmark is the engine's current weights, else the current invested amounts,
// else equal weights.
func GetBlackLitterman(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}, views ...View) (*Result, error) {
	held := e.GetWeightsMap()
	e.mu.RLock()
	invested := currentWeights(e.categories[CurrentInvestedAmount])
	e.mu.RUnlock()

	return run(ctx, e, prices, overrides, "BlackLitterman", func(m *model, opts Options, _ *Result) ([]float64, error) {
		benchmark := benchmarkWeights(m.returns.Symbols, held, invested)
		return blackLittermanWeights(m, benchmark, views, opts)
	})
}

// benchmarkWeights picks the first source with positive weight on the symbols.
func benchmarkWeights(symbols []string, sources ...map[string]float64) []float64 {
	for _, src := range sources {
		w := make([]float64, len(symbols))
		var total float64
		for i, sym := range symbols {
			if v := src[sym]; v > 0 {
				w[i] = v
				total += v
			}
		}
		if total > 0 {
			return clean(w)
		}
	}
	return equalWeights(len(symbols))
}

func hierarchical(name string, weights func(m *model, c *clustering, opts Options) ([]float64, error)) solveFunc {
	return func(m *model, opts Options, res *Result) ([]float64, error) {
		if m.n() < 2 {
			return nil, errors.NewOptimizationError(name, "clustering needs at least two assets", errors.ErrInsufficientData)
		}
		c, err := buildClustering(m, opts)
		if err != nil {
			return nil, err
		}
		res.Clusters = make(map[string]int, m.n())
		for i, sym := range m.returns.Symbols {
			res.Clusters[sym] = c.labels[i]
		}
		return weights(m, c, opts)
	}
}

// GetHRP allocates by hierarchical risk parity.
func GetHRP(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "HRP", hierarchical("HRP", func(m *model, c *clustering, _ Options) ([]float64, error) {
		return hrpWeights(m, c), nil
	}))
}

// GetHERC allocates by hierarchical equal risk contribution.
func GetHERC(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "HERC", hierarchical("HERC", func(m *model, c *clustering, _ Options) ([]float64, error) {
		return hercWeights(m, c), nil
	}))
}

// GetNCO allocates by nested clustered optimization.
func GetNCO(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "NCO", hierarchical("NCO", ncoWeights))
}

// GetEF traces the efficient frontier. The engine weights become the tangency portfolio
// when tangency is set, else the minimum risk portfolio.
func GetEF(ctx context.Context, e *Engine, prices PriceSource, overrides map[string]interface{}) (*Result, error) {
	return run(ctx, e, prices, overrides, "EfficientFrontier", func(m *model, opts Options, res *Result) ([]float64, error) {
		front, err := efficientFrontier(m, opts)
		if err != nil {
			return nil, err
		}
		res.Frontier = front
		if front.Tangency != nil {
			return front.Tangency.Weights, nil
		}
		return front.Points[0].Weights, nil
	})
}
