package po

import (
	"sort"
	"strings"
)

func strs(values ...string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// RiskMeasureNames lists every risk measure accepted by risk_measure.
var RiskMeasureNames = []string{
	"MV", "MAD", "MSV", "FLPM", "SLPM", "VaR", "CVaR", "EVaR", "WR", "MDD", "ADD", "CDaR", "UCI", "EDaR",
}

var objectives = strs("MinRisk", "Utility", "Sharpe", "MaxRet")

// catalog holds every template parameter keyed by template name.
var catalog = buildCatalog()

func buildCatalog() map[string]Parameter {
	params := []Parameter{
		mustParameter("historic_period", "period", TypeString, "3y",
			strs("1mo", "3mo", "6mo", "1y", "2y", "3y", "5y", "10y", "ytd", "max"),
			"Lookback window of price history"),
		mustParameter("start_period", "start", TypeString, "", nil,
			"Explicit start date (YYYY-MM-DD), overrides historic_period"),
		mustParameter("end_period", "end", TypeString, "", nil,
			"Explicit end date (YYYY-MM-DD)"),
		mustParameter("log_returns", "log_returns", TypeBool, false, nil,
			"Use log returns instead of simple returns"),
		mustParameter("return_frequency", "freq", TypeString, "d", strs("d", "w", "m"),
			"Return frequency: daily, weekly or monthly"),
		mustParameter("max_nan", "maxnan", TypeFloat, 0.05, nil,
			"Maximum share of missing prices before an asset is dropped"),
		mustParameter("threshold_value", "threshold", TypeFloat, 0.30, nil,
			"Absolute return above which an observation is treated as an outlier"),
		mustParameter("nan_fill_method", "method", TypeString, "time",
			strs("time", "linear", "nearest", "ffill", "bfill"),
			"Interpolation used to fill missing prices and outliers"),
		mustParameter("risk_free", "risk_free_rate", TypeFloat, 0.0, nil,
			"Annual risk free rate"),
		mustParameter("significance_level", "alpha", TypeFloat, 0.05, nil,
			"Tail probability for VaR, CVaR, EVaR, CDaR and EDaR"),
		mustParameter("risk_measure", "risk_measure", TypeString, "MV", strs(RiskMeasureNames...),
			"Risk measure minimised or reported"),
		mustParameter("target_return", "target_return", TypeFloat, -1.0, nil,
			"Minimum annual return constraint, negative disables it"),
		mustParameter("target_risk", "target_risk", TypeFloat, -1.0, nil,
			"Maximum risk constraint, negative disables it"),
		mustParameter("expected_return", "mean", TypeString, "hist", strs("hist", "ewma1", "ewma2"),
			"Expected return estimator"),
		mustParameter("covariance", "covariance", TypeString, "hist",
			strs("hist", "ewma1", "ewma2", "ledoit", "oas", "shrunk"),
			"Covariance estimator"),
		mustParameter("smoothing_factor_ewma", "d_ewma", TypeFloat, 0.94, nil,
			"Decay factor for the ewma estimators"),
		mustParameter("long_allocation", "value", TypeFloat, 1.0, nil,
			"Amount allocated across the optimized weights"),
		mustParameter("risk_aversion", "risk_aversion", TypeFloat, 1.0, nil,
			"Risk aversion used by the Utility objective"),
		mustParameter("amount_portfolios", "n_portfolios", TypeInt, 100, nil,
			"Random portfolios sampled around the efficient frontier"),
		mustParameter("random_seed", "seed", TypeInt, 123, nil,
			"Seed for random portfolio sampling"),
		mustParameter("tangency", "tangency", TypeBool, false, nil,
			"Mark the maximum Sharpe portfolio on the efficient frontier"),
		mustParameter("co_dependence", "codependence", TypeString, "pearson",
			strs("pearson", "spearman", "kendall", "abs_pearson", "abs_spearman", "abs_kendall", "distance"),
			"Co-dependence measure used to build the clustering distance"),
		mustParameter("linkage", "linkage", TypeString, "single", strs("single", "complete", "average", "ward"),
			"Hierarchical clustering linkage"),
		mustParameter("amount_clusters", "k", TypeInt, 0, nil,
			"Number of clusters, 0 picks it from the dendrogram"),
		mustParameter("max_clusters", "max_k", TypeInt, 10, nil,
			"Upper bound when the number of clusters is picked automatically"),
		mustParameter("objective", "objective", TypeString, "MinRisk", objectives,
			"Objective for mean-risk, Black-Litterman and intra-cluster NCO problems"),
		mustParameter("objective_nco", "objective_nco", TypeString, "MinRisk", objectives,
			"Objective across clusters for NCO"),
		mustParameter("delta", "delta", TypeFloat, 0.0, nil,
			"Black-Litterman risk aversion, 0 derives it from the benchmark"),
		mustParameter("equilibrium", "equilibrium", TypeBool, true, nil,
			"Use equilibrium returns as the Black-Litterman prior"),
		mustParameter("optimize", "optimize", TypeBool, true, nil,
			"Solve the objective with Black-Litterman returns instead of the closed form"),
	}

	out := make(map[string]Parameter, len(params))
	for _, p := range params {
		out[p.Name()] = p
	}
	return out
}

// Lookup returns the catalog entry for a template name.
func Lookup(name string) (Parameter, bool) {
	p, ok := catalog[strings.ToLower(strings.TrimSpace(name))]
	return p, ok
}

// Resolve finds a parameter by template name or by native name.
func Resolve(key string) (Parameter, bool) {
	return resolve(key)
}

// Catalog returns every parameter sorted by template name.
func Catalog() []Parameter {
	out := make([]Parameter, 0, len(catalog))
	for _, p := range catalog {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Defaults returns the default value of every parameter keyed by template name.
func Defaults() map[string]interface{} {
	out := make(map[string]interface{}, len(catalog))
	for name, p := range catalog {
		out[name] = p.Default()
	}
	return out
}
