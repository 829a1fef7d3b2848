package po

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"research-terminal/internal/errors"
	"research-terminal/internal/models"
)

// Options is the validated, typed parameter set an optimizer run reads.
type Options struct {
	Period       string
	Start        time.Time
	End          time.Time
	LogReturns   bool
	Freq         string
	MaxNaN       float64
	Threshold    float64
	Method       string
	RiskFreeRate float64
	Alpha        float64
	RiskMeasure  string
	TargetReturn float64
	TargetRisk   float64
	Mean         string
	Covariance   string
	DEWMA        float64
	Value        float64
	RiskAversion float64
	NPortfolios  int
	Seed         int
	Tangency     bool
	Codependence string
	Linkage      string
	K            int
	MaxK         int
	Objective    string
	ObjectiveNCO string
	Delta        float64
	Equilibrium  bool
	Optimize     bool
}

// PeriodsPerYear returns the annualisation factor of the return frequency.
func (o Options) PeriodsPerYear() float64 {
	return periodsPerYear(o.Freq)
}

func periodsPerYear(freq string) float64 {
	switch freq {
	case "w":
		return 52
	case "m":
		return 12
	default:
		return 252
	}
}

// Range returns the price window the options describe.
func (o Options) Range() models.Range {
	return models.Range{Period: o.Period, Start: o.Start, End: o.End, Interval: "1d"}
}

// resolve finds a parameter by template name, falling back to its native name.
func resolve(key string) (Parameter, bool) {
	if p, ok := Lookup(key); ok {
		return p, true
	}
	k := strings.ToLower(strings.TrimSpace(key))
	for _, p := range catalog {
		if strings.ToLower(p.Native()) == k {
			return p, true
		}
	}
	return Parameter{}, false
}

// ValidateInputs merges stored parameters with call-time overrides (overrides win),
// validates every value against the catalog and remaps template names to native names.
// It returns both the typed Options and the native-keyed map.
func ValidateInputs(params, overrides map[string]interface{}) (Options, map[string]interface{}, error) {
	native := make(map[string]interface{}, len(catalog))
	for _, p := range catalog {
		native[p.Native()] = p.Default()
	}

	apply := func(src map[string]interface{}) error {
		keys := make([]string, 0, len(src))
		for k := range src {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			p, ok := resolve(k)
			if !ok {
				return errors.NewParameterError(k, src[k], errors.ErrUnknownParameter)
			}
			v, err := p.Validate(src[k])
			if err != nil {
				return err
			}
			native[p.Native()] = v
		}
		return nil
	}

	if err := apply(params); err != nil {
		return Options{}, nil, err
	}
	if err := apply(overrides); err != nil {
		return Options{}, nil, err
	}

	opts, err := optionsFromNative(native)
	if err != nil {
		return Options{}, nil, err
	}
	return opts, native, nil
}

func optionsFromNative(n map[string]interface{}) (Options, error) {
	opts := Options{
		Period:       n["period"].(string),
		LogReturns:   n["log_returns"].(bool),
		Freq:         n["freq"].(string),
		MaxNaN:       n["maxnan"].(float64),
		Threshold:    n["threshold"].(float64),
		Method:       n["method"].(string),
		RiskFreeRate: n["risk_free_rate"].(float64),
		Alpha:        n["alpha"].(float64),
		RiskMeasure:  n["risk_measure"].(string),
		TargetReturn: n["target_return"].(float64),
		TargetRisk:   n["target_risk"].(float64),
		Mean:         n["mean"].(string),
		Covariance:   n["covariance"].(string),
		DEWMA:        n["d_ewma"].(float64),
		Value:        n["value"].(float64),
		RiskAversion: n["risk_aversion"].(float64),
		NPortfolios:  n["n_portfolios"].(int),
		Seed:         n["seed"].(int),
		Tangency:     n["tangency"].(bool),
		Codependence: n["codependence"].(string),
		Linkage:      n["linkage"].(string),
		K:            n["k"].(int),
		MaxK:         n["max_k"].(int),
		Objective:    n["objective"].(string),
		ObjectiveNCO: n["objective_nco"].(string),
		Delta:        n["delta"].(float64),
		Equilibrium:  n["equilibrium"].(bool),
		Optimize:     n["optimize"].(bool),
	}

	var err error
	if opts.Start, err = parseDate("start_period", n["start"].(string)); err != nil {
		return Options{}, err
	}
	if opts.End, err = parseDate("end_period", n["end"].(string)); err != nil {
		return Options{}, err
	}

	switch {
	case opts.MaxNaN < 0 || opts.MaxNaN > 1:
		return Options{}, errors.NewValidationError("max_nan", opts.MaxNaN, "must be between 0 and 1")
	case opts.Alpha <= 0 || opts.Alpha >= 1:
		return Options{}, errors.NewValidationError("significance_level", opts.Alpha, "must be between 0 and 1")
	case opts.DEWMA <= 0 || opts.DEWMA >= 1:
		return Options{}, errors.NewValidationError("smoothing_factor_ewma", opts.DEWMA, "must be between 0 and 1")
	case opts.Value <= 0:
		return Options{}, errors.NewValidationError("long_allocation", opts.Value, "must be positive")
	case opts.NPortfolios < 0:
		return Options{}, errors.NewValidationError("amount_portfolios", opts.NPortfolios, "must not be negative")
	case opts.K < 0:
		return Options{}, errors.NewValidationError("amount_clusters", opts.K, "must not be negative")
	case opts.MaxK < 2:
		return Options{}, errors.NewValidationError("max_clusters", opts.MaxK, "must be at least 2")
	}
	return opts, nil
}

func parseDate(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, s, fmt.Sprintf("expected YYYY-MM-DD: %v", err))
	}
	return t, nil
}
