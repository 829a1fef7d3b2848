package po

import (
	"math"

	"research-terminal/internal/models"
)

// Summary is the annualised performance of a weighted portfolio.
type Summary struct {
	Return      float64
	Volatility  float64
	Sharpe      float64
	RiskMeasure string
	Risk        float64 // NaN when RiskMeasure is empty
}

// Performance computes the summary of w under the model estimators. A secondary risk
// measure is reported when measure is non-empty and not MV.
func Performance(r *Returns, w []float64, opts Options, measure string) (Summary, error) {
	m, err := newModel(r, opts)
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Return: m.ret(w), Volatility: m.vol(w), Sharpe: math.NaN(), Risk: math.NaN()}
	if s.Volatility > 0 {
		s.Sharpe = (s.Return - opts.RiskFreeRate) / s.Volatility
	}

	if measure != "" && measure != "MV" {
		rm, err := LookupRiskMeasure(measure)
		if err != nil {
			return Summary{}, err
		}
		s.RiskMeasure = rm.Name
		s.Risk = rm.Annualize(rm.Fn(r.Portfolio(w), opts.Alpha, opts.RiskFreeRate/m.periods), m.periods)
	}
	return s, nil
}

// Table renders the summary as label/value rows.
func (s Summary) Table() *models.Table {
	tbl := models.NewTable("performance", "Metric", "Value")
	tbl.AddRow("Annual Expected Return", s.Return)
	tbl.AddRow("Annual Volatility", s.Volatility)
	tbl.AddRow("Sharpe Ratio", s.Sharpe)
	if s.RiskMeasure != "" {
		tbl.AddRow(s.RiskMeasure, s.Risk)
	}
	return tbl
}
