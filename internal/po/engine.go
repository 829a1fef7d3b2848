// Package po implements portfolio optimization: the engine holding a portfolio's inputs and
// outputs, the parameter catalog, return construction, estimators, risk measures and optimizers.
package po

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"research-terminal/internal/errors"
	"research-terminal/internal/models"
)

// CurrentInvestedAmount is the category holding the amount currently invested per symbol.
const CurrentInvestedAmount = "CURRENT_INVESTED_AMOUNT"

// Returns is a date by symbol matrix of periodic returns.
type Returns struct {
	Dates   []time.Time
	Symbols []string
	Data    *mat.Dense // rows are dates, columns are symbols
	Freq    string
}

// Dims returns the number of observations and assets.
func (r *Returns) Dims() (int, int) {
	if r == nil || r.Data == nil {
		return 0, 0
	}
	return r.Data.Dims()
}

// Column returns a copy of one asset's returns.
func (r *Returns) Column(j int) []float64 {
	return mat.Col(nil, j, r.Data)
}

// Portfolio returns the period returns of a weighted portfolio.
func (r *Returns) Portfolio(w []float64) []float64 {
	t, _ := r.Dims()
	out := make([]float64, t)
	pr := mat.NewVecDense(t, out)
	pr.MulVec(r.Data, mat.NewVecDense(len(w), w))
	return out
}

// Subset returns the returns restricted to the given column indexes.
func (r *Returns) Subset(cols []int) *Returns {
	t, _ := r.Dims()
	data := mat.NewDense(t, len(cols), nil)
	symbols := make([]string, len(cols))
	for k, j := range cols {
		data.SetCol(k, r.Column(j))
		symbols[k] = r.Symbols[j]
	}
	return &Returns{Dates: r.Dates, Symbols: symbols, Data: data, Freq: r.Freq}
}

// EngineOptions configures a new Engine.
type EngineOptions struct {
	Symbols     []string
	SymbolsFile string
	Categories  map[string]map[string]string
	Logger      zerolog.Logger
}

// Engine holds a portfolio's symbols, categories, parameters, returns and optimized weights.
// It lives for the duration of a command and is mutated in place by the optimizers.
type Engine struct {
	mu         sync.RWMutex
	symbols    []string
	categories map[string]map[string]string
	weights    map[string]float64
	returns    *Returns
	params     map[string]interface{}
	logger     zerolog.Logger
}

// NewEngine creates an engine from explicit symbols, an allocation file, or both.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if len(opts.Symbols) == 0 && opts.SymbolsFile == "" {
		return nil, errors.ErrMissingSymbols
	}

	e := &Engine{
		categories: make(map[string]map[string]string),
		weights:    make(map[string]float64),
		params:     make(map[string]interface{}),
		logger:     opts.Logger,
	}

	if opts.SymbolsFile != "" {
		alloc, err := LoadAllocationFile(opts.SymbolsFile)
		if err != nil {
			return nil, err
		}
		e.addSymbols(alloc.Symbols)
		e.mergeCategories(alloc.Categories)
	}
	e.addSymbols(opts.Symbols)
	e.mergeCategories(opts.Categories)

	if len(e.symbols) == 0 {
		return nil, errors.ErrMissingSymbols
	}
	return e, nil
}

func (e *Engine) addSymbols(symbols []string) {
	seen := make(map[string]bool, len(e.symbols))
	for _, s := range e.symbols {
		seen[s] = true
	}
	for _, s := range symbols {
		s = NormalizeSymbol(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		e.symbols = append(e.symbols, s)
	}
}

func (e *Engine) mergeCategories(categories map[string]map[string]string) {
	for name, bySymbol := range categories {
		name = strings.ToUpper(name)
		if e.categories[name] == nil {
			e.categories[name] = make(map[string]string)
		}
		for sym, label := range bySymbol {
			e.categories[name][NormalizeSymbol(sym)] = label
		}
	}
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// GetSymbols returns the portfolio symbols in insertion order.
func (e *Engine) GetSymbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.symbols...)
}

// SetWeights replaces the weights. Every key must be a portfolio symbol.
func (e *Engine) SetWeights(weights map[string]float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	known := make(map[string]bool, len(e.symbols))
	for _, s := range e.symbols {
		known[s] = true
	}

	next := make(map[string]float64, len(weights))
	for sym, w := range weights {
		sym = NormalizeSymbol(sym)
		if !known[sym] {
			return fmt.Errorf("%w: %s", errors.ErrUnknownSymbol, sym)
		}
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return errors.NewValidationError("weight", w, "must be finite for "+sym)
		}
		next[sym] = w
	}
	e.weights = next
	return nil
}

// GetWeightsMap returns a copy of the weights.
func (e *Engine) GetWeightsMap() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]float64, len(e.weights))
	for k, v := range e.weights {
		out[k] = v
	}
	return out
}

// GetWeights returns the weights as a single column table indexed by symbol, largest first.
func (e *Engine) GetWeights() *models.Table {
	weights := e.GetWeightsMap()
	tbl := models.NewTable("weights", "Symbol", "Weight")
	for _, sym := range sortedByWeight(weights) {
		tbl.AddRow(sym, weights[sym])
	}
	return tbl
}

// SetReturns stores the returns the latest optimization ran on.
func (e *Engine) SetReturns(r *Returns) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.returns = r
}

// GetReturns returns the stored returns, nil before any optimization.
func (e *Engine) GetReturns() *Returns {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.returns
}

// SetParams validates and stores parameters by template name. Invalid input leaves the
// stored parameters unchanged.
func (e *Engine) SetParams(params map[string]interface{}) error {
	validated := make(map[string]interface{}, len(params))
	for k, raw := range params {
		p, ok := resolve(k)
		if !ok {
			return errors.NewParameterError(k, raw, errors.ErrUnknownParameter)
		}
		v, err := p.Validate(raw)
		if err != nil {
			return err
		}
		validated[p.Name()] = v
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for k, v := range validated {
		e.params[k] = v
	}
	return nil
}

// GetParams returns a copy of the stored parameters keyed by template name.
func (e *Engine) GetParams() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]interface{}, len(e.params))
	for k, v := range e.params {
		out[k] = v
	}
	return out
}

// GetValue returns the long allocation amount from the stored parameters.
func (e *Engine) GetValue() float64 {
	if v, ok := e.GetParams()["long_allocation"].(float64); ok {
		return v
	}
	return catalog["long_allocation"].Default().(float64)
}

// GetCategories returns the category names, sorted.
func (e *Engine) GetCategories() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.categories))
	for name := range e.categories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// GetCategoryTable groups the current weights by the labels of one category.
// Rows are ordered by category total, then by weight inside each category.
func (e *Engine) GetCategoryTable(category string) (*models.Table, error) {
	category = strings.ToUpper(strings.TrimSpace(category))

	e.mu.RLock()
	labels, ok := e.categories[category]
	invested := e.categories[CurrentInvestedAmount]
	e.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", errors.ErrUnknownCategory, category,
			strings.Join(e.GetCategories(), ", "))
	}

	weights := e.GetWeightsMap()
	current := currentWeights(invested)

	totals := make(map[string]float64)
	members := make(map[string][]string)
	for _, sym := range e.GetSymbols() {
		label := labels[sym]
		if label == "" {
			label = "Other"
		}
		totals[label] += weights[sym]
		members[label] = append(members[label], sym)
	}

	order := make([]string, 0, len(totals))
	for label := range totals {
		order = append(order, label)
	}
	sort.SliceStable(order, func(i, j int) bool {
		if totals[order[i]] != totals[order[j]] {
			return totals[order[i]] > totals[order[j]]
		}
		return order[i] < order[j]
	})

	headers := []string{category, "Symbol", "Weight", "Category Weight"}
	if current != nil {
		headers = append(headers, "Current", "Category Current")
	}
	tbl := models.NewTable("category_"+strings.ToLower(category), headers...)

	for _, label := range order {
		syms := members[label]
		sort.SliceStable(syms, func(i, j int) bool {
			if weights[syms[i]] != weights[syms[j]] {
				return weights[syms[i]] > weights[syms[j]]
			}
			return syms[i] < syms[j]
		})

		var currentTotal float64
		for _, sym := range syms {
			currentTotal += current[sym]
		}
		for _, sym := range syms {
			row := []interface{}{label, sym, weights[sym], totals[label]}
			if current != nil {
				row = append(row, current[sym], currentTotal)
			}
			tbl.AddRow(row...)
		}
	}
	return tbl, nil
}

func currentWeights(invested map[string]string) map[string]float64 {
	if len(invested) == 0 {
		return nil
	}
	amounts := make(map[string]float64, len(invested))
	var total float64
	for sym, raw := range invested {
		var v float64
		if _, err := fmt.Sscan(strings.ReplaceAll(raw, ",", ""), &v); err != nil || v < 0 {
			continue
		}
		amounts[sym] = v
		total += v
	}
	if total == 0 {
		return nil
	}
	for sym := range amounts {
		amounts[sym] /= total
	}
	return amounts
}

func sortedByWeight(weights map[string]float64) []string {
	syms := make([]string, 0, len(weights))
	for s := range weights {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool {
		if weights[syms[i]] != weights[syms[j]] {
			return weights[syms[i]] > weights[syms[j]]
		}
		return syms[i] < syms[j]
	})
	return syms
}
