package cli

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"research-terminal/internal/errors"
	"research-terminal/internal/export"
	"research-terminal/internal/models"
	"research-terminal/internal/po"
	"research-terminal/internal/security"
	"research-terminal/internal/sources/kite"
	"research-terminal/internal/store"
)

var optimizerHelp = map[string]string{
	"equal":      "Equal weights",
	"invvol":     "Inverse volatility weights",
	"maxsharpe":  "Maximum Sharpe ratio portfolio",
	"minrisk":    "Minimum risk portfolio",
	"maxutil":    "Maximum utility portfolio",
	"maxret":     "Maximum return portfolio",
	"maxdiv":     "Maximum diversification ratio portfolio",
	"maxdecorr":  "Maximum decorrelation portfolio",
	"riskparity": "Equal risk contribution portfolio",
	"hrp":        "Hierarchical risk parity",
	"herc":       "Hierarchical equal risk contribution",
	"nco":        "Nested clustered optimization",
	"ef":         "Efficient frontier",
}

func newPoCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "po",
		Short: "Portfolio optimization",
		Long: `Optimize a portfolio over a set of symbols.

Symbols come from --symbols, an allocation file (--file) with a Ticker column and
optional category columns, or a saved portfolio (--from-saved). Parameters are
read from [portfolio] in config.toml, the configured params file, --params-file,
the flags below and finally --set key=value overrides.`,
		Example: `  terminal po maxsharpe --symbols AAPL,MSFT,GOOG,AMZN --period 3y
  terminal po hrp --file holdings.xlsx --set linkage=ward --pie
  terminal po blacklitterman --symbols AAPL,MSFT,XOM --view "AAPL>XOM=0.03"
  terminal po ef --symbols BTC-USD,ETH-USD,GLD --set tangency=true --plot`,
	}

	pf := cmd.PersistentFlags()
	pf.String("symbols", "", "comma separated symbols, e.g. AAPL,NSE:INFY,CG:bitcoin")
	pf.String("file", "", "allocation file (.csv or .xlsx) with a Ticker column")
	pf.String("params-file", "", "parameter file (.ini)")
	pf.String("period", "", "lookback: 1mo 3mo 6mo 1y 2y 3y 5y 10y ytd max")
	pf.String("start", "", "start date YYYY-MM-DD")
	pf.String("end", "", "end date YYYY-MM-DD")
	pf.String("freq", "", "return frequency: d, w, m")
	pf.String("risk-measure", "", "risk measure: "+strings.Join(po.RiskMeasureNames, " "))
	pf.Float64("value", 0, "amount to allocate")
	pf.StringArray("set", nil, "parameter override key=value (repeatable)")
	pf.String("from-saved", "", "start from a saved portfolio's symbols and weights")

	names := make([]string, 0, len(po.EntryPoints))
	for name := range po.EntryPoints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd.AddCommand(newOptimizerCmd(app, name, po.EntryPoints[name]))
	}
	cmd.AddCommand(newBlackLittermanCmd(app))
	cmd.AddCommand(newPoParamsCmd(app))
	cmd.AddCommand(newPoCategoryCmd(app))
	cmd.AddCommand(newPoSavedCmd(app))
	cmd.AddCommand(newPoShowSavedCmd(app))
	cmd.AddCommand(newPoDeleteSavedCmd(app))
	return cmd
}

type optimizeFunc func(ctx context.Context, e *po.Engine, overrides map[string]interface{}) (*po.Result, error)

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("pie", false, "save a PNG pie chart of the weights")
	cmd.Flags().String("save", "", "save the result under this name")
	cmd.Flags().String("out", "", "write the allocation to a .csv or .xlsx file")
	addTableFlags(cmd, 0)
}

func newOptimizerCmd(app *App, name string, entry po.EntryPoint) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: optimizerHelp[name],
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runOptimizer(cmd, name, func(ctx context.Context, e *po.Engine, overrides map[string]interface{}) (*po.Result, error) {
				return entry(ctx, e, app.Prices, overrides)
			})
		},
	}
	addRunFlags(cmd)
	if name == "ef" {
		cmd.Flags().Bool("plot", false, "save a PNG of the frontier")
	}
	return cmd
}

func newBlackLittermanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklitterman",
		Short: "Black-Litterman with absolute and relative views",
		Long: `Blend the equilibrium returns of a benchmark with investor views.

The benchmark is the --from-saved portfolio, else the current invested amounts of
the allocation file, else equal weights. Views are annual returns: "AAPL=0.10"
expects 10% from AAPL, "AAPL>MSFT=0.02" expects AAPL to beat MSFT by 2%.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetStringArray("view")
			views := make([]po.View, 0, len(raw))
			for _, s := range raw {
				v, err := po.ParseView(s)
				if err != nil {
					return fail(NewOutput(cmd), emptyWeights("BlackLitterman"), "Invalid view", err)
				}
				views = append(views, v)
			}
			return app.runOptimizer(cmd, "blacklitterman", func(ctx context.Context, e *po.Engine, overrides map[string]interface{}) (*po.Result, error) {
				return po.GetBlackLitterman(ctx, e, app.Prices, overrides, views...)
			})
		},
	}
	cmd.Flags().StringArray("view", nil, `view "SYM=value" or "LONG>SHORT=value" (repeatable)`)
	addRunFlags(cmd)
	return cmd
}

func emptyWeights(method string) *models.Table {
	return (&po.Result{Method: method}).WeightsTable()
}

func splitSymbols(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// configParams maps [portfolio] settings onto template parameters.
func (a *App) configParams() map[string]interface{} {
	p := a.Config.Portfolio
	params := map[string]interface{}{
		"risk_free":       p.RiskFreeRate,
		"long_allocation": p.LongAllocation,
	}
	if p.HistoricPeriod != "" {
		params["historic_period"] = p.HistoricPeriod
	}
	if p.ReturnFrequency != "" {
		params["return_frequency"] = p.ReturnFrequency
	}
	return params
}

// paramsFiles lists the configured params file followed by --params-file.
func (a *App) paramsFiles(cmd *cobra.Command) []string {
	var files []string
	if a.Config.Portfolio.ParamsFile != "" {
		files = append(files, a.Config.Portfolio.ParamsFile)
	}
	if f, _ := cmd.Flags().GetString("params-file"); f != "" {
		files = append(files, f)
	}
	return files
}

// buildEngine creates the engine from flags, loads stored parameters and seeds saved weights.
func (a *App) buildEngine(ctx context.Context, cmd *cobra.Command) (*po.Engine, error) {
	symbolsRaw, _ := cmd.Flags().GetString("symbols")
	file, _ := cmd.Flags().GetString("file")
	savedID, _ := cmd.Flags().GetString("from-saved")
	symbols := splitSymbols(symbolsRaw)
	if err := security.ValidateSymbols(symbols); err != nil {
		return nil, err
	}

	var saved *store.Portfolio
	if savedID != "" {
		if a.Store == nil {
			return nil, fmt.Errorf("%w: saved portfolios need the local store", errors.ErrNotConfigured)
		}
		var err error
		if saved, err = a.Store.GetPortfolio(ctx, savedID); err != nil {
			return nil, err
		}
		if len(symbols) == 0 && file == "" {
			symbols = saved.Symbols()
		}
	}

	engine, err := po.NewEngine(po.EngineOptions{Symbols: symbols, SymbolsFile: file, Logger: a.Logger})
	if err != nil {
		return nil, err
	}
	if err := engine.SetParams(a.configParams()); err != nil {
		return nil, fmt.Errorf("[portfolio] config: %w", err)
	}
	for _, path := range a.paramsFiles(cmd) {
		if err := engine.SetParamsFromFile(path); err != nil {
			return nil, err
		}
	}

	if saved != nil {
		held := make(map[string]float64)
		for _, sym := range engine.GetSymbols() {
			if w, ok := saved.Weights[sym]; ok {
				held[sym] = w
			}
		}
		if err := engine.SetWeights(held); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

var flagParams = []struct{ flag, param string }{
	{"period", "historic_period"},
	{"start", "start_period"},
	{"end", "end_period"},
	{"freq", "return_frequency"},
	{"risk-measure", "risk_measure"},
}

// poOverrides collects the call-time parameter overrides set on the command line.
func poOverrides(cmd *cobra.Command) (map[string]interface{}, error) {
	overrides := make(map[string]interface{})
	for _, fp := range flagParams {
		if cmd.Flags().Changed(fp.flag) {
			v, _ := cmd.Flags().GetString(fp.flag)
			overrides[fp.param] = v
		}
	}
	if cmd.Flags().Changed("value") {
		v, _ := cmd.Flags().GetFloat64("value")
		overrides["long_allocation"] = v
	}

	sets, _ := cmd.Flags().GetStringArray("set")
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errors.NewValidationError("set", kv, "expected key=value")
		}
		overrides[k] = strings.TrimSpace(v)
	}
	return overrides, nil
}

func (a *App) runOptimizer(cmd *cobra.Command, method string, optimize optimizeFunc) error {
	output := NewOutput(cmd)
	flags, err := readTableFlags(cmd)
	if err != nil {
		return fail(output, emptyWeights(method), "Invalid flags", err)
	}
	overrides, err := poOverrides(cmd)
	if err != nil {
		return fail(output, emptyWeights(method), "Invalid parameters", err)
	}

	ctx, cancel := a.commandContext(cmd)
	defer cancel()

	engine, err := a.buildEngine(ctx, cmd)
	if err != nil {
		return fail(output, emptyWeights(method), "Cannot build portfolio", err)
	}
	res, err := optimize(ctx, engine, overrides)
	if err != nil {
		return fail(output, emptyWeights(method), "Optimization failed", err)
	}
	return a.showResult(ctx, cmd, output, res, flags)
}

// indianPortfolio reports whether every symbol is an NSE or BSE listing.
func indianPortfolio(symbols []string) bool {
	if len(symbols) == 0 {
		return false
	}
	for _, s := range symbols {
		if _, _, ok := kite.SplitSymbol(s); !ok {
			return false
		}
	}
	return true
}

type resultView struct {
	Method      string             `json:"method"`
	Weights     map[string]float64 `json:"weights"`
	Allocations []allocationView   `json:"allocations"`
	Performance map[string]float64 `json:"performance"`
	Dropped     []string           `json:"dropped,omitempty"`
	Clusters    map[string]int     `json:"clusters,omitempty"`
	Frontier    *frontierResult    `json:"frontier,omitempty"`
	SavedID     string             `json:"saved_id,omitempty"`
}

type allocationView struct {
	Symbol string  `json:"symbol"`
	Weight float64 `json:"weight"`
	Amount string  `json:"amount"`
}

type frontierView struct {
	Risk   float64 `json:"risk"`
	Return float64 `json:"return"`
	Sharpe float64 `json:"sharpe"`
}

type frontierResult struct {
	Measure  string         `json:"measure"`
	Points   []frontierView `json:"points"`
	Random   []frontierView `json:"random,omitempty"`
	Tangency *frontierView  `json:"tangency,omitempty"`
}

func newFrontierView(p po.FrontierPoint) frontierView {
	return frontierView{Risk: p.Risk, Return: p.Return, Sharpe: finite(p.Sharpe)}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func newResultView(res *po.Result) resultView {
	view := resultView{
		Method:   res.Method,
		Weights:  res.Weights,
		Dropped:  res.Report.Dropped,
		Clusters: res.Clusters,
		Performance: map[string]float64{
			"annual_return":     finite(res.Summary.Return),
			"annual_volatility": finite(res.Summary.Volatility),
			"sharpe":            finite(res.Summary.Sharpe),
		},
	}
	if res.Summary.RiskMeasure != "" {
		view.Performance[strings.ToLower(res.Summary.RiskMeasure)] = finite(res.Summary.Risk)
	}
	for _, al := range res.Allocations {
		view.Allocations = append(view.Allocations, allocationView{Symbol: al.Symbol, Weight: al.Weight, Amount: al.Amount.StringFixed(2)})
	}
	if f := res.Frontier; f != nil {
		view.Frontier = &frontierResult{Measure: f.Measure}
		for _, p := range f.Points {
			view.Frontier.Points = append(view.Frontier.Points, newFrontierView(p))
		}
		for _, p := range f.Random {
			view.Frontier.Random = append(view.Frontier.Random, newFrontierView(p))
		}
		if f.Tangency != nil {
			t := newFrontierView(*f.Tangency)
			view.Frontier.Tangency = &t
		}
	}
	return view
}

// frontierTable lists the frontier points from lowest to highest risk, then the tangency
// portfolio and the best random portfolio by Sharpe ratio.
func frontierTable(f *po.Frontier) *models.Table {
	tbl := models.NewTable("frontier", "Point", "Risk %", "Return %", "Sharpe")
	for i, p := range f.Points {
		tbl.AddRow(strconv.Itoa(i+1), p.Risk*100, p.Return*100, p.Sharpe)
	}
	if t := f.Tangency; t != nil {
		tbl.AddRow("tangency", t.Risk*100, t.Return*100, t.Sharpe)
	}
	if len(f.Random) > 0 {
		best := f.Random[0]
		for _, p := range f.Random[1:] {
			if math.IsNaN(best.Sharpe) || p.Sharpe > best.Sharpe {
				best = p
			}
		}
		tbl.AddRow(fmt.Sprintf("best of %d random", len(f.Random)), best.Risk*100, best.Return*100, best.Sharpe)
	}
	return tbl
}

func (a *App) showResult(ctx context.Context, cmd *cobra.Command, output *Output, res *po.Result, flags tableFlags) error {
	view := newResultView(res)

	if name, _ := cmd.Flags().GetString("save"); name != "" {
		id, err := a.savePortfolio(ctx, name, res)
		if err != nil {
			return fail(output, nil, "Failed to save portfolio", err)
		}
		view.SavedID = id
	}

	weights := res.WeightsTable()
	if output.IsJSON() {
		if err := output.JSON(view); err != nil {
			return err
		}
	} else {
		output.Bold("%s portfolio of %d assets", res.Method, len(res.Symbols))
		if len(res.Report.Dropped) > 0 {
			output.Warning("Dropped for missing prices: %s", strings.Join(res.Report.Dropped, ", "))
		}
		output.Println()
		if res.Frontier != nil {
			output.RenderTable(frontierTable(res.Frontier))
			output.Println()
		}
		if err := a.presentTable(cmd, output, weights, tableFlags{SortBy: flags.SortBy, Limit: flags.Limit, Ascend: flags.Ascend}); err != nil {
			return err
		}
		output.Println()
		output.Box("Performance", summaryLines(output, res))
		if view.SavedID != "" {
			output.Success("Saved as %s", view.SavedID)
		}
	}

	if err := a.exportTable(cmd, output, weights, flags.Formats); err != nil {
		return err
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := po.WriteAllocationFile(out, res.Allocations); err != nil {
			return fail(output, nil, "Failed to write allocation", err)
		}
		if !output.IsJSON() {
			output.Dim("Allocation written to %s", out)
		}
	}
	if pie, _ := cmd.Flags().GetBool("pie"); pie {
		if err := a.savePie(cmd, output, res); err != nil {
			return err
		}
	}
	if plot, _ := cmd.Flags().GetBool("plot"); plot && res.Frontier != nil {
		if err := a.saveFrontier(cmd, output, res.Frontier); err != nil {
			return err
		}
	}
	return nil
}

func summaryLines(output *Output, res *po.Result) []string {
	s := res.Summary
	inr := indianPortfolio(res.Symbols)
	lines := []string{
		fmt.Sprintf("Annual Expected Return: %s", output.Signed(s.Return, FormatWeight(s.Return))),
		fmt.Sprintf("Annual Volatility:      %s", FormatWeight(s.Volatility)),
		fmt.Sprintf("Sharpe Ratio:           %.2f", finite(s.Sharpe)),
	}
	if s.RiskMeasure != "" {
		lines = append(lines, fmt.Sprintf("%-23s %s", s.RiskMeasure+":", FormatWeight(s.Risk)))
	}
	if len(res.Clusters) > 0 {
		k := make(map[int]bool)
		for _, c := range res.Clusters {
			k[c] = true
		}
		lines = append(lines, fmt.Sprintf("Clusters:               %d", len(k)))
	}
	lines = append(lines, fmt.Sprintf("Allocated:              %s", FormatMoney(res.Options.Value, inr)))
	return lines
}

func (a *App) savePortfolio(ctx context.Context, name string, res *po.Result) (string, error) {
	if a.Store == nil {
		return "", fmt.Errorf("%w: saved portfolios need the local store", errors.ErrNotConfigured)
	}
	p := &store.Portfolio{Name: name, Method: res.Method, Params: res.Params, Weights: res.Weights}
	if err := a.Store.SavePortfolio(ctx, p); err != nil {
		return "", err
	}
	return p.ID, nil
}

func (a *App) savePie(cmd *cobra.Command, output *Output, res *po.Result) error {
	slices := make([]export.Slice, 0, len(res.Weights))
	for sym, w := range res.Weights {
		slices = append(slices, export.Slice{Label: sym, Value: w})
	}
	png, err := export.PieChart(res.Method+" weights", slices)
	if err != nil {
		return fail(output, nil, "Failed to render pie chart", err)
	}
	path, err := a.Exporter.SavePNG(commandName(cmd)+" pie", png)
	if err != nil {
		return fail(output, nil, "Failed to save pie chart", err)
	}
	if !output.IsJSON() {
		output.Info("Pie chart saved to %s", path)
	}
	return nil
}

func (a *App) saveFrontier(cmd *cobra.Command, output *Output, f *po.Frontier) error {
	toPoints := func(points []po.FrontierPoint) []export.Point {
		out := make([]export.Point, len(points))
		for i, p := range points {
			out[i] = export.Point{Risk: p.Risk, Return: p.Return, Sharpe: p.Sharpe}
		}
		return out
	}
	var tangency *export.Point
	if f.Tangency != nil {
		tangency = &toPoints([]po.FrontierPoint{*f.Tangency})[0]
	}
	png, err := export.FrontierChart("Efficient Frontier", f.Measure, toPoints(f.Points), toPoints(f.Random), tangency)
	if err != nil {
		return fail(output, nil, "Failed to render frontier", err)
	}
	path, err := a.Exporter.SavePNG(commandName(cmd)+" frontier", png)
	if err != nil {
		return fail(output, nil, "Failed to save frontier", err)
	}
	if !output.IsJSON() {
		output.Info("Frontier saved to %s", path)
	}
	return nil
}
