package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"research-terminal/internal/analysis/indicators"
	"research-terminal/internal/models"
	"research-terminal/internal/prices"
	"research-terminal/internal/security"
	"research-terminal/internal/store"
)

func newDataCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Price history from Yahoo Finance, Zerodha Kite and CoinGecko",
	}
	cmd.AddCommand(newHistoryCmd(app))
	cmd.AddCommand(newTechnicalCmd(app))
	return cmd
}

func newHistoryCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <symbol>",
		Short: "Get historical OHLCV data",
		Long: `Fetch daily OHLCV history for a symbol.

Symbols are routed by prefix: NSE:/BSE: to Zerodha Kite (credentials required),
CG: to CoinGecko coin ids, anything else to Yahoo Finance.
Daily history is cached locally and refreshed once the cache TTL expires.`,
		Example: `  terminal data history AAPL --period 1y
  terminal data history NSE:INFY --start 2024-01-01 --end 2024-06-30
  terminal data history CG:bitcoin --period 6mo --plot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := args[0]
			if err := security.ValidateSymbol(symbol); err != nil {
				return fail(output, nil, "Invalid symbol", err)
			}
			rng, err := rangeFromFlags(cmd)
			if err != nil {
				return fail(output, nil, "Invalid range", err)
			}

			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			candles, err := app.Prices.History(ctx, symbol, rng)
			if err != nil {
				return fail(output, prices.HistoryTable(symbol, nil), "Failed to load history", err)
			}

			source, routed := prices.Route(symbol)
			if !output.IsJSON() {
				output.Bold("%s (%s)", routed, source)
				if app.Store != nil && app.Config.Data.CacheEnabled && rng.Interval == "1d" {
					f := store.Freshness(app.Store, store.SyncKey(routed, string(source)), app.Config.Data.CacheTTL, time.Now())
					output.Dim("%s, %d bars", store.FormatFreshness(f), len(candles))
				}
			}

			if plot, _ := cmd.Flags().GetBool("plot"); plot {
				if err := app.plotCandles(cmd, output, routed, candles); err != nil {
					return err
				}
			}
			return app.showTable(cmd, prices.HistoryTable(routed, candles))
		},
	}

	addRangeFlags(cmd, "1y")
	cmd.Flags().String("interval", "1d", "bar interval: 1d, 1wk, 1mo")
	cmd.Flags().Bool("plot", false, "save a PNG line chart of closes")
	addTableFlags(cmd, 0)
	return cmd
}

func newTechnicalCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ta <symbol>",
		Short: "Technical indicators over daily history",
		Long: `Compute technical indicators over a symbol's daily closes.

Indicators: sma<n>, ema<n>, rsi<n>, macd, bbands<n>, atr<n>.
A missing period uses the default (sma/ema 20, rsi/atr 14, bbands 20).
Rows are newest first; values inside an indicator's warm-up show as "-".`,
		Example: `  terminal data ta AAPL
  terminal data ta NSE:TCS --indicators sma50,ema20,rsi --limit 10
  terminal data ta CG:ethereum --indicators bbands,atr --period 6mo --format csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbol := args[0]
			if err := security.ValidateSymbol(symbol); err != nil {
				return fail(output, nil, "Invalid symbol", err)
			}
			specs, _ := cmd.Flags().GetString("indicators")
			inds, err := indicators.ParseList(specs)
			if err != nil {
				return fail(output, nil, "Invalid indicators", err)
			}
			rng, err := rangeFromFlags(cmd)
			if err != nil {
				return fail(output, nil, "Invalid range", err)
			}

			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			candles, err := app.Prices.History(ctx, symbol, rng)
			if err != nil {
				return fail(output, nil, "Failed to load history", err)
			}

			series, err := indicators.Calculate(ctx, candles, inds, app.Config.Newsletter.Workers)
			if err != nil {
				return fail(output, nil, "Indicator calculation failed", fmt.Errorf("%w (%d bars loaded)", err, len(candles)))
			}
			app.Logger.Debug().Str("symbol", symbol).Int("bars", len(candles)).Int("series", len(series)).Msg("indicators calculated")

			_, routed := prices.Route(symbol)
			if !output.IsJSON() {
				output.Bold("%s technicals", routed)
			}
			return app.showTable(cmd, indicators.Table(routed, candles, series))
		},
	}

	addRangeFlags(cmd, "1y")
	cmd.Flags().String("indicators", "sma20,ema20,rsi14,macd", "comma separated indicators")
	addTableFlags(cmd, 20)
	return cmd
}

// addRangeFlags registers --period, --start and --end.
func addRangeFlags(cmd *cobra.Command, defaultPeriod string) {
	cmd.Flags().String("period", defaultPeriod, "lookback: 1mo 3mo 6mo 1y 2y 3y 5y 10y ytd max")
	cmd.Flags().String("start", "", "start date YYYY-MM-DD (overrides --period)")
	cmd.Flags().String("end", "", "end date YYYY-MM-DD")
}

func rangeFromFlags(cmd *cobra.Command) (models.Range, error) {
	var rng models.Range
	rng.Period, _ = cmd.Flags().GetString("period")
	rng.Interval = "1d"
	if cmd.Flags().Lookup("interval") != nil {
		rng.Interval, _ = cmd.Flags().GetString("interval")
	}

	startRaw, _ := cmd.Flags().GetString("start")
	endRaw, _ := cmd.Flags().GetString("end")
	var err error
	if rng.Start, err = parseDate(startRaw); err != nil {
		return rng, fmt.Errorf("--start: %w", err)
	}
	if rng.End, err = parseDate(endRaw); err != nil {
		return rng, fmt.Errorf("--end: %w", err)
	}
	if _, _, err := rng.Bounds(time.Now()); err != nil {
		return rng, err
	}
	return rng, nil
}
