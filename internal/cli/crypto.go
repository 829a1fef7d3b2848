package cli

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"research-terminal/internal/export"
	"research-terminal/internal/models"
	"research-terminal/internal/prices"
	"research-terminal/internal/sources/coinbase"
	"research-terminal/internal/sources/coinpaprika"
	"research-terminal/internal/sources/ethplorer"
	"research-terminal/internal/sources/glassnode"
)

func newCryptoCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crypto",
		Short: "Crypto market data",
		Long:  "Coins, exchanges, candles and on-chain metrics from public crypto APIs.",
	}

	cmd.AddCommand(newCoinsCmd(app))
	cmd.AddCommand(newTrendingCmd(app))
	cmd.AddCommand(newGlobalCmd(app))
	cmd.AddCommand(newCoinSearchCmd(app))
	cmd.AddCommand(newCoinChartCmd(app))
	cmd.AddCommand(newPaprikaCmd(app))
	cmd.AddCommand(newCoinbaseCmd(app))
	cmd.AddCommand(newOnchainCmd(app))
	cmd.AddCommand(newEthCmd(app))
	return cmd
}

func newCoinsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coins",
		Short: "Top coins by market cap (CoinGecko)",
		Example: `  terminal crypto coins --limit 20
  terminal crypto coins --order volume_desc --vs eur
  terminal crypto coins --sortby "7d %" --export csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			vs, _ := cmd.Flags().GetString("vs")
			order, _ := cmd.Flags().GetString("order")
			limit, _ := cmd.Flags().GetInt("limit")
			if vs == "" {
				vs = app.Config.Data.VsCurrency
			}

			tbl, err := app.coingecko().Markets(ctx, vs, order, limit)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load coins", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	cmd.Flags().String("vs", "", "quote currency (default from config)")
	cmd.Flags().String("order", "market_cap_desc", "CoinGecko order, e.g. market_cap_desc, volume_desc")
	addTableFlags(cmd, 20)
	return cmd
}

func newTrendingCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trending",
		Short: "Coins trending in searches over the last 24h (CoinGecko)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := app.coingecko().Trending(ctx)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load trending coins", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(cmd, 0)
	return cmd
}

func newGlobalCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "global",
		Short: "Global crypto market statistics (CoinGecko)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := app.coingecko().Global(ctx, app.Config.Data.VsCurrency)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load global stats", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(cmd, 0)
	return cmd
}

func newCoinSearchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "search <query>",
		Short:   "Search coins by name or symbol (CoinGecko)",
		Example: `  terminal crypto search solana`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := app.coingecko().Search(ctx, strings.Join(args, " "))
			if err != nil {
				return fail(NewOutput(cmd), nil, "Search failed", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(cmd, 20)
	return cmd
}

func newCoinChartCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chart <coin-id>",
		Short: "Price history of a coin (CoinGecko)",
		Example: `  terminal crypto chart bitcoin --days 90
  terminal crypto chart ethereum --days 365 --plot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			id := strings.ToLower(args[0])
			days, _ := cmd.Flags().GetString("days")
			plot, _ := cmd.Flags().GetBool("plot")

			candles, err := app.coingecko().MarketChart(ctx, id, app.Config.Data.VsCurrency, days)
			if err != nil {
				return fail(output, nil, "Failed to load chart", err)
			}
			if plot {
				if err := app.plotCandles(cmd, output, id, candles); err != nil {
					return err
				}
			}
			return app.showTable(cmd, prices.HistoryTable(id, candles))
		},
	}
	cmd.Flags().String("days", "30", "days of history (1, 7, 30, 90, 365, max)")
	cmd.Flags().Bool("plot", false, "save a PNG line chart of closes")
	addTableFlags(cmd, 0)
	return cmd
}

// plotCandles saves a close price line chart under the export directory.
func (a *App) plotCandles(cmd *cobra.Command, output *Output, name string, candles []models.Candle) error {
	labels := make([]string, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		labels[i] = c.Timestamp.Format("2006-01-02")
		closes[i] = c.Close
	}
	png, err := export.LineChart(strings.ToUpper(name), labels, []string{"Close"}, [][]float64{closes})
	if err != nil {
		return fail(output, nil, "Failed to render chart", err)
	}
	path, err := a.Exporter.SavePNG(commandName(cmd)+" "+name, png)
	if err != nil {
		return fail(output, nil, "Failed to save chart", err)
	}
	if !output.IsJSON() {
		output.Info("Chart saved to %s", path)
	}
	return nil
}

func newPaprikaCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "paprika",
		Short: "CoinPaprika market data",
	}
	client := func() *coinpaprika.Client { return coinpaprika.New(app.httpOptions()) }

	global := &cobra.Command{
		Use:   "global",
		Short: "Global market overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := client().Global(ctx)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load global overview", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(global, 0)

	tickers := &cobra.Command{
		Use:   "tickers",
		Short: "Coins ranked by market cap with price changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			quote, _ := cmd.Flags().GetString("quote")
			limit, _ := cmd.Flags().GetInt("limit")
			tbl, err := client().Tickers(ctx, quote, limit)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load tickers", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	tickers.Flags().String("quote", "USD", "quote currency: USD or BTC")
	addTableFlags(tickers, 20)

	exchanges := &cobra.Command{
		Use:   "exchanges",
		Short: "Active exchanges by adjusted 24h volume",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			limit, _ := cmd.Flags().GetInt("limit")
			tbl, err := client().Exchanges(ctx, limit)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load exchanges", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(exchanges, 20)

	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search currencies, exchanges and people",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			limit, _ := cmd.Flags().GetInt("limit")
			tbl, err := client().Search(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Search failed", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(search, 20)

	cmd.AddCommand(global, tickers, exchanges, search)
	return cmd
}

func newCoinbaseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coinbase",
		Short: "Coinbase Exchange products, tickers and candles",
	}
	client := func() *coinbase.Client { return coinbase.New(app.httpOptions()) }

	products := &cobra.Command{
		Use:   "products",
		Short: "Tradable products",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			quote, _ := cmd.Flags().GetString("quote")
			tbl, err := client().Products(ctx, quote)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load products", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	products.Flags().String("quote", "", "only products quoted in this currency, e.g. USD")
	addTableFlags(products, 0)

	ticker := &cobra.Command{
		Use:     "ticker <product>",
		Short:   "Last trade, bid and ask of a product",
		Example: `  terminal crypto coinbase ticker BTC-USD`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := client().Ticker(ctx, args[0])
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load ticker", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(ticker, 0)

	stats := &cobra.Command{
		Use:   "stats <product>",
		Short: "24h stats of a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := client().Stats(ctx, args[0])
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load stats", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(stats, 0)

	candles := &cobra.Command{
		Use:     "candles <product>",
		Short:   "OHLCV candles of a product",
		Example: `  terminal crypto coinbase candles ETH-USD --granularity 1h --plot`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			granularity, _ := cmd.Flags().GetString("granularity")
			plot, _ := cmd.Flags().GetBool("plot")

			data, err := client().Candles(ctx, args[0], granularity)
			if err != nil {
				return fail(output, nil, "Failed to load candles", err)
			}
			if plot {
				if err := app.plotCandles(cmd, output, args[0], data); err != nil {
					return err
				}
			}
			return app.showTable(cmd, coinbase.CandlesTable(strings.ToLower(args[0])+"_candles", data))
		},
	}
	candles.Flags().String("granularity", "1d", "candle size: 1m, 5m, 15m, 1h, 6h, 1d")
	candles.Flags().Bool("plot", false, "save a PNG line chart of closes")
	addTableFlags(candles, 0)

	cmd.AddCommand(products, ticker, stats, candles)
	return cmd
}

// parseDate parses an optional YYYY-MM-DD flag value.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func newOnchainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "onchain",
		Short: "On-chain metrics (Glassnode, requires an API key)",
	}
	cmd.PersistentFlags().String("interval", "24h", "resolution: 24h, 1w, 1month")
	cmd.PersistentFlags().String("since", "", "start date YYYY-MM-DD")
	cmd.PersistentFlags().String("until", "", "end date YYYY-MM-DD")

	type metricFunc func(ctx context.Context, cmd *cobra.Command, c *glassnode.Client, asset, interval string, since, until time.Time) (*models.Table, error)
	run := func(msg string, fn metricFunc) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			interval, _ := cmd.Flags().GetString("interval")
			sinceRaw, _ := cmd.Flags().GetString("since")
			untilRaw, _ := cmd.Flags().GetString("until")
			since, err := parseDate(sinceRaw)
			if err != nil {
				return fail(output, nil, "Invalid --since", err)
			}
			until, err := parseDate(untilRaw)
			if err != nil {
				return fail(output, nil, "Invalid --until", err)
			}

			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			c := glassnode.New(app.httpOptions(), app.Config.Credentials.Glassnode.APIKey)
			tbl, err := fn(ctx, cmd, c, strings.ToUpper(args[0]), interval, since, until)
			if err != nil {
				return fail(output, nil, msg, err)
			}
			return app.showTable(cmd, tbl)
		}
	}

	active := &cobra.Command{
		Use:     "active <asset>",
		Short:   "Active addresses",
		Example: `  terminal crypto onchain active BTC --since 2024-01-01`,
		Args:    cobra.ExactArgs(1),
		RunE: run("Failed to load active addresses", func(ctx context.Context, cmd *cobra.Command, c *glassnode.Client, asset, interval string, since, until time.Time) (*models.Table, error) {
			return c.ActiveAddresses(ctx, asset, interval, since, until)
		}),
	}
	addTableFlags(active, 0)

	balance := &cobra.Command{
		Use:   "exchange-balance <asset>",
		Short: "Balance held on exchanges",
		Args:  cobra.ExactArgs(1),
		RunE: run("Failed to load exchange balance", func(ctx context.Context, cmd *cobra.Command, c *glassnode.Client, asset, interval string, since, until time.Time) (*models.Table, error) {
			exchange, _ := cmd.Flags().GetString("exchange")
			return c.ExchangeBalance(ctx, asset, exchange, interval, since, until)
		}),
	}
	balance.Flags().String("exchange", "aggregated", "exchange name, e.g. binance, or aggregated")
	addTableFlags(balance, 0)

	price := &cobra.Command{
		Use:   "price <asset>",
		Short: "Daily close price",
		Args:  cobra.ExactArgs(1),
		RunE: run("Failed to load close price", func(ctx context.Context, cmd *cobra.Command, c *glassnode.Client, asset, interval string, since, until time.Time) (*models.Table, error) {
			return c.ClosePrice(ctx, asset, interval, since, until)
		}),
	}
	addTableFlags(price, 0)

	cmd.AddCommand(active, balance, price)
	return cmd
}

func newEthCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eth",
		Short: "Ethereum tokens and addresses (Ethplorer)",
	}
	client := func() *ethplorer.Client {
		return ethplorer.New(app.httpOptions(), app.Config.Credentials.Ethplorer.APIKey)
	}

	token := &cobra.Command{
		Use:   "token <address>",
		Short: "Token details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := client().TokenInfo(ctx, args[0])
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load token", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(token, 0)

	address := &cobra.Command{
		Use:   "address <address>",
		Short: "ETH and token balances of an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			tbl, err := client().AddressInfo(ctx, args[0])
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load address", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(address, 20)

	top := &cobra.Command{
		Use:   "top",
		Short: "Top tokens by market cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := app.commandContext(cmd)
			defer cancel()
			limit, _ := cmd.Flags().GetInt("limit")
			tbl, err := client().TopTokens(ctx, limit)
			if err != nil {
				return fail(NewOutput(cmd), nil, "Failed to load top tokens", err)
			}
			return app.showTable(cmd, tbl)
		},
	}
	addTableFlags(top, 20)

	cmd.AddCommand(token, address, top)
	return cmd
}
