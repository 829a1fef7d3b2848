package cli

import (
	"context"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"research-terminal/internal/config"
	"research-terminal/internal/export"
	"research-terminal/internal/httpclient"
	"research-terminal/internal/logging"
	"research-terminal/internal/newsletter"
	"research-terminal/internal/prices"
	"research-terminal/internal/resilience"
	"research-terminal/internal/security"
	"research-terminal/internal/sources/coingecko"
	"research-terminal/internal/sources/kite"
	"research-terminal/internal/sources/yahoo"
	"research-terminal/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// App holds the application dependencies.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Store      *store.SQLiteStore
	Prices     *prices.Service
	Exporter   *export.Exporter
	Summarizer newsletter.Summarizer

	breakers *resilience.Registry
}

// NewApp wires the store, the prices service and the optional OpenAI summarizer.
// A store that cannot be opened disables caching and saved portfolios.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		Exporter: export.New(cfg.Export.Directory, logger),
		breakers: httpclient.NewBreakers(),
	}

	dataStore, err := store.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, caching and saved portfolios are unavailable")
	} else {
		app.Store = dataStore
		logger.Debug().Str("path", cfg.DBPath()).Msg("SQLite store initialized")
	}

	opts := prices.Options{
		Yahoo:     yahoo.New(logger),
		CoinGecko: app.coingecko(),
		Kite:      kite.New(cfg.Credentials.Kite.APIKey, cfg.Credentials.Kite.AccessToken, logger),
		TTL:       cfg.Data.CacheTTL,
		Logger:    logger,
	}
	if app.Store != nil && cfg.Data.CacheEnabled {
		opts.Cache = app.Store
	}
	app.Prices = prices.NewService(opts)

	if cfg.Credentials.OpenAI.APIKey != "" {
		app.Summarizer = newsletter.NewOpenAIClient(cfg.Credentials.OpenAI.APIKey, cfg.Credentials.OpenAI.Model, "")
		logger.Debug().Str("model", cfg.Credentials.OpenAI.Model).Msg("OpenAI summarizer initialized")
	}
	return app
}

// Close releases the store.
func (a *App) Close() error {
	if a.Store != nil {
		return a.Store.Close()
	}
	return nil
}

// httpOptions builds provider client options from the [data] section.
func (a *App) httpOptions() httpclient.Options {
	return httpclient.Options{
		Timeout:    a.Config.Data.RequestTimeout,
		RateLimit:  a.Config.Data.RateLimit,
		MaxRetries: a.Config.Data.MaxRetries,
		UserAgent:  a.Config.Data.UserAgent,
		Logger:     a.Logger,
		Breakers:   a.breakers,
	}
}

func (a *App) coingecko() *coingecko.Client {
	return coingecko.New(a.httpOptions(), a.Config.Credentials.CoinGecko.APIKey)
}

// commandContext bounds a command by the request timeout times the retry budget.
func (a *App) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := a.Config.Data.RequestTimeout * time.Duration(a.Config.Data.MaxRetries+1)
	if timeout < time.Minute {
		timeout = time.Minute
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithLogger(ctx, a.Logger)
	return context.WithTimeout(ctx, timeout)
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "terminal",
		Short: "Research terminal for crypto, DeFi and portfolio optimization",
		Long: `A command-line research terminal.

It pulls public market data from CoinGecko, CoinPaprika, DeFi Llama, Glassnode,
Coinbase, Ethplorer, Yahoo Finance and Zerodha Kite, renders it as tables or
charts, exports it, and optimizes portfolios over a set of symbols.

Use 'terminal help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			if !app.Config.UI.ColorEnabled {
				color.NoColor = true
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/research-terminal)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newCryptoCmd(app))
	rootCmd.AddCommand(newDefiCmd(app))
	rootCmd.AddCommand(newDataCmd(app))
	rootCmd.AddCommand(newNewsletterCmd(app))
	rootCmd.AddCommand(newPoCmd(app))

	return rootCmd
}

// ConfigDirFromArgs finds the --config value before cobra parses flags, since the
// configuration has to be loaded to build the command tree.
func ConfigDirFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--config="); ok {
			return v
		}
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("Research Terminal v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate the application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(struct {
					Data       config.DataConfig       `json:"data"`
					Portfolio  config.PortfolioConfig  `json:"portfolio"`
					Export     config.ExportConfig     `json:"export"`
					Newsletter config.NewsletterConfig `json:"newsletter"`
				}{app.Config.Data, app.Config.Portfolio, app.Config.Export, app.Config.Newsletter})
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{"path": app.Config.Dir})
				return
			}
			output.Println(app.Config.Dir)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				return fail(output, nil, "Configuration validation failed", err)
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

// credential shows a masked key, or "not set".
func credential(key string) string {
	if key == "" {
		return "not set"
	}
	return security.MaskCredential(key)
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Data")
	output.Printf("  Request Timeout: %s\n", cfg.Data.RequestTimeout)
	output.Printf("  Max Retries:     %d\n", cfg.Data.MaxRetries)
	output.Printf("  Rate Limit:      %.1f req/s\n", cfg.Data.RateLimit)
	output.Printf("  Cache:           %v (ttl %s)\n", cfg.Data.CacheEnabled, cfg.Data.CacheTTL)
	output.Printf("  Quote Currency:  %s\n", strings.ToUpper(cfg.Data.VsCurrency))
	output.Println()

	output.Bold("Portfolio")
	output.Printf("  Historic Period: %s\n", cfg.Portfolio.HistoricPeriod)
	output.Printf("  Frequency:       %s\n", cfg.Portfolio.ReturnFrequency)
	output.Printf("  Risk Free Rate:  %.4f\n", cfg.Portfolio.RiskFreeRate)
	output.Printf("  Long Allocation: %s\n", FormatMoney(cfg.Portfolio.LongAllocation, false))
	if cfg.Portfolio.ParamsFile != "" {
		output.Printf("  Params File:     %s\n", cfg.Portfolio.ParamsFile)
	}
	output.Println()

	output.Bold("Export")
	output.Printf("  Directory:       %s\n", cfg.Export.Directory)
	output.Println()

	output.Bold("Newsletter")
	output.Printf("  Workers:         %d\n", cfg.Newsletter.Workers)
	output.Printf("  Posts/Source:    %d\n", cfg.Newsletter.Limit)
	output.Printf("  Sources:         %d\n", len(cfg.Newsletter.Sources))
	output.Println()

	output.Bold("Credentials")
	output.Printf("  CoinGecko:       %s\n", credential(cfg.Credentials.CoinGecko.APIKey))
	output.Printf("  Glassnode:       %s\n", credential(cfg.Credentials.Glassnode.APIKey))
	output.Printf("  Ethplorer:       %s\n", credential(cfg.Credentials.Ethplorer.APIKey))
	kite := ""
	if cfg.HasKite() {
		kite = cfg.Credentials.Kite.APIKey
	}
	output.Printf("  Kite:            %s\n", credential(kite))
	output.Printf("  OpenAI:          %s\n", credential(cfg.Credentials.OpenAI.APIKey))
}
