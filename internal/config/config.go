// Package config provides configuration management for the research terminal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Data        DataConfig       `mapstructure:"data"`
	Portfolio   PortfolioConfig  `mapstructure:"portfolio"`
	Export      ExportConfig     `mapstructure:"export"`
	Newsletter  NewsletterConfig `mapstructure:"newsletter"`
	UI          UIConfig         `mapstructure:"ui"`
	Log         LogConfig        `mapstructure:"log"`
	Credentials Credentials      `mapstructure:"-"` // Loaded separately

	// Dir is the directory the configuration was loaded from.
	Dir string `mapstructure:"-"`
}

// DataConfig holds data provider configuration.
type DataConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RateLimit      float64       `mapstructure:"rate_limit"` // requests per second per provider
	CacheEnabled   bool          `mapstructure:"cache_enabled"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	VsCurrency     string        `mapstructure:"vs_currency"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// PortfolioConfig holds defaults for portfolio optimization.
type PortfolioConfig struct {
	HistoricPeriod  string  `mapstructure:"historic_period"`
	ReturnFrequency string  `mapstructure:"return_frequency"`
	RiskFreeRate    float64 `mapstructure:"risk_free_rate"`
	LongAllocation  float64 `mapstructure:"long_allocation"`
	ParamsFile      string  `mapstructure:"params_file"`
}

// ExportConfig holds export configuration.
type ExportConfig struct {
	Directory string `mapstructure:"directory"`
}

// NewsletterConfig holds newsletter fan-out configuration.
type NewsletterConfig struct {
	Workers int      `mapstructure:"workers"`
	Limit   int      `mapstructure:"limit"`
	Sources []string `mapstructure:"sources"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  bool   `mapstructure:"file"`
}

// Credentials holds API credentials.
type Credentials struct {
	CoinGecko APIKeyCredentials `mapstructure:"coingecko"`
	Glassnode APIKeyCredentials `mapstructure:"glassnode"`
	Ethplorer APIKeyCredentials `mapstructure:"ethplorer"`
	Kite      KiteCredentials   `mapstructure:"kite"`
	OpenAI    OpenAICredentials `mapstructure:"openai"`
}

// APIKeyCredentials holds a single API key.
type APIKeyCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// KiteCredentials holds Zerodha Kite Connect credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/research-terminal"
	}
	return filepath.Join(home, ".config", "research-terminal")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
// Missing files are created from templates and loading continues with their defaults.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{Dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// .env files never override variables already set in the environment.
	_ = godotenv.Load(filepath.Join(configDir, ".env"))
	_ = godotenv.Load()

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration populated only with defaults, without touching disk.
func Default() *Config {
	cfg := &Config{Dir: DefaultConfigDir()}
	v := viper.New()
	setDefaults(v, cfg.Dir)
	_ = v.Unmarshal(cfg)
	cfg.Credentials.Ethplorer.APIKey = "freekey"
	cfg.Credentials.OpenAI.Model = "gpt-4o-mini"
	return cfg
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("data.request_timeout", "30s")
	v.SetDefault("data.max_retries", 3)
	v.SetDefault("data.rate_limit", 2.0)
	v.SetDefault("data.cache_enabled", true)
	v.SetDefault("data.cache_ttl", "12h")
	v.SetDefault("data.vs_currency", "usd")
	v.SetDefault("data.user_agent", "research-terminal/1.0")

	v.SetDefault("portfolio.historic_period", "3y")
	v.SetDefault("portfolio.return_frequency", "d")
	v.SetDefault("portfolio.risk_free_rate", 0.0)
	v.SetDefault("portfolio.long_allocation", 1.0)

	v.SetDefault("export.directory", filepath.Join(configDir, "exports"))

	v.SetDefault("newsletter.workers", 6)
	v.SetDefault("newsletter.limit", 10)
	v.SetDefault("newsletter.sources", DefaultNewsletterSources)

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "2006-01-02")

	v.SetDefault("log.level", "warn")
	v.SetDefault("log.file", true)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, create template and continue with defaults
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("ethplorer.api_key", "freekey")
	v.SetDefault("openai.model", "gpt-4o-mini")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateCredentials(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COINGECKO_API_KEY"); v != "" {
		cfg.Credentials.CoinGecko.APIKey = v
	}
	if v := os.Getenv("GLASSNODE_API_KEY"); v != "" {
		cfg.Credentials.Glassnode.APIKey = v
	}
	if v := os.Getenv("ETHPLORER_API_KEY"); v != "" {
		cfg.Credentials.Ethplorer.APIKey = v
	}
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}
	if v := os.Getenv("TERMINAL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Data.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if c.Data.MaxRetries < 1 || c.Data.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be between 1 and 10")
	}
	if c.Data.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive")
	}

	switch c.Portfolio.ReturnFrequency {
	case "d", "w", "m":
	default:
		return fmt.Errorf("invalid return_frequency: %s (must be d, w or m)", c.Portfolio.ReturnFrequency)
	}
	if c.Portfolio.LongAllocation <= 0 {
		return fmt.Errorf("long_allocation must be positive")
	}

	if c.Newsletter.Workers < 1 {
		return fmt.Errorf("newsletter workers must be at least 1")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	return nil
}

// HasKite reports whether Kite Connect credentials are configured.
func (c *Config) HasKite() bool {
	return c.Credentials.Kite.APIKey != "" && c.Credentials.Kite.AccessToken != ""
}

// DBPath returns the sqlite cache path inside the config directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.Dir, "terminal.db")
}

// LogPath returns the rotating log file path inside the config directory.
func (c *Config) LogPath() string {
	return filepath.Join(c.Dir, "logs", "terminal.log")
}
