package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultNewsletterSources lists the Substack publications polled by the newsletter command.
var DefaultNewsletterSources = []string{
	"https://defiweekly.substack.com",
	"https://newsletter.thedefiant.io",
	"https://thedailygwei.substack.com",
	"https://todayindefi.substack.com",
	"https://newsletter.banklesshq.com",
	"https://defislate.substack.com",
}

const configTemplate = `# Research Terminal Configuration

[data]
# Per-request timeout for data providers
request_timeout = "30s"
# Attempts per request (network errors, 429 and 5xx are retried)
max_retries = 3
# Requests per second per provider
rate_limit = 2.0
# Cache price history in the local sqlite database
cache_enabled = true
cache_ttl = "12h"
# Quote currency for crypto endpoints
vs_currency = "usd"

[portfolio]
# Default lookback: 1mo 3mo 6mo 1y 2y 3y 5y 10y ytd max
historic_period = "3y"
# Return frequency: d, w, m
return_frequency = "d"
# Annual risk free rate used in Sharpe ratios
risk_free_rate = 0.0
# Amount allocated across the optimized weights
long_allocation = 1.0
# Optional .ini parameter file loaded for every po command
params_file = ""

[export]
# directory = "/path/to/exports"

[newsletter]
# Concurrent Substack requests
workers = 6
# Posts fetched per publication
limit = 10

[ui]
color_enabled = true
date_format = "2006-01-02"

[log]
# debug, info, warn, error
level = "warn"
# Write a rotating log file next to this config
file = true
`

const credentialsTemplate = `# Research Terminal Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[coingecko]
# Optional demo/pro key
api_key = ""

[glassnode]
api_key = ""

[ethplorer]
api_key = "freekey"

[kite]
# Zerodha Kite Connect, used for NSE:/BSE: price history
api_key = ""
access_token = ""

[openai]
# Optional, enables newsletter --digest
api_key = ""
model = "gpt-4o-mini"
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return nil
}
