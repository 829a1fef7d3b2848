// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"research-terminal/internal/models"
)

// PriceCache stores daily candles per symbol and source.
type PriceCache interface {
	SavePrices(ctx context.Context, symbol, source string, candles []models.Candle) error
	GetPrices(ctx context.Context, symbol, source string, from, to time.Time) ([]models.Candle, error)

	// Sync
	GetLastSync(key string) time.Time
	SetLastSync(key string, t time.Time) error
}

// PortfolioStore keeps saved optimization results.
type PortfolioStore interface {
	SavePortfolio(ctx context.Context, p *Portfolio) error
	GetPortfolio(ctx context.Context, id string) (*Portfolio, error)
	ListPortfolios(ctx context.Context, limit int) ([]Portfolio, error)
	DeletePortfolio(ctx context.Context, id string) error
}

// DataStore is everything the terminal persists.
type DataStore interface {
	PriceCache
	PortfolioStore

	// Lifecycle
	Close() error
}

// Portfolio is a saved optimization: the parameters it ran with and the weights it produced.
type Portfolio struct {
	ID        string
	Name      string
	Method    string
	CreatedAt time.Time
	Params    map[string]interface{}
	Weights   map[string]float64
}

// SyncKey names the freshness entry of one cached price series.
func SyncKey(symbol, source string) string {
	return "prices:" + source + ":" + symbol
}
