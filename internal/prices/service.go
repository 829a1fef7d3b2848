// Package prices routes symbols to a history source and caches the results.
package prices

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"research-terminal/internal/errors"
	"research-terminal/internal/logging"
	"research-terminal/internal/models"
	"research-terminal/internal/store"
)

// HistorySource loads daily candles for one provider symbol.
type HistorySource interface {
	History(ctx context.Context, symbol string, rng models.Range) ([]models.Candle, error)
}

// Configurable sources report whether their credentials are present.
type Configurable interface {
	Configured() bool
}

// CoinGeckoPrefix marks a CoinGecko coin id, e.g. "CG:bitcoin".
const CoinGeckoPrefix = "CG:"

// Options wires the sources and cache of a Service.
type Options struct {
	Yahoo     HistorySource
	CoinGecko HistorySource
	Kite      HistorySource
	Cache     store.PriceCache // nil disables caching
	TTL       time.Duration
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Service resolves price history for equities, Indian listings and crypto.
type Service struct {
	sources map[models.Source]HistorySource
	cache   store.PriceCache
	ttl     time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

// NewService creates a prices service.
func NewService(opts Options) *Service {
	if opts.TTL <= 0 {
		opts.TTL = 12 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	sources := make(map[models.Source]HistorySource)
	if opts.Yahoo != nil {
		sources[models.SourceYahoo] = opts.Yahoo
	}
	if opts.CoinGecko != nil {
		sources[models.SourceCoinGecko] = opts.CoinGecko
	}
	if opts.Kite != nil {
		sources[models.SourceKite] = opts.Kite
	}
	return &Service{
		sources: sources,
		cache:   opts.Cache,
		ttl:     opts.TTL,
		logger:  opts.Logger,
		now:     opts.Now,
	}
}

// Route picks the source for a symbol and the symbol that source expects.
func Route(symbol string) (models.Source, string) {
	upper := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(upper, "NSE:"), strings.HasPrefix(upper, "BSE:"):
		return models.SourceKite, upper
	case strings.HasPrefix(upper, CoinGeckoPrefix):
		return models.SourceCoinGecko, strings.ToLower(symbol[len(CoinGeckoPrefix):])
	default:
		return models.SourceYahoo, upper
	}
}

func (s *Service) source(name models.Source, symbol string) (HistorySource, error) {
	src, ok := s.sources[name]
	if !ok {
		return nil, fmt.Errorf("%w: no %s source for %s", errors.ErrNotConfigured, name, symbol)
	}
	if c, ok := src.(Configurable); ok && !c.Configured() {
		return nil, fmt.Errorf("%w: %s credentials are required for %s", errors.ErrNotConfigured, name, symbol)
	}
	return src, nil
}

// History returns daily candles for symbol over rng, from the cache while it is fresh.
func (s *Service) History(ctx context.Context, symbol string, rng models.Range) ([]models.Candle, error) {
	name, providerSymbol := Route(symbol)
	logger := logging.WithProvider(logging.WithSymbol(s.logger, symbol), string(name))

	src, err := s.source(name, symbol)
	if err != nil {
		return nil, err
	}
	start, end, err := rng.Bounds(s.now().UTC())
	if err != nil {
		return nil, errors.NewValidationError("range", rng, err.Error())
	}

	key := store.SyncKey(providerSymbol, string(name))
	cacheable := s.cache != nil && (rng.Interval == "" || rng.Interval == "1d")
	if cacheable {
		fresh := store.Freshness(s.cache, key, s.ttl, s.now())
		if fresh.IsFresh {
			cached, err := s.cache.GetPrices(ctx, providerSymbol, string(name), start, end)
			if err == nil && coversRange(cached, start, end) {
				logger.Debug().Int("rows", len(cached)).Msg("Serving prices from cache")
				return cached, nil
			}
		}
	}

	candles, fetchErr := src.History(ctx, providerSymbol, rng)
	if fetchErr != nil {
		if cacheable && ctx.Err() == nil {
			if cached, err := s.cache.GetPrices(ctx, providerSymbol, string(name), start, end); err == nil && len(cached) > 0 {
				logger.Warn().Err(fetchErr).Int("rows", len(cached)).Msg("Fetch failed, using stale cached prices")
				return cached, nil
			}
		}
		return nil, fmt.Errorf("fetching %s: %w", symbol, fetchErr)
	}

	if cacheable && len(candles) > 0 {
		if err := s.cache.SavePrices(ctx, providerSymbol, string(name), candles); err != nil {
			logger.Warn().Err(err).Msg("Failed to cache prices")
		} else if err := s.cache.SetLastSync(key, s.now()); err != nil {
			logger.Warn().Err(err).Msg("Failed to record price sync")
		}
	}
	return candles, nil
}

// coversRange is a loose check that cached rows span the requested window.
// Weekends and holidays mean the first row can trail start by a few days.
func coversRange(candles []models.Candle, start, end time.Time) bool {
	if len(candles) == 0 {
		return false
	}
	const slack = 7 * 24 * time.Hour
	first, last := candles[0].Timestamp, candles[len(candles)-1].Timestamp
	return first.Sub(start) <= slack && end.Sub(last) <= slack
}

// Frame loads every symbol and aligns their closes by date. A symbol that fails to load
// becomes an all-missing column so the returns builder can drop it. Frame fails only
// when no symbol loads.
func (s *Service) Frame(ctx context.Context, symbols []string, rng models.Range) (*models.PriceFrame, error) {
	if len(symbols) == 0 {
		return nil, errors.ErrMissingSymbols
	}

	series := make(map[string][]models.Candle, len(symbols))
	var firstErr error
	loaded := 0
	for _, sym := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candles, err := s.History(ctx, sym, rng)
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", sym).Msg("Skipping symbol without prices")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		series[sym] = candles
		loaded++
	}
	if loaded == 0 {
		return nil, firstErr
	}
	return models.AlignCloses(series, symbols), nil
}

// HistoryTable renders candles for display and export.
func HistoryTable(symbol string, candles []models.Candle) *models.Table {
	tbl := models.NewTable(strings.ToLower(strings.ReplaceAll(symbol, ":", "_"))+"_history",
		"Date", "Open", "High", "Low", "Close", "Volume")
	for _, c := range candles {
		tbl.AddRow(c.Timestamp.Format("2006-01-02"), c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	return tbl
}
