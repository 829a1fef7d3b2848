// Package yahoo loads daily price history from Yahoo Finance.
package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	yfmodels "github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"research-terminal/internal/errors"
	"research-terminal/internal/logging"
	"research-terminal/internal/models"
)

// Client wraps go-yfinance tickers.
type Client struct {
	logger zerolog.Logger
}

// New creates a client.
func New(logger zerolog.Logger) *Client {
	return &Client{logger: logger.With().Str("provider", "yahoo").Logger()}
}

// Name returns the provider name.
func (c *Client) Name() string { return string(models.SourceYahoo) }

// History returns adjusted daily candles for a symbol over a range.
func (c *Client) History(ctx context.Context, symbol string, rng models.Range) ([]models.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start, end, err := rng.Bounds(time.Now().UTC())
	if err != nil {
		return nil, err
	}
	interval := rng.Interval
	if interval == "" {
		interval = "1d"
	}
	symbol = strings.ToUpper(symbol)

	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("creating yahoo ticker %s: %w", symbol, err)
	}
	defer t.Close()

	// End is exclusive on the Yahoo side.
	endExcl := end.AddDate(0, 0, 1)
	began := time.Now()
	bars, err := t.History(yfmodels.HistoryParams{
		Start:      &start,
		End:        &endExcl,
		Interval:   interval,
		AutoAdjust: true,
	})
	logging.LogAPICall(c.logger, "GET", "history/"+symbol, time.Since(began), err)
	if err != nil {
		return nil, &errors.ProviderError{Provider: string(models.SourceYahoo), Endpoint: "history/" + symbol, Err: err}
	}
	if len(bars) == 0 {
		return nil, errors.NewDataError("prices", symbol, "no bars returned", errors.ErrDataNotFound)
	}

	candles := make([]models.Candle, 0, len(bars))
	for _, b := range bars {
		if b.Close <= 0 {
			continue
		}
		candles = append(candles, models.Candle{
			Timestamp: b.Date.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	return candles, nil
}
