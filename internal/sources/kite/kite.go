// Package kite loads NSE and BSE daily history through Zerodha Kite Connect.
package kite

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"research-terminal/internal/errors"
	"research-terminal/internal/logging"
	"research-terminal/internal/models"
)

// Exchanges served by this source.
var Exchanges = []string{"NSE", "BSE"}

// Client resolves instrument tokens and fetches historical candles.
type Client struct {
	client      *kiteconnect.Client
	configured  bool
	instruments map[string]int // "NSE:INFY" -> instrument token
	mu          sync.RWMutex
	logger      zerolog.Logger
}

// New creates a client. Both the API key and an access token are needed for history.
func New(apiKey, accessToken string, logger zerolog.Logger) *Client {
	client := kiteconnect.New(apiKey)
	if accessToken != "" {
		client.SetAccessToken(accessToken)
	}
	return &Client{
		client:     client,
		configured: apiKey != "" && accessToken != "",
		logger:     logger.With().Str("provider", "kite").Logger(),
	}
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.configured
}

// SplitSymbol splits "NSE:INFY" into exchange and trading symbol.
func SplitSymbol(symbol string) (string, string, bool) {
	exchange, tradingSymbol, ok := strings.Cut(strings.ToUpper(symbol), ":")
	if !ok || tradingSymbol == "" {
		return "", "", false
	}
	for _, ex := range Exchanges {
		if ex == exchange {
			return exchange, tradingSymbol, true
		}
	}
	return "", "", false
}

func (c *Client) loadInstruments() error {
	c.mu.RLock()
	loaded := c.instruments != nil
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	instruments, err := c.client.GetInstruments()
	if err != nil {
		return &errors.ProviderError{Provider: string(models.SourceKite), Endpoint: "instruments", Err: err}
	}

	index := make(map[string]int, len(instruments))
	for _, inst := range instruments {
		index[inst.Exchange+":"+inst.Tradingsymbol] = int(inst.InstrumentToken)
	}

	c.mu.Lock()
	c.instruments = index
	c.mu.Unlock()
	return nil
}

func (c *Client) instrumentToken(exchange, tradingSymbol string) (int, error) {
	if err := c.loadInstruments(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	token, ok := c.instruments[exchange+":"+tradingSymbol]
	if !ok {
		return 0, fmt.Errorf("%w: %s:%s", errors.ErrUnknownSymbol, exchange, tradingSymbol)
	}
	return token, nil
}

// History returns daily candles for an exchange-qualified symbol such as "NSE:INFY".
func (c *Client) History(ctx context.Context, symbol string, rng models.Range) ([]models.Candle, error) {
	if !c.configured {
		return nil, fmt.Errorf("%w: kite api_key and access_token are required for %s", errors.ErrNotConfigured, symbol)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	exchange, tradingSymbol, ok := SplitSymbol(symbol)
	if !ok {
		return nil, errors.NewValidationError("symbol", symbol, "expected NSE:SYMBOL or BSE:SYMBOL")
	}
	from, to, err := rng.Bounds(time.Now())
	if err != nil {
		return nil, err
	}

	token, err := c.instrumentToken(exchange, tradingSymbol)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	data, err := c.client.GetHistoricalData(token, "day", from, to, false, false)
	logging.LogAPICall(c.logger, "GET", "historical/"+symbol, time.Since(began), err)
	if err != nil {
		return nil, &errors.ProviderError{Provider: string(models.SourceKite), Endpoint: "historical/" + symbol, Err: err}
	}

	candles := make([]models.Candle, len(data))
	for i, d := range data {
		candles[i] = models.Candle{
			Timestamp: d.Date.Time,
			Open:      d.Open,
			High:      d.High,
			Low:       d.Low,
			Close:     d.Close,
			Volume:    float64(d.Volume),
		}
	}
	return candles, nil
}
