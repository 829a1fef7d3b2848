// Package coinbase is a client for the public Coinbase Exchange market data API.
package coinbase

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"research-terminal/internal/errors"
	"research-terminal/internal/httpclient"
	"research-terminal/internal/models"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.exchange.coinbase.com"

// Granularities accepted by the candles endpoint, in seconds.
var Granularities = map[string]int{
	"1m":  60,
	"5m":  300,
	"15m": 900,
	"1h":  3600,
	"6h":  21600,
	"1d":  86400,
}

// Client fetches products and market data.
type Client struct {
	http *httpclient.Client
}

// New creates a client.
func New(opts httpclient.Options) *Client {
	opts.Name = "coinbase"
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Client{http: httpclient.New(opts)}
}

// amount parses the decimal strings the exchange sends for prices and sizes.
func amount(s string) float64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func productPath(product, suffix string) string {
	return "/products/" + url.PathEscape(strings.ToUpper(product)) + suffix
}

// Products lists tradable pairs, optionally filtered by quote currency.
func (c *Client) Products(ctx context.Context, quote string) (*models.Table, error) {
	var products []struct {
		ID              string `json:"id"`
		BaseCurrency    string `json:"base_currency"`
		QuoteCurrency   string `json:"quote_currency"`
		Status          string `json:"status"`
		TradingDisabled bool   `json:"trading_disabled"`
	}
	if err := c.http.GetJSON(ctx, "/products", nil, &products); err != nil {
		return nil, err
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })

	tbl := models.NewTable("coinbase_products", "Id", "Base", "Quote", "Status")
	for _, p := range products {
		if p.TradingDisabled {
			continue
		}
		if quote != "" && !strings.EqualFold(p.QuoteCurrency, quote) {
			continue
		}
		tbl.AddRow(p.ID, p.BaseCurrency, p.QuoteCurrency, p.Status)
	}
	return tbl, nil
}

// Ticker returns the last trade and best bid/ask of a product.
func (c *Client) Ticker(ctx context.Context, product string) (*models.Table, error) {
	var t struct {
		Price  string    `json:"price"`
		Size   string    `json:"size"`
		Bid    string    `json:"bid"`
		Ask    string    `json:"ask"`
		Volume string    `json:"volume"`
		Time   time.Time `json:"time"`
	}
	if err := c.http.GetJSON(ctx, productPath(product, "/ticker"), nil, &t); err != nil {
		return nil, err
	}

	tbl := models.NewTable("coinbase_ticker", "Metric", "Value")
	tbl.AddRow("Price", amount(t.Price))
	tbl.AddRow("Last Size", amount(t.Size))
	tbl.AddRow("Bid", amount(t.Bid))
	tbl.AddRow("Ask", amount(t.Ask))
	tbl.AddRow("Spread", amount(t.Ask)-amount(t.Bid))
	tbl.AddRow("Volume 24h", amount(t.Volume))
	tbl.AddRow("Time", t.Time)
	return tbl, nil
}

// Stats returns the 24 hour open, high, low and volume of a product.
func (c *Client) Stats(ctx context.Context, product string) (*models.Table, error) {
	var s struct {
		Open        string `json:"open"`
		High        string `json:"high"`
		Low         string `json:"low"`
		Last        string `json:"last"`
		Volume      string `json:"volume"`
		Volume30Day string `json:"volume_30day"`
	}
	if err := c.http.GetJSON(ctx, productPath(product, "/stats"), nil, &s); err != nil {
		return nil, err
	}

	tbl := models.NewTable("coinbase_stats", "Metric", "Value")
	tbl.AddRow("Open", amount(s.Open))
	tbl.AddRow("High", amount(s.High))
	tbl.AddRow("Low", amount(s.Low))
	tbl.AddRow("Last", amount(s.Last))
	tbl.AddRow("Volume", amount(s.Volume))
	tbl.AddRow("Volume 30d", amount(s.Volume30Day))
	if open := amount(s.Open); open != 0 {
		tbl.AddRow("Change %", (amount(s.Last)-open)/open*100)
	}
	return tbl, nil
}

// Candles returns OHLCV bars for a product, oldest first.
func (c *Client) Candles(ctx context.Context, product, granularity string) ([]models.Candle, error) {
	secs, ok := Granularities[granularity]
	if !ok {
		return nil, errors.NewValidationError("granularity", granularity, "must be one of 1m, 5m, 15m, 1h, 6h, 1d")
	}

	// each row is [time, low, high, open, close, volume]
	var rows [][6]float64
	q := url.Values{"granularity": {strconv.Itoa(secs)}}
	if err := c.http.GetJSON(ctx, productPath(product, "/candles"), q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: coinbase candles for %s", errors.ErrDataNotFound, product)
	}

	candles := make([]models.Candle, len(rows))
	for i, r := range rows {
		candles[i] = models.Candle{
			Timestamp: time.Unix(int64(r[0]), 0).UTC(),
			Low:       r[1],
			High:      r[2],
			Open:      r[3],
			Close:     r[4],
			Volume:    r[5],
		}
	}
	sort.Slice(candles, func(i, j int) bool { return candles[i].Timestamp.Before(candles[j].Timestamp) })
	return candles, nil
}

// CandlesTable renders candles for display and export.
func CandlesTable(name string, candles []models.Candle) *models.Table {
	tbl := models.NewTable(name, "Date", "Open", "High", "Low", "Close", "Volume")
	for _, cd := range candles {
		tbl.AddRow(cd.Timestamp, cd.Open, cd.High, cd.Low, cd.Close, cd.Volume)
	}
	return tbl
}
