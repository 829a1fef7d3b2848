package coinbase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-terminal/internal/errors"
	"research-terminal/internal/httpclient"
)

func newServer(t *testing.T, routes map[string]string) (*Client, *[]*http.Request) {
	t.Helper()
	var seen []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r)
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(httpclient.Options{BaseURL: srv.URL, RateLimit: 1000, MaxRetries: 1}), &seen
}

func TestProducts(t *testing.T) {
	c, _ := newServer(t, map[string]string{"/products": `[
	 {"id":"ETH-USD","base_currency":"ETH","quote_currency":"USD","status":"online"},
	 {"id":"BTC-EUR","base_currency":"BTC","quote_currency":"EUR","status":"online"},
	 {"id":"BTC-USD","base_currency":"BTC","quote_currency":"USD","status":"online"},
	 {"id":"OLD-USD","base_currency":"OLD","quote_currency":"USD","status":"delisted","trading_disabled":true}]`})

	tbl, err := c.Products(context.Background(), "usd")
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "BTC-USD", tbl.Rows[0][0])
	assert.Equal(t, "ETH-USD", tbl.Rows[1][0])

	all, err := c.Products(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 3, all.Len())
}

func TestTickerParsesDecimalStrings(t *testing.T) {
	c, seen := newServer(t, map[string]string{"/products/BTC-USD/ticker": `{"price":"64000.12","size":"0.005",
	 "bid":"64000.10","ask":"64000.15","volume":"12345.6789","time":"2024-01-02T10:00:00Z"}`})

	tbl, err := c.Ticker(context.Background(), "btc-usd")
	require.NoError(t, err)
	assert.Equal(t, 64000.12, tbl.Rows[0][1])
	assert.InDelta(t, 0.05, tbl.Rows[4][1], 1e-9)
	assert.Equal(t, time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC), tbl.Rows[6][1])
	assert.Equal(t, "/products/BTC-USD/ticker", (*seen)[0].URL.Path)
}

func TestStats(t *testing.T) {
	c, _ := newServer(t, map[string]string{"/products/ETH-USD/stats": `{"open":"2000","high":"2100","low":"1950",
	 "last":"2050","volume":"1000","volume_30day":"30000"}`})

	tbl, err := c.Stats(context.Background(), "ETH-USD")
	require.NoError(t, err)
	require.Equal(t, 7, tbl.Len())
	assert.Equal(t, "Change %", tbl.Rows[6][0])
	assert.InDelta(t, 2.5, tbl.Rows[6][1], 1e-12)
}

func TestCandlesOldestFirst(t *testing.T) {
	c, seen := newServer(t, map[string]string{"/products/BTC-USD/candles": `[
	 [1704153600, 43000, 45000, 44000, 44500, 900],
	 [1704067200, 41000, 43000, 42000, 42900, 800]]`})

	candles, err := c.Candles(context.Background(), "BTC-USD", "1d")
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), candles[0].Timestamp)
	assert.Equal(t, 42000.0, candles[0].Open)
	assert.Equal(t, 41000.0, candles[0].Low)
	assert.Equal(t, 44500.0, candles[1].Close)
	assert.Equal(t, "86400", (*seen)[0].URL.Query().Get("granularity"))

	tbl := CandlesTable("btc", candles)
	assert.Equal(t, 2, tbl.Len())

	_, err = c.Candles(context.Background(), "BTC-USD", "2d")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
}
