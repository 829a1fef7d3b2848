package coinpaprika

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(httpclient.Options{BaseURL: srv.URL, RateLimit: 1000, MaxRetries: 1}), &seen
}

func TestTickersSortedByRankAndLimited(t *testing.T) {
	c, seen := newServer(t, map[string]string{"/tickers": `[
	 {"id":"eth-ethereum","name":"Ethereum","symbol":"ETH","rank":2,"quotes":{"EUR":{"price":3000,"market_cap":3.6e11}}},
	 {"id":"btc-bitcoin","name":"Bitcoin","symbol":"BTC","rank":1,"quotes":{"EUR":{"price":60000,"percent_change_24h":1.2}}},
	 {"id":"usdt-tether","name":"Tether","symbol":"USDT","rank":3,"quotes":{"EUR":{"price":0.92}}}
	]`})

	tbl, err := c.Tickers(context.Background(), "eur", 2)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "BTC", tbl.Rows[0][1])
	assert.Equal(t, 60000.0, tbl.Rows[0][3])
	assert.Equal(t, 1.2, tbl.Rows[0][6])
	assert.Equal(t, "ETH", tbl.Rows[1][1])
	assert.Equal(t, "EUR", (*seen)[0].URL.Query().Get("quotes"))
}

func TestExchangesSkipsInactive(t *testing.T) {
	c, _ := newServer(t, map[string]string{"/exchanges": `[
	 {"id":"small","name":"Small","active":true,"markets":10,"quotes":{"USD":{"adjusted_volume_24h":1e6}}},
	 {"id":"dead","name":"Dead","active":false,"quotes":{"USD":{"adjusted_volume_24h":9e9}}},
	 {"id":"big","name":"Big","active":true,"markets":900,"quotes":{"USD":{"adjusted_volume_24h":5e9}}}
	]`})

	tbl, err := c.Exchanges(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, "big", tbl.Rows[0][1])
	assert.Equal(t, "small", tbl.Rows[1][1])
}

func TestSearchFlattensCategories(t *testing.T) {
	c, seen := newServer(t, map[string]string{"/search": `{
	 "currencies":[{"id":"btc-bitcoin","name":"Bitcoin","symbol":"BTC","rank":1}],
	 "exchanges":[{"id":"binance","name":"Binance","rank":1}],
	 "people":[{"id":"satoshi-nakamoto","name":"Satoshi Nakamoto"}]}`})

	tbl, err := c.Search(context.Background(), "bit", 0)
	require.NoError(t, err)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, []interface{}{"currency", "btc-bitcoin", "Bitcoin", "BTC", 1}, tbl.Rows[0])
	assert.Equal(t, "person", tbl.Rows[2][0])
	assert.Equal(t, "20", (*seen)[0].URL.Query().Get("limit"))
}

func TestGlobal(t *testing.T) {
	c, _ := newServer(t, map[string]string{"/global": `{"market_cap_usd":2.5e12,"bitcoin_dominance_percentage":51.3,
	 "cryptocurrencies_number":9000}`})

	tbl, err := c.Global(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.5e12, tbl.Rows[0][1])
	assert.Equal(t, 51.3, tbl.Rows[2][1])
	assert.Equal(t, 9000, tbl.Rows[3][1])
}
