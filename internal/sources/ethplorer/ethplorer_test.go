package ethplorer

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-terminal/internal/errors"
	"research-terminal/internal/httpclient"
)

const (
	usdc   = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"
	holder = "0x00000000219ab540356cbb839cbe05303d7705fa"
)

func newServer(t *testing.T, apiKey string, routes map[string]string) (*Client, *[]*http.Request) {
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
	return New(httpclient.Options{BaseURL: srv.URL, RateLimit: 1000, MaxRetries: 1}, apiKey), &seen
}

func TestTokenInfo(t *testing.T) {
	c, seen := newServer(t, "", map[string]string{"/getTokenInfo/" + usdc: `{"address":"` + usdc + `",
	 "name":"USD Coin","symbol":"USDC","decimals":"6","totalSupply":"25000000000000000","holdersCount":1900000,
	 "price":{"rate":1.0001,"diff":0.01,"marketCapUsd":2.5e10}}`})

	tbl, err := c.TokenInfo(context.Background(), "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	require.NoError(t, err)
	assert.Equal(t, "USD Coin", tbl.Rows[0][1])
	assert.Equal(t, 6.0, tbl.Rows[3][1])
	assert.InDelta(t, 2.5e10, tbl.Rows[4][1], 1)
	assert.Equal(t, 1.0001, tbl.Rows[6][1])
	assert.Equal(t, FreeKey, (*seen)[0].URL.Query().Get("apiKey"))
}

func TestTokenInfoWithoutPrice(t *testing.T) {
	c, _ := newServer(t, "mine", map[string]string{"/getTokenInfo/" + usdc: `{"name":"Obscure","symbol":"OBS",
	 "decimals":"0","totalSupply":"100","holdersCount":3,"price":false}`})

	tbl, err := c.TokenInfo(context.Background(), usdc)
	require.NoError(t, err)
	assert.Equal(t, 100.0, tbl.Rows[4][1])
	assert.True(t, math.IsNaN(tbl.Rows[6][1].(float64)))
}

func TestAddressInfoSortsByValue(t *testing.T) {
	c, _ := newServer(t, "", map[string]string{"/getAddressInfo/" + holder: `{"address":"` + holder + `",
	 "ETH":{"balance":2,"price":{"rate":3000}},
	 "tokens":[
	  {"tokenInfo":{"name":"USD Coin","symbol":"USDC","decimals":"6","price":{"rate":1}},"balance":50000000000},
	  {"tokenInfo":{"name":"Dust","symbol":"DST","decimals":"18","price":false},"balance":1e18}]}`})

	tbl, err := c.AddressInfo(context.Background(), holder)
	require.NoError(t, err)
	require.Equal(t, 3, tbl.Len())
	assert.Equal(t, "USDC", tbl.Rows[0][1])
	assert.Equal(t, 50000.0, tbl.Rows[0][2])
	assert.Equal(t, "ETH", tbl.Rows[1][1])
	assert.Equal(t, 6000.0, tbl.Rows[1][4])
	assert.Equal(t, "DST", tbl.Rows[2][1], "unpriced tokens sort last")
}

func TestTopTokens(t *testing.T) {
	c, seen := newServer(t, "", map[string]string{"/getTop": `{"tokens":[
	 {"address":"0xdac17f958d2ee523a2206206994597c13d831ec7","name":"Tether","symbol":"USDT","price":{"rate":1,"marketCapUsd":1e11}},
	 {"address":"` + usdc + `","name":"USD Coin","symbol":"USDC","price":{"rate":1,"marketCapUsd":3e10}}]}`})

	tbl, err := c.TopTokens(context.Background(), 5)
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len())
	assert.Equal(t, 1, tbl.Rows[0][0])
	assert.Equal(t, "USDT", tbl.Rows[0][2])
	assert.Equal(t, "cap", (*seen)[0].URL.Query().Get("criteria"))
	assert.Equal(t, "5", (*seen)[0].URL.Query().Get("limit"))
}

func TestInvalidAddress(t *testing.T) {
	c, seen := newServer(t, "", nil)

	_, err := c.AddressInfo(context.Background(), "vitalik.eth")
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Empty(t, *seen)
}
