package glassnode

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

const seriesFixture = `[{"t":1704067200,"v":812345},{"t":1704153600,"v":null},{"t":1704240000,"v":901234.5}]`

func newServer(t *testing.T, apiKey string) (*Client, *[]*http.Request) {
	t.Helper()
	var seen []*http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r)
		switch r.URL.Path {
		case "/addresses/active_count", "/distribution/balance_exchanges", "/market/price_usd_close":
			_, _ = w.Write([]byte(seriesFixture))
		case "/empty/metric":
			_, _ = w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return New(httpclient.Options{BaseURL: srv.URL, RateLimit: 1000, MaxRetries: 1}, apiKey), &seen
}

func TestActiveAddresses(t *testing.T) {
	c, seen := newServer(t, "secret")
	since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tbl, err := c.ActiveAddresses(context.Background(), "btc", "", since, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 2, tbl.Len(), "null values are skipped")
	assert.Equal(t, []interface{}{"2024-01-03", 901234.5}, tbl.Rows[1])

	q := (*seen)[0].URL.Query()
	assert.Equal(t, "BTC", q.Get("a"))
	assert.Equal(t, "24h", q.Get("i"))
	assert.Equal(t, "secret", q.Get("api_key"))
	assert.Equal(t, "1704067200", q.Get("s"))
	assert.False(t, q.Has("u"))
}

func TestExchangeBalanceDefaultsToAggregated(t *testing.T) {
	c, seen := newServer(t, "secret")

	_, err := c.ExchangeBalance(context.Background(), "eth", "", "1w", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "aggregated", (*seen)[0].URL.Query().Get("e"))
	assert.Equal(t, "1w", (*seen)[0].URL.Query().Get("i"))
}

func TestMetricErrors(t *testing.T) {
	c, seen := newServer(t, "")
	_, err := c.ClosePrice(context.Background(), "btc", "", time.Time{}, time.Time{})
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
	assert.Empty(t, *seen, "no request without a key")

	c, _ = newServer(t, "secret")
	_, err = c.ClosePrice(context.Background(), "btc", "1h", time.Time{}, time.Time{})
	var ve *errors.ValidationError
	assert.True(t, errors.As(err, &ve))

	_, err = c.Metric(context.Background(), "empty/metric", "btc", "24h", time.Time{}, time.Time{}, nil)
	assert.True(t, errors.Is(err, errors.ErrNoData))
}
