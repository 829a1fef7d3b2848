// Package coingecko is a client for the CoinGecko v3 public API.
package coingecko

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"research-terminal/internal/errors"
	"research-terminal/internal/httpclient"
	"research-terminal/internal/models"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.coingecko.com/api/v3"

// Client fetches market data from CoinGecko.
type Client struct {
	http *httpclient.Client
}

// New creates a client. A demo API key is sent as a header when set.
func New(opts httpclient.Options, apiKey string) *Client {
	opts.Name = "coingecko"
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if apiKey != "" {
		if opts.Headers == nil {
			opts.Headers = map[string]string{}
		}
		opts.Headers["x-cg-demo-api-key"] = apiKey
	}
	return &Client{http: httpclient.New(opts)}
}

type market struct {
	ID                      string   `json:"id"`
	Symbol                  string   `json:"symbol"`
	Name                    string   `json:"name"`
	CurrentPrice            *float64 `json:"current_price"`
	MarketCap               *float64 `json:"market_cap"`
	MarketCapRank           *int     `json:"market_cap_rank"`
	TotalVolume             *float64 `json:"total_volume"`
	PriceChangePercentage24 *float64 `json:"price_change_percentage_24h_in_currency"`
	PriceChangePercentage7d *float64 `json:"price_change_percentage_7d_in_currency"`
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// Markets lists coins by the given order, e.g. market_cap_desc or volume_desc.
func (c *Client) Markets(ctx context.Context, vs, order string, limit int) (*models.Table, error) {
	if limit <= 0 || limit > 250 {
		limit = 250
	}
	if order == "" {
		order = "market_cap_desc"
	}
	q := url.Values{
		"vs_currency":             {strings.ToLower(vs)},
		"order":                   {order},
		"per_page":                {strconv.Itoa(limit)},
		"page":                    {"1"},
		"sparkline":               {"false"},
		"price_change_percentage": {"24h,7d"},
	}

	var markets []market
	if err := c.http.GetJSON(ctx, "/coins/markets", q, &markets); err != nil {
		return nil, err
	}

	tbl := models.NewTable("coins", "Rank", "Symbol", "Name", "Price", "Market Cap", "Volume", "24h %", "7d %")
	for _, m := range markets {
		rank := 0
		if m.MarketCapRank != nil {
			rank = *m.MarketCapRank
		}
		tbl.AddRow(rank, strings.ToUpper(m.Symbol), m.Name, value(m.CurrentPrice), value(m.MarketCap),
			value(m.TotalVolume), value(m.PriceChangePercentage24), value(m.PriceChangePercentage7d))
	}
	return tbl, nil
}

// Trending lists the coins trending in searches over the last 24 hours.
func (c *Client) Trending(ctx context.Context) (*models.Table, error) {
	var resp struct {
		Coins []struct {
			Item struct {
				ID            string  `json:"id"`
				Name          string  `json:"name"`
				Symbol        string  `json:"symbol"`
				MarketCapRank int     `json:"market_cap_rank"`
				PriceBTC      float64 `json:"price_btc"`
				Score         int     `json:"score"`
			} `json:"item"`
		} `json:"coins"`
	}
	if err := c.http.GetJSON(ctx, "/search/trending", nil, &resp); err != nil {
		return nil, err
	}

	tbl := models.NewTable("trending", "Score", "Id", "Symbol", "Name", "Market Cap Rank", "Price BTC")
	for _, coin := range resp.Coins {
		it := coin.Item
		tbl.AddRow(it.Score+1, it.ID, strings.ToUpper(it.Symbol), it.Name, it.MarketCapRank, it.PriceBTC)
	}
	return tbl, nil
}

// Global returns aggregate market statistics in the given currency.
func (c *Client) Global(ctx context.Context, vs string) (*models.Table, error) {
	doc, err := c.http.GetDocument(ctx, "/global", nil)
	if err != nil {
		return nil, err
	}
	vs = strings.ToLower(vs)

	tbl := models.NewTable("global", "Metric", "Value")
	tbl.AddRow("Active Cryptocurrencies", httpclient.LookupFloat(doc, "$.data.active_cryptocurrencies"))
	tbl.AddRow("Markets", httpclient.LookupFloat(doc, "$.data.markets"))
	tbl.AddRow("Total Market Cap", httpclient.LookupFloat(doc, "$.data.total_market_cap."+vs))
	tbl.AddRow("Total Volume", httpclient.LookupFloat(doc, "$.data.total_volume."+vs))
	tbl.AddRow("BTC Dominance %", httpclient.LookupFloat(doc, "$.data.market_cap_percentage.btc"))
	tbl.AddRow("ETH Dominance %", httpclient.LookupFloat(doc, "$.data.market_cap_percentage.eth"))
	tbl.AddRow("Market Cap Change 24h %", httpclient.LookupFloat(doc, "$.data.market_cap_change_percentage_24h_usd"))
	return tbl, nil
}

// Search finds coins by name or symbol.
func (c *Client) Search(ctx context.Context, query string) (*models.Table, error) {
	var resp struct {
		Coins []struct {
			ID            string `json:"id"`
			Name          string `json:"name"`
			Symbol        string `json:"symbol"`
			MarketCapRank *int   `json:"market_cap_rank"`
		} `json:"coins"`
	}
	if err := c.http.GetJSON(ctx, "/search", url.Values{"query": {query}}, &resp); err != nil {
		return nil, err
	}

	tbl := models.NewTable("search", "Id", "Symbol", "Name", "Market Cap Rank")
	for _, coin := range resp.Coins {
		rank := 0
		if coin.MarketCapRank != nil {
			rank = *coin.MarketCapRank
		}
		tbl.AddRow(coin.ID, strings.ToUpper(coin.Symbol), coin.Name, rank)
	}
	return tbl, nil
}

// MarketChart returns daily closes and volumes for a coin id over the last days.
// days may be "max".
func (c *Client) MarketChart(ctx context.Context, id, vs, days string) ([]models.Candle, error) {
	var resp struct {
		Prices       [][2]float64 `json:"prices"`
		TotalVolumes [][2]float64 `json:"total_volumes"`
	}
	q := url.Values{"vs_currency": {strings.ToLower(vs)}, "days": {days}, "interval": {"daily"}}
	path := "/coins/" + url.PathEscape(strings.ToLower(id)) + "/market_chart"
	if err := c.http.GetJSON(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	if len(resp.Prices) == 0 {
		return nil, fmt.Errorf("%w: coingecko market chart for %s", errors.ErrDataNotFound, id)
	}

	volumes := make(map[int64]float64, len(resp.TotalVolumes))
	for _, v := range resp.TotalVolumes {
		volumes[int64(v[0])] = v[1]
	}

	candles := make([]models.Candle, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		ts := time.UnixMilli(int64(p[0])).UTC()
		candles = append(candles, models.Candle{
			Timestamp: ts,
			Open:      p[1],
			High:      p[1],
			Low:       p[1],
			Close:     p[1],
			Volume:    volumes[int64(p[0])],
		})
	}
	return candles, nil
}

// History returns the closes of a coin over a range, for the prices service.
func (c *Client) History(ctx context.Context, id string, rng models.Range) ([]models.Candle, error) {
	now := time.Now().UTC()
	start, end, err := rng.Bounds(now)
	if err != nil {
		return nil, err
	}
	days := int(now.Sub(start).Hours()/24) + 1
	arg := strconv.Itoa(days)
	if rng.Period == "max" {
		arg = "max"
	}

	candles, err := c.MarketChart(ctx, id, "usd", arg)
	if err != nil {
		return nil, err
	}
	out := candles[:0]
	for _, cd := range candles {
		if !cd.Timestamp.Before(start) && !cd.Timestamp.After(end) {
			out = append(out, cd)
		}
	}
	return out, nil
}
