// Package coinpaprika is a client for the CoinPaprika v1 API.
package coinpaprika

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"research-terminal/internal/httpclient"
	"research-terminal/internal/models"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.coinpaprika.com/v1"

// Client fetches market data from CoinPaprika.
type Client struct {
	http *httpclient.Client
}

// New creates a client.
func New(opts httpclient.Options) *Client {
	opts.Name = "coinpaprika"
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Client{http: httpclient.New(opts)}
}

// Global returns the aggregate market overview.
func (c *Client) Global(ctx context.Context) (*models.Table, error) {
	var g struct {
		MarketCapUSD           float64 `json:"market_cap_usd"`
		Volume24hUSD           float64 `json:"volume_24h_usd"`
		BitcoinDominance       float64 `json:"bitcoin_dominance_percentage"`
		CryptocurrenciesNumber int     `json:"cryptocurrencies_number"`
		MarketCapATHValue      float64 `json:"market_cap_ath_value"`
		MarketCapChange24h     float64 `json:"market_cap_change_24h"`
		Volume24hChange24h     float64 `json:"volume_24h_change_24h"`
	}
	if err := c.http.GetJSON(ctx, "/global", nil, &g); err != nil {
		return nil, err
	}

	tbl := models.NewTable("paprika_global", "Metric", "Value")
	tbl.AddRow("Market Cap USD", g.MarketCapUSD)
	tbl.AddRow("Volume 24h USD", g.Volume24hUSD)
	tbl.AddRow("BTC Dominance %", g.BitcoinDominance)
	tbl.AddRow("Cryptocurrencies", g.CryptocurrenciesNumber)
	tbl.AddRow("Market Cap ATH", g.MarketCapATHValue)
	tbl.AddRow("Market Cap Change 24h %", g.MarketCapChange24h)
	tbl.AddRow("Volume Change 24h %", g.Volume24hChange24h)
	return tbl, nil
}

type quote struct {
	Price            float64 `json:"price"`
	Volume24h        float64 `json:"volume_24h"`
	MarketCap        float64 `json:"market_cap"`
	PercentChange24h float64 `json:"percent_change_24h"`
	PercentChange7d  float64 `json:"percent_change_7d"`
	PercentFromATH   float64 `json:"percent_from_price_ath"`
}

// Tickers lists coins with quotes in the given currency, by rank.
func (c *Client) Tickers(ctx context.Context, quoteCurrency string, limit int) (*models.Table, error) {
	quoteCurrency = strings.ToUpper(quoteCurrency)
	var tickers []struct {
		ID     string           `json:"id"`
		Name   string           `json:"name"`
		Symbol string           `json:"symbol"`
		Rank   int              `json:"rank"`
		Quotes map[string]quote `json:"quotes"`
	}
	if err := c.http.GetJSON(ctx, "/tickers", url.Values{"quotes": {quoteCurrency}}, &tickers); err != nil {
		return nil, err
	}
	sort.SliceStable(tickers, func(i, j int) bool { return tickers[i].Rank < tickers[j].Rank })

	tbl := models.NewTable("paprika_tickers", "Rank", "Symbol", "Name", "Price", "Volume 24h", "Market Cap",
		"24h %", "7d %", "From ATH %")
	for _, t := range tickers {
		if limit > 0 && tbl.Len() >= limit {
			break
		}
		q := t.Quotes[quoteCurrency]
		tbl.AddRow(t.Rank, t.Symbol, t.Name, q.Price, q.Volume24h, q.MarketCap,
			q.PercentChange24h, q.PercentChange7d, q.PercentFromATH)
	}
	return tbl, nil
}

// Exchanges lists active exchanges by adjusted 24h volume.
func (c *Client) Exchanges(ctx context.Context, limit int) (*models.Table, error) {
	var exchanges []struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Active       bool   `json:"active"`
		Markets      int    `json:"markets"`
		Currencies   int    `json:"currencies"`
		AdjustedRank int    `json:"adjusted_rank"`
		Quotes       map[string]struct {
			AdjustedVolume24h float64 `json:"adjusted_volume_24h"`
			ReportedVolume24h float64 `json:"reported_volume_24h"`
		} `json:"quotes"`
	}
	if err := c.http.GetJSON(ctx, "/exchanges", url.Values{"quotes": {"USD"}}, &exchanges); err != nil {
		return nil, err
	}

	tbl := models.NewTable("paprika_exchanges", "Rank", "Id", "Name", "Markets", "Currencies", "Adjusted Volume 24h",
		"Reported Volume 24h")
	for _, ex := range exchanges {
		if !ex.Active {
			continue
		}
		usd := ex.Quotes["USD"]
		tbl.AddRow(ex.AdjustedRank, ex.ID, ex.Name, ex.Markets, ex.Currencies, usd.AdjustedVolume24h, usd.ReportedVolume24h)
	}
	if err := tbl.SortBy("Adjusted Volume 24h", false); err != nil {
		return nil, err
	}
	if limit > 0 {
		tbl.Head(limit)
	}
	return tbl, nil
}

// Search finds currencies, exchanges and people matching q.
func (c *Client) Search(ctx context.Context, q string, limit int) (*models.Table, error) {
	if limit <= 0 {
		limit = 20
	}
	var resp struct {
		Currencies []struct {
			ID     string `json:"id"`
			Name   string `json:"name"`
			Symbol string `json:"symbol"`
			Rank   int    `json:"rank"`
		} `json:"currencies"`
		Exchanges []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Rank int    `json:"rank"`
		} `json:"exchanges"`
		People []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"people"`
	}
	query := url.Values{
		"q":        {q},
		"c":        {"currencies,exchanges,people"},
		"limit":    {strconv.Itoa(limit)},
		"modifier": {"symbol_search"},
	}
	if err := c.http.GetJSON(ctx, "/search", query, &resp); err != nil {
		return nil, err
	}

	tbl := models.NewTable("paprika_search", "Category", "Id", "Name", "Symbol", "Rank")
	for _, cur := range resp.Currencies {
		tbl.AddRow("currency", cur.ID, cur.Name, cur.Symbol, cur.Rank)
	}
	for _, ex := range resp.Exchanges {
		tbl.AddRow("exchange", ex.ID, ex.Name, "", ex.Rank)
	}
	for _, p := range resp.People {
		tbl.AddRow("person", p.ID, p.Name, "", 0)
	}
	return tbl, nil
}
