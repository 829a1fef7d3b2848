// Package defillama is a client for the DeFi Llama TVL API.
package defillama

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"research-terminal/internal/errors"
	"research-terminal/internal/httpclient"
	"research-terminal/internal/models"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.llama.fi"

// Client fetches total value locked data.
type Client struct {
	http *httpclient.Client
}

// New creates a client.
func New(opts httpclient.Options) *Client {
	opts.Name = "defillama"
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Client{http: httpclient.New(opts)}
}

type protocol struct {
	Name      string   `json:"name"`
	Slug      string   `json:"slug"`
	Symbol    string   `json:"symbol"`
	Category  string   `json:"category"`
	Chains    []string `json:"chains"`
	TVL       float64  `json:"tvl"`
	Change1d  *float64 `json:"change_1d"`
	Change7d  *float64 `json:"change_7d"`
	MarketCap *float64 `json:"mcap"`
}

func orZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// Protocols lists DeFi protocols sorted by the given column, TVL by default.
func (c *Client) Protocols(ctx context.Context, limit int, sortBy string) (*models.Table, error) {
	var protocols []protocol
	if err := c.http.GetJSON(ctx, "/protocols", nil, &protocols); err != nil {
		return nil, err
	}

	tbl := models.NewTable("llama_protocols", "Name", "Slug", "Symbol", "Category", "Chains", "TVL",
		"Change 1D %", "Change 7D %", "Market Cap")
	for _, p := range protocols {
		chains := p.Chains
		if len(chains) > 3 {
			chains = append(chains[:3:3], fmt.Sprintf("+%d", len(p.Chains)-3))
		}
		tbl.AddRow(p.Name, p.Slug, p.Symbol, p.Category, strings.Join(chains, ","), p.TVL,
			orZero(p.Change1d), orZero(p.Change7d), orZero(p.MarketCap))
	}
	if sortBy == "" {
		sortBy = "TVL"
	}
	if err := tbl.SortBy(sortBy, false); err != nil {
		return nil, err
	}
	tbl.Head(limit)
	return tbl, nil
}

// Chains lists chains by TVL.
func (c *Client) Chains(ctx context.Context, limit int) (*models.Table, error) {
	var chains []struct {
		Name        string  `json:"name"`
		TVL         float64 `json:"tvl"`
		TokenSymbol string  `json:"tokenSymbol"`
		GeckoID     string  `json:"gecko_id"`
	}
	if err := c.http.GetJSON(ctx, "/v2/chains", nil, &chains); err != nil {
		return nil, err
	}
	sort.SliceStable(chains, func(i, j int) bool { return chains[i].TVL > chains[j].TVL })

	tbl := models.NewTable("llama_chains", "Name", "Token", "TVL")
	for _, ch := range chains {
		tbl.AddRow(ch.Name, ch.TokenSymbol, ch.TVL)
	}
	tbl.Head(limit)
	return tbl, nil
}

type tvlPoint struct {
	Date int64   `json:"date"`
	TVL  float64 `json:"tvl"`
}

// ProtocolTVL returns the daily TVL history of one protocol.
func (c *Client) ProtocolTVL(ctx context.Context, slug string) (*models.Table, error) {
	var resp struct {
		Name string `json:"name"`
		TVL  []struct {
			Date              int64   `json:"date"`
			TotalLiquidityUSD float64 `json:"totalLiquidityUSD"`
		} `json:"tvl"`
	}
	path := "/protocol/" + url.PathEscape(strings.ToLower(slug))
	if err := c.http.GetJSON(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.TVL) == 0 {
		return nil, errors.NewDataError("tvl", slug, "no TVL history", errors.ErrDataNotFound)
	}

	tbl := models.NewTable("llama_"+slug+"_tvl", "Date", "TVL")
	for _, p := range resp.TVL {
		tbl.AddRow(time.Unix(p.Date, 0).UTC().Format("2006-01-02"), p.TotalLiquidityUSD)
	}
	return tbl, nil
}

// HistoricalTVL returns the aggregate TVL across all chains.
func (c *Client) HistoricalTVL(ctx context.Context) (*models.Table, error) {
	var points []tvlPoint
	if err := c.http.GetJSON(ctx, "/v2/historicalChainTvl", nil, &points); err != nil {
		return nil, err
	}

	tbl := models.NewTable("llama_historical_tvl", "Date", "TVL")
	for _, p := range points {
		tbl.AddRow(time.Unix(p.Date, 0).UTC().Format("2006-01-02"), p.TVL)
	}
	return tbl, nil
}
