// Package glassnode is a client for Glassnode on-chain metrics.
package glassnode

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"research-terminal/internal/errors"
	"research-terminal/internal/httpclient"
	"research-terminal/internal/models"
)

// DefaultBaseURL is the metrics API root.
const DefaultBaseURL = "https://api.glassnode.com/v1/metrics"

// Supported intervals.
var Intervals = []string{"24h", "1w", "1month"}

// Client fetches on-chain metrics. Every call needs an API key.
type Client struct {
	http   *httpclient.Client
	apiKey string
}

// New creates a client.
func New(opts httpclient.Options, apiKey string) *Client {
	opts.Name = "glassnode"
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Client{http: httpclient.New(opts), apiKey: apiKey}
}

// Point is one value of a metric series.
type Point struct {
	Time  time.Time
	Value float64
}

// Metric fetches a raw metric series such as "addresses/active_count".
// Zero since/until leave the bound open.
func (c *Client) Metric(ctx context.Context, path, asset, interval string, since, until time.Time, extra url.Values) ([]Point, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: glassnode api key", errors.ErrNotConfigured)
	}
	if interval == "" {
		interval = "24h"
	}
	if !validInterval(interval) {
		return nil, errors.NewValidationError("interval", interval, "must be one of "+strings.Join(Intervals, ", "))
	}

	q := url.Values{"a": {strings.ToUpper(asset)}, "i": {interval}, "api_key": {c.apiKey}}
	if !since.IsZero() {
		q.Set("s", strconv.FormatInt(since.Unix(), 10))
	}
	if !until.IsZero() {
		q.Set("u", strconv.FormatInt(until.Unix(), 10))
	}
	for k, v := range extra {
		q[k] = v
	}

	var raw []struct {
		T int64    `json:"t"`
		V *float64 `json:"v"`
	}
	if err := c.http.GetJSON(ctx, "/"+strings.Trim(path, "/"), q, &raw); err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(raw))
	for _, r := range raw {
		if r.V == nil {
			continue
		}
		points = append(points, Point{Time: time.Unix(r.T, 0).UTC(), Value: *r.V})
	}
	if len(points) == 0 {
		return nil, errors.NewDataError(path, asset, "empty series", errors.ErrNoData)
	}
	return points, nil
}

func validInterval(s string) bool {
	for _, i := range Intervals {
		if i == s {
			return true
		}
	}
	return false
}

func seriesTable(name, column string, points []Point) *models.Table {
	tbl := models.NewTable(name, "Date", column)
	for _, p := range points {
		tbl.AddRow(p.Time.Format("2006-01-02"), p.Value)
	}
	return tbl
}

// ActiveAddresses returns the daily count of unique active addresses.
func (c *Client) ActiveAddresses(ctx context.Context, asset, interval string, since, until time.Time) (*models.Table, error) {
	points, err := c.Metric(ctx, "addresses/active_count", asset, interval, since, until, nil)
	if err != nil {
		return nil, err
	}
	return seriesTable("active_addresses", "Active Addresses", points), nil
}

// ExchangeBalance returns the asset balance held on an exchange, "aggregated" for all.
func (c *Client) ExchangeBalance(ctx context.Context, asset, exchange, interval string, since, until time.Time) (*models.Table, error) {
	if exchange == "" {
		exchange = "aggregated"
	}
	points, err := c.Metric(ctx, "distribution/balance_exchanges", asset, interval, since, until, url.Values{"e": {exchange}})
	if err != nil {
		return nil, err
	}
	return seriesTable("exchange_balance", "Balance", points), nil
}

// ClosePrice returns the USD close price series.
func (c *Client) ClosePrice(ctx context.Context, asset, interval string, since, until time.Time) (*models.Table, error) {
	points, err := c.Metric(ctx, "market/price_usd_close", asset, interval, since, until, nil)
	if err != nil {
		return nil, err
	}
	return seriesTable("close_price", "Price", points), nil
}
