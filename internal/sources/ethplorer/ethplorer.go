// Package ethplorer is a client for the Ethplorer Ethereum token API.
package ethplorer

import (
	"context"
	"math"
	"net/url"
	"strconv"
	"strings"

	"research-terminal/internal/errors"
	"research-terminal/internal/httpclient"
	"research-terminal/internal/models"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://api.ethplorer.io"

// FreeKey is the shared key Ethplorer accepts for light usage.
const FreeKey = "freekey"

// Client fetches token and address data.
type Client struct {
	http   *httpclient.Client
	apiKey string
}

// New creates a client. An empty key falls back to FreeKey.
func New(opts httpclient.Options, apiKey string) *Client {
	opts.Name = "ethplorer"
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if apiKey == "" {
		apiKey = FreeKey
	}
	return &Client{http: httpclient.New(opts), apiKey: apiKey}
}

func (c *Client) query(extra url.Values) url.Values {
	q := url.Values{"apiKey": {c.apiKey}}
	for k, v := range extra {
		q[k] = v
	}
	return q
}

func checkAddress(address string) (string, error) {
	address = strings.ToLower(strings.TrimSpace(address))
	if len(address) != 42 || !strings.HasPrefix(address, "0x") {
		return "", errors.NewValidationError("address", address, "must be a 0x-prefixed 40 hex digit address")
	}
	return address, nil
}

// scaled converts a raw integer token amount using the token's decimals.
func scaled(raw, decimals float64) float64 {
	if math.IsNaN(decimals) {
		return raw
	}
	return raw / math.Pow(10, decimals)
}

// TokenInfo describes an ERC20 token contract.
func (c *Client) TokenInfo(ctx context.Context, address string) (*models.Table, error) {
	address, err := checkAddress(address)
	if err != nil {
		return nil, err
	}
	doc, err := c.http.GetDocument(ctx, "/getTokenInfo/"+address, c.query(nil))
	if err != nil {
		return nil, err
	}

	decimals := httpclient.LookupFloat(doc, "$.decimals")
	tbl := models.NewTable("token_info", "Metric", "Value")
	tbl.AddRow("Name", httpclient.LookupString(doc, "$.name"))
	tbl.AddRow("Symbol", httpclient.LookupString(doc, "$.symbol"))
	tbl.AddRow("Address", address)
	tbl.AddRow("Decimals", decimals)
	tbl.AddRow("Total Supply", scaled(httpclient.LookupFloat(doc, "$.totalSupply"), decimals))
	tbl.AddRow("Holders", httpclient.LookupFloat(doc, "$.holdersCount"))
	tbl.AddRow("Price USD", httpclient.LookupFloat(doc, "$.price.rate"))
	tbl.AddRow("Market Cap USD", httpclient.LookupFloat(doc, "$.price.marketCapUsd"))
	tbl.AddRow("Change 24h %", httpclient.LookupFloat(doc, "$.price.diff"))
	return tbl, nil
}

// AddressInfo lists the ETH and token balances of an address.
func (c *Client) AddressInfo(ctx context.Context, address string) (*models.Table, error) {
	address, err := checkAddress(address)
	if err != nil {
		return nil, err
	}
	doc, err := c.http.GetDocument(ctx, "/getAddressInfo/"+address, c.query(nil))
	if err != nil {
		return nil, err
	}

	tbl := models.NewTable("address_info", "Token", "Symbol", "Balance", "Price USD", "Value USD")
	ethBalance := httpclient.LookupFloat(doc, "$.ETH.balance")
	ethPrice := httpclient.LookupFloat(doc, "$.ETH.price.rate")
	tbl.AddRow("Ethereum", "ETH", ethBalance, ethPrice, ethBalance*ethPrice)

	tokens, err := httpclient.Lookup(doc, "$.tokens")
	if err != nil {
		return tbl, nil
	}
	list, _ := tokens.([]interface{})
	for _, tok := range list {
		decimals := httpclient.LookupFloat(tok, "$.tokenInfo.decimals")
		balance := scaled(httpclient.LookupFloat(tok, "$.balance"), decimals)
		price := httpclient.LookupFloat(tok, "$.tokenInfo.price.rate")
		tbl.AddRow(httpclient.LookupString(tok, "$.tokenInfo.name"), httpclient.LookupString(tok, "$.tokenInfo.symbol"),
			balance, price, balance*price)
	}
	if err := tbl.SortBy("Value USD", false); err != nil {
		return nil, err
	}
	return tbl, nil
}

// TopTokens lists the tokens with the largest market capitalisation.
func (c *Client) TopTokens(ctx context.Context, limit int) (*models.Table, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	doc, err := c.http.GetDocument(ctx, "/getTop", c.query(url.Values{"criteria": {"cap"}, "limit": {strconv.Itoa(limit)}}))
	if err != nil {
		return nil, err
	}
	tokens, err := httpclient.Lookup(doc, "$.tokens")
	if err != nil {
		return nil, errors.NewDataError("top tokens", "", "missing tokens list", errors.ErrNoData)
	}
	list, _ := tokens.([]interface{})

	tbl := models.NewTable("top_tokens", "Rank", "Name", "Symbol", "Address", "Price USD", "Market Cap USD", "Holders")
	for i, tok := range list {
		tbl.AddRow(i+1, httpclient.LookupString(tok, "$.name"), httpclient.LookupString(tok, "$.symbol"),
			httpclient.LookupString(tok, "$.address"), httpclient.LookupFloat(tok, "$.price.rate"),
			httpclient.LookupFloat(tok, "$.price.marketCapUsd"), httpclient.LookupFloat(tok, "$.holdersCount"))
	}
	tbl.Head(limit)
	return tbl, nil
}
