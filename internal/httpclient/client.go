// Package httpclient is the shared JSON-over-HTTP transport used by every data source.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"research-terminal/internal/errors"
	"research-terminal/internal/logging"
	"research-terminal/internal/resilience"
	"research-terminal/internal/security"
	"research-terminal/pkg/utils"
)

// Options configures a Client.
type Options struct {
	Name       string
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64
	MaxRetries int
	UserAgent  string
	Headers    map[string]string
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// Breakers shares one circuit breaker per provider name. Nil gives the client its own.
	Breakers *resilience.Registry
}

// NewBreakers creates a breaker registry that only counts network errors, rate limiting
// and server errors against a provider.
func NewBreakers() *resilience.Registry {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.IsFailure = errors.IsTemporary
	return resilience.NewRegistry(cfg)
}

// Client performs rate limited, retried GET requests against a single provider.
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *RateLimiter
	breaker *resilience.CircuitBreaker
	retry   utils.RetryConfig
	headers map[string]string
	logger  zerolog.Logger
}

// New creates a provider client.
func New(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	rate := opts.RateLimit
	if rate <= 0 {
		rate = 2
	}

	retry := utils.DefaultRetryConfig()
	if opts.MaxRetries > 0 {
		retry.MaxAttempts = opts.MaxRetries
	}
	retry.ShouldRetry = errors.IsTemporary

	breakers := opts.Breakers
	if breakers == nil {
		breakers = NewBreakers()
	}

	headers := map[string]string{"Accept": "application/json"}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &Client{
		name:    opts.Name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		http:    httpClient,
		limiter: NewRateLimiter(rate, 1),
		breaker: breakers.Get(opts.Name),
		retry:   retry,
		headers: headers,
		logger:  logging.WithProvider(opts.Logger, opts.Name),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return c.name
}

// GetJSON fetches path with the query and decodes the JSON body into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	body, err := c.Get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.NewDataError(c.name, path, "decoding response", err)
	}
	return nil
}

// GetDocument fetches path and decodes it into a generic JSON document for path lookups.
func (c *Client) GetDocument(ctx context.Context, path string, query url.Values) (interface{}, error) {
	var doc interface{}
	if err := c.GetJSON(ctx, path, query, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Get fetches path and returns the raw body of a 2xx response.
func (c *Client) Get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	return utils.RetryWithResult(ctx, c.retry, func() ([]byte, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		start := time.Now()
		body, err := resilience.ExecuteWithResult(ctx, c.breaker, func() ([]byte, error) {
			return c.do(ctx, endpoint, path)
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, fmt.Errorf("%s: %w", c.name, err)
		}
		logging.LogAPICall(c.logger, http.MethodGet, path, time.Since(start), err)
		return body, err
	})
}

func (c *Client) do(ctx context.Context, endpoint, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &errors.ProviderError{Provider: c.name, Endpoint: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errors.ProviderError{Provider: c.name, Endpoint: path, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.NewProviderError(c.name, path, resp.StatusCode, security.MaskSensitive(strings.TrimSpace(string(body))))
	}

	return body, nil
}
