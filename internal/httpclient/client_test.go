package httpclient

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"research-terminal/internal/errors"
	"research-terminal/internal/resilience"
)

func newTestClient(srv *httptest.Server) *Client {
	return New(Options{
		Name:       "test",
		BaseURL:    srv.URL,
		Timeout:    5 * time.Second,
		RateLimit:  1000,
		MaxRetries: 3,
		UserAgent:  "terminal-test",
		Logger:     zerolog.Nop(),
	})
}

func TestGetJSONDecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins" {
			t.Errorf("path = %q, want /coins", r.URL.Path)
		}
		if r.URL.Query().Get("vs") != "usd" {
			t.Errorf("query vs = %q", r.URL.Query().Get("vs"))
		}
		if r.Header.Get("User-Agent") != "terminal-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		json.NewEncoder(w).Encode(map[string]any{"name": "bitcoin", "price": 42.5})
	}))
	defer srv.Close()

	var out struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	}
	err := newTestClient(srv).GetJSON(context.Background(), "/coins", url.Values{"vs": {"usd"}}, &out)
	if err != nil {
		t.Fatalf("GetJSON() error = %v", err)
	}
	if out.Name != "bitcoin" || out.Price != 42.5 {
		t.Errorf("decoded = %+v", out)
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body, err := newTestClient(srv).Get(context.Background(), "/", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %s", body)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid api key"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv).Get(context.Background(), "/metrics", nil)

	var pe *errors.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("error = %v, want ProviderError", err)
	}
	if pe.Status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", pe.Status)
	}
	if pe.Body != `{"message":"invalid api key"}` {
		t.Errorf("body = %q", pe.Body)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRateLimitedMapsToSentinel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := New(Options{Name: "test", BaseURL: srv.URL, RateLimit: 1000, MaxRetries: 1, Logger: zerolog.Nop()})
	_, err := client.Get(context.Background(), "/", nil)
	if !errors.Is(err, errors.ErrRateLimited) {
		t.Errorf("error = %v, want ErrRateLimited", err)
	}
}

func TestCircuitOpensForFailingProvider(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breakers := NewBreakers()
	opts := Options{Name: "glassnode", BaseURL: srv.URL, RateLimit: 1000, MaxRetries: 1, Logger: zerolog.Nop(), Breakers: breakers}
	for i := 0; i < 5; i++ {
		if _, err := New(opts).Get(context.Background(), "/", nil); err == nil {
			t.Fatal("Get() should fail")
		}
	}

	_, err := New(opts).Get(context.Background(), "/", nil)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if got := atomic.LoadInt32(&calls); got != 5 {
		t.Errorf("calls = %d, want 5", got)
	}
	if state := breakers.Get("glassnode").State(); state != resilience.CircuitOpen {
		t.Errorf("state = %s, want OPEN", state)
	}
}

func TestRateLimiterWaitHonoursContext(t *testing.T) {
	limiter := NewRateLimiter(0.001, 1)
	if !limiter.Allow() {
		t.Fatal("first token should be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := limiter.Wait(ctx); err == nil {
		t.Error("Wait() should fail once the context expires")
	}
}

func TestLookup(t *testing.T) {
	var doc interface{}
	raw := `{"data":{"total_market_cap":{"usd":1.5e12},"active":"42","list":[{"v":7}]}}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatal(err)
	}

	if got := LookupFloat(doc, "$.data.total_market_cap.usd"); got != 1.5e12 {
		t.Errorf("market cap = %v", got)
	}
	if got := LookupFloat(doc, "$.data.active"); got != 42 {
		t.Errorf("string number = %v", got)
	}
	if got := LookupFloat(doc, "$.data.list[0].v"); got != 7 {
		t.Errorf("list element = %v", got)
	}
	if got := LookupFloat(doc, "$.data.missing"); !math.IsNaN(got) {
		t.Errorf("missing = %v, want NaN", got)
	}
}
