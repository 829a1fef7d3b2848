package newsletter

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-terminal/internal/errors"
	"research-terminal/internal/httpclient"
	"research-terminal/internal/models"
)

const gweiFixture = `[
 {"title":"The Daily Gwei #800","subtitle":"<p>Blobs are <b>cheap</b> again</p>","canonical_url":"https://thedailygwei.substack.com/p/800",
  "post_date":"2024-05-03T12:00:00.000Z"},
 {"title":"The Daily Gwei #799","subtitle":"","description":"Restaking &amp; risk","canonical_url":"https://thedailygwei.substack.com/p/799",
  "post_date":"2024-05-01T12:00:00.000Z"}
]`

const defiFixture = `[
 {"title":"DeFi Weekly","subtitle":"Rates  are\n up","canonical_url":"https://defiweekly.substack.com/p/1",
  "post_date":"2024-05-02T08:00:00.000Z"}
]`

func newServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var inflight, peak int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inflight, 1)
		defer atomic.AddInt32(&inflight, -1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)

		if r.URL.Query().Get("sort") != "new" {
			http.Error(w, "bad sort", http.StatusBadRequest)
			return
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/thedailygwei/"):
			_, _ = w.Write([]byte(gweiFixture))
		case strings.HasPrefix(r.URL.Path, "/defiweekly/"):
			_, _ = w.Write([]byte(defiFixture))
		case strings.HasPrefix(r.URL.Path, "/empty/"):
			_, _ = w.Write([]byte(`[]`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &peak
}

func newService(srv *httptest.Server, workers int, names ...string) *Service {
	sources := make([]string, len(names))
	for i, n := range names {
		sources[i] = srv.URL + "/" + n
	}
	return NewService(Options{
		Sources: sources,
		Workers: workers,
		Limit:   5,
		HTTP:    httpclient.Options{RateLimit: 1000, MaxRetries: 1},
		Logger:  zerolog.Nop(),
	})
}

func TestFetchMergesNewestFirst(t *testing.T) {
	srv, _ := newServer(t)
	svc := newService(srv, 2, "thedailygwei", "defiweekly")

	articles, err := svc.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, articles, 3)

	assert.Equal(t, "The Daily Gwei #800", articles[0].Title)
	assert.Equal(t, "Blobs are cheap again", articles[0].Subtitle)
	assert.Equal(t, "thedailygwei", articles[0].Source)
	assert.Equal(t, "defiweekly", articles[1].Source)
	assert.Equal(t, "Rates are up", articles[1].Subtitle)
	assert.Equal(t, "Restaking & risk", articles[2].Subtitle, "description fills a missing subtitle")
}

func TestFetchSkipsFailingSource(t *testing.T) {
	srv, _ := newServer(t)
	svc := newService(srv, 3, "thedailygwei", "missing", "empty")

	articles, err := svc.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, articles, 2)
	for _, a := range articles {
		assert.Equal(t, "thedailygwei", a.Source)
	}
}

func TestFetchBoundsConcurrency(t *testing.T) {
	srv, peak := newServer(t)
	names := make([]string, 8)
	for i := range names {
		names[i] = fmt.Sprintf("empty/%d", i)
	}
	svc := newService(srv, 2, names...)

	_, err := svc.Fetch(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(peak), int32(2))
}

func TestFetchCanceled(t *testing.T) {
	srv, _ := newServer(t)
	svc := newService(srv, 2, "thedailygwei")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPublicationName(t *testing.T) {
	assert.Equal(t, "thedailygwei", publicationName("https://thedailygwei.substack.com"))
	assert.Equal(t, "thedefiant", publicationName("https://www.thedefiant.io"))
	assert.Equal(t, "feed", publicationName("http://127.0.0.1:8080/feed"))
}

func TestHTMLText(t *testing.T) {
	assert.Equal(t, "plain text", HTMLText("  plain \n text "))
	assert.Equal(t, "Hello world", HTMLText("<div><p>Hello</p> <script>x()</script><em>world</em></div>"))
}

type fakeSummarizer struct {
	system, user string
}

func (f *fakeSummarizer) CompleteWithSystem(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return "  - Blobs are cheap [thedailygwei]\n", nil
}

func TestDigest(t *testing.T) {
	articles := []models.Article{
		{Source: "thedailygwei", Title: "Gwei #800", Subtitle: strings.Repeat("x", 300)},
		{Source: "defiweekly", Title: "DeFi Weekly"},
	}

	f := &fakeSummarizer{}
	out, err := Digest(context.Background(), f, articles)
	require.NoError(t, err)
	assert.Equal(t, "- Blobs are cheap [thedailygwei]", out)
	assert.Contains(t, f.user, "- [thedailygwei] Gwei #800: xxx")
	assert.Contains(t, f.user, "...\n- [defiweekly] DeFi Weekly\n")

	_, err = Digest(context.Background(), nil, articles)
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
	_, err = Digest(context.Background(), f, nil)
	assert.True(t, errors.Is(err, errors.ErrNoData))
}

func TestOpenAIClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,
		 "message":{"role":"assistant","content":"summary"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", "", srv.URL+"/v1")
	out, err := c.CompleteWithSystem(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "summary", out)
}

func TestTable(t *testing.T) {
	tbl := Table([]models.Article{{Source: "s", Title: "t", Published: time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)}})
	assert.Equal(t, []interface{}{"2024-05-03", "s", "t", "", ""}, tbl.Rows[0])
}
