// Package newsletter collects recent posts from Substack publications.
package newsletter

import (
	"context"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"research-terminal/internal/httpclient"
	"research-terminal/internal/models"
)

// Options configures a Service.
type Options struct {
	Sources []string // publication base URLs
	Workers int
	Limit   int // posts per source
	HTTP    httpclient.Options
	Logger  zerolog.Logger
}

// Service fans out over the configured publications.
type Service struct {
	sources []source
	workers int
	limit   int
	logger  zerolog.Logger
}

type source struct {
	name   string
	client *httpclient.Client
}

// NewService creates a newsletter service with one HTTP client per publication.
func NewService(opts Options) *Service {
	if opts.Workers < 1 {
		opts.Workers = 6
	}
	if opts.Limit < 1 {
		opts.Limit = 10
	}

	s := &Service{workers: opts.Workers, limit: opts.Limit, logger: opts.Logger}
	for _, base := range opts.Sources {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base == "" {
			continue
		}
		httpOpts := opts.HTTP
		httpOpts.BaseURL = base
		httpOpts.Name = publicationName(base)
		httpOpts.Logger = opts.Logger
		s.sources = append(s.sources, source{name: httpOpts.Name, client: httpclient.New(httpOpts)})
	}
	return s
}

// publicationName turns "https://thedailygwei.substack.com" into "thedailygwei".
// Publications served under a path are named by its last segment.
func publicationName(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return base
	}
	if p := strings.Trim(u.Path, "/"); p != "" {
		return path.Base(p)
	}
	name, _, _ := strings.Cut(strings.TrimPrefix(u.Hostname(), "www."), ".")
	return name
}

type post struct {
	Title         string    `json:"title"`
	Subtitle      string    `json:"subtitle"`
	Description   string    `json:"description"`
	CanonicalURL  string    `json:"canonical_url"`
	PostDate      time.Time `json:"post_date"`
	TruncatedBody string    `json:"truncated_body_text"`
}

// Fetch returns the newest posts of every publication, newest first.
// A failing publication is logged and left out.
func (s *Service) Fetch(ctx context.Context) ([]models.Article, error) {
	p := pool.NewWithResults[[]models.Article]().WithMaxGoroutines(s.workers)
	for _, src := range s.sources {
		src := src
		p.Go(func() []models.Article {
			articles, err := s.fetchSource(ctx, src)
			if err != nil {
				s.logger.Warn().Err(err).Str("source", src.name).Msg("Skipping newsletter source")
				return nil
			}
			return articles
		})
	}

	var all []models.Article
	for _, articles := range p.Wait() {
		all = append(all, articles...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Published.After(all[j].Published) })
	return all, nil
}

func (s *Service) fetchSource(ctx context.Context, src source) ([]models.Article, error) {
	q := url.Values{"sort": {"new"}, "limit": {strconv.Itoa(s.limit)}}
	var posts []post
	if err := src.client.GetJSON(ctx, "/api/v1/archive", q, &posts); err != nil {
		return nil, err
	}

	articles := make([]models.Article, 0, len(posts))
	for _, p := range posts {
		subtitle := p.Subtitle
		if subtitle == "" {
			subtitle = p.Description
		}
		if subtitle == "" {
			subtitle = p.TruncatedBody
		}
		articles = append(articles, models.Article{
			Source:    src.name,
			Title:     HTMLText(p.Title),
			Subtitle:  HTMLText(subtitle),
			URL:       p.CanonicalURL,
			Published: p.PostDate.UTC(),
		})
	}
	return articles, nil
}

// HTMLText extracts readable text from an HTML fragment, collapsing whitespace.
func HTMLText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

// Table renders articles for display and export.
func Table(articles []models.Article) *models.Table {
	tbl := models.NewTable("newsletters", "Date", "Source", "Title", "Subtitle", "Link")
	for _, a := range articles {
		tbl.AddRow(a.Published.Format("2006-01-02"), a.Source, a.Title, a.Subtitle, a.URL)
	}
	return tbl
}
