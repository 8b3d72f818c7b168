package datasource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// ════════════════════════════════════════════════════════════════════
// newsapi.go
// ════════════════════════════════════════════════════════════════════

const newsAPIBody = `{
  "status": "ok",
  "totalResults": 2,
  "articles": [
    {
      "source": {"id": null, "name": "Olé"},
      "author": null,
      "title": "Messi logra un nuevo récord",
      "description": "<p>El capitán <b>argentino</b> hizo historia.</p>",
      "url": "https://example.com/messi-record",
      "publishedAt": "2025-03-01T10:30:00Z",
      "content": "Texto completo [+1200 chars]"
    },
    {
      "source": {"id": "marca", "name": "Marca"},
      "author": "Redacción",
      "title": "[Removed]",
      "description": null,
      "url": "https://removed.com",
      "publishedAt": "1970-01-01T00:00:00Z",
      "content": null
    }
  ]
}`

func testQuery() SearchQuery {
	return SearchQuery{
		Keyword:  "messi",
		From:     time.Date(2025, 2, 22, 12, 0, 0, 0, time.UTC),
		To:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Language: "es",
		SortBy:   "popularity",
		PageSize: 10,
	}
}

func TestNewsAPISearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/everything" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		want := map[string]string{
			"q":        "messi",
			"from":     "2025-02-22T12:00:00Z",
			"to":       "2025-03-01T12:00:00Z",
			"sortBy":   "popularity",
			"language": "es",
			"pageSize": "10",
			"apiKey":   "test-key",
		}
		for k, v := range want {
			if got := q.Get(k); got != v {
				t.Errorf("param %s: got %q, want %q", k, got, v)
			}
		}
		io.WriteString(w, newsAPIBody)
	}))
	defer server.Close()

	n := NewNewsAPI("test-key", WithNewsAPIBaseURL(server.URL))
	got, err := n.Search(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 raw articles, got %d", len(got))
	}
	a := got[0]
	if a.Title != "Messi logra un nuevo récord" || a.Source != "Olé" || a.Author != "" {
		t.Errorf("unexpected first article: %+v", a)
	}
	if !a.PublishedAt.Equal(time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt: got %v", a.PublishedAt)
	}
	if got[1].Title != "[Removed]" {
		t.Errorf("raw results should pass through unfiltered, got %q", got[1].Title)
	}
}

func TestNewsAPIPageSizeCapped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("pageSize"); got != "100" {
			t.Errorf("pageSize: got %s, want 100", got)
		}
		io.WriteString(w, `{"status":"ok","articles":[]}`)
	}))
	defer server.Close()

	q := testQuery()
	q.PageSize = 500
	if _, err := NewNewsAPI("k", WithNewsAPIBaseURL(server.URL)).Search(context.Background(), q); err != nil {
		t.Fatal(err)
	}
}

func TestNewsAPIErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(error) bool
	}{
		{"401", http.StatusUnauthorized, `{"status":"error","code":"apiKeyInvalid","message":"Your API key is invalid"}`,
			func(err error) bool { return errors.Is(err, ErrUpstreamAuth) }},
		{"apiKeyMissing in body", http.StatusBadRequest, `{"status":"error","code":"apiKeyMissing","message":"missing"}`,
			func(err error) bool { return errors.Is(err, ErrUpstreamAuth) }},
		{"429", http.StatusTooManyRequests, `{"status":"error","code":"rateLimited","message":"slow down"}`,
			func(err error) bool { return errors.Is(err, ErrUpstreamRateLimited) }},
		{"rateLimited with 200", http.StatusOK, `{"status":"error","code":"rateLimited","message":"slow down"}`,
			func(err error) bool { return errors.Is(err, ErrUpstreamRateLimited) }},
		{"500", http.StatusInternalServerError, `oops`,
			func(err error) bool {
				var se *UpstreamStatusError
				return errors.As(err, &se) && se.StatusCode == 500 && se.Message == "oops"
			}},
		{"parameterInvalid", http.StatusBadRequest, `{"status":"error","code":"parameterInvalid","message":"bad from"}`,
			func(err error) bool {
				var se *UpstreamStatusError
				return errors.As(err, &se) && se.Code == "parameterInvalid"
			}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			_, err := NewNewsAPI("k", WithNewsAPIBaseURL(server.URL)).Search(context.Background(), testQuery())
			if err == nil || !tt.check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewsAPINoKey(t *testing.T) {
	_, err := NewNewsAPI("").Search(context.Background(), testQuery())
	if !errors.Is(err, ErrUpstreamAuth) {
		t.Fatalf("expected ErrUpstreamAuth, got %v", err)
	}
}

func TestNewsAPITimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	n := NewNewsAPI("k",
		WithNewsAPIBaseURL(server.URL),
		WithNewsAPIHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
	)
	_, err := n.Search(context.Background(), testQuery())
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout, got %v", err)
	}
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Fatal("timeout should also be a kind of unavailable")
	}
}

func TestNewsAPIUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewNewsAPI("k", WithNewsAPIBaseURL(url)).Search(context.Background(), testQuery())
	if !errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected plain ErrUpstreamUnavailable, got %v", err)
	}
}

// ════════════════════════════════════════════════════════════════════
// rss.go
// ════════════════════════════════════════════════════════════════════

const rssBody = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>"messi" - Google Noticias</title>
  <item>
    <title>Messi brilla en Miami - Clarín</title>
    <link>https://news.google.com/articles/1</link>
    <pubDate>Fri, 28 Feb 2025 18:00:00 GMT</pubDate>
    <description>&lt;a href="https://clarin.com"&gt;Messi brilla&lt;/a&gt;</description>
  </item>
  <item>
    <title>Nota vieja - La Nación</title>
    <link>https://news.google.com/articles/2</link>
    <pubDate>Mon, 01 Jan 2024 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Sin fuente</title>
    <link>https://news.google.com/articles/3</link>
    <pubDate>Sat, 01 Mar 2025 09:00:00 GMT</pubDate>
  </item>
</channel>
</rss>`

func TestRSSSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if got := q.Get("q"); got != "messi after:2025-02-22 before:2025-03-02" {
			t.Errorf("q: got %q", got)
		}
		if q.Get("hl") != "es" || q.Get("gl") != "AR" || q.Get("ceid") != "AR:es" {
			t.Errorf("edition params: %v", q)
		}
		w.Header().Set("Content-Type", "application/rss+xml")
		io.WriteString(w, rssBody)
	}))
	defer server.Close()

	r := NewRSS(WithRSSBaseURL(server.URL), WithRSSRegion("ar"))
	got, err := r.Search(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 items inside the window, got %d: %+v", len(got), got)
	}
	if got[0].Title != "Messi brilla en Miami" || got[0].Source != "Clarín" {
		t.Errorf("title/source split: %+v", got[0])
	}
	if got[1].Source != "" || got[1].Title != "Sin fuente" {
		t.Errorf("title without source: %+v", got[1])
	}
}

func TestRSSPageSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, rssBody)
	}))
	defer server.Close()

	q := testQuery()
	q.PageSize = 1
	got, err := NewRSS(WithRSSBaseURL(server.URL)).Search(context.Background(), q)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 item, got %d", len(got))
	}
}

func TestRSSHTTPErrors(t *testing.T) {
	for status, check := range map[int]func(error) bool{
		http.StatusTooManyRequests:    func(err error) bool { return errors.Is(err, ErrUpstreamRateLimited) },
		http.StatusServiceUnavailable: func(err error) bool { return errors.Is(err, ErrUpstreamUnavailable) },
		http.StatusForbidden: func(err error) bool {
			var se *UpstreamStatusError
			return errors.As(err, &se) && se.StatusCode == http.StatusForbidden
		},
	} {
		t.Run(fmt.Sprint(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()
			_, err := NewRSS(WithRSSBaseURL(server.URL)).Search(context.Background(), testQuery())
			if !check(err) {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

// ════════════════════════════════════════════════════════════════════
// guard.go
// ════════════════════════════════════════════════════════════════════

type fakeSearcher struct {
	calls atomic.Int32
	err   error
	res   []models.RawArticle
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) Search(context.Context, SearchQuery) ([]models.RawArticle, error) {
	f.calls.Add(1)
	return f.res, f.err
}

func TestGuardedCachesSuccess(t *testing.T) {
	f := &fakeSearcher{res: []models.RawArticle{{Title: "a", URL: "u"}}}
	g := NewGuarded(f, 0, 0, 8, time.Minute)

	for i := 0; i < 3; i++ {
		got, err := g.Search(context.Background(), testQuery())
		if err != nil || len(got) != 1 {
			t.Fatalf("Search %d: %v, %v", i, got, err)
		}
		got[0].Title = "mutated"
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("expected 1 upstream call, got %d", n)
	}

	other := testQuery()
	other.Keyword = "otro"
	if _, err := g.Search(context.Background(), other); err != nil {
		t.Fatal(err)
	}
	if n := f.calls.Load(); n != 2 {
		t.Fatalf("different query should miss the cache, calls=%d", n)
	}

	got, _ := g.Search(context.Background(), testQuery())
	if got[0].Title != "a" {
		t.Error("cached results must not be shared with callers")
	}
}

func TestGuardedCacheHitsAcrossSlidingWindow(t *testing.T) {
	f := &fakeSearcher{res: []models.RawArticle{{Title: "a", URL: "u"}}}
	g := NewGuarded(f, 0, 0, 8, 5*time.Minute)

	now := time.Now()
	first := testQuery()
	first.From, first.To = utils.LookbackWindow(now, 7)
	later := testQuery()
	later.From, later.To = utils.LookbackWindow(now.Add(1100*time.Millisecond), 7)

	for _, q := range []SearchQuery{first, later} {
		if _, err := g.Search(context.Background(), q); err != nil {
			t.Fatal(err)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("same 7-day query a second later should hit the cache, calls=%d", n)
	}

	wider := testQuery()
	wider.From, wider.To = utils.LookbackWindow(now, 3)
	if _, err := g.Search(context.Background(), wider); err != nil {
		t.Fatal(err)
	}
	if n := f.calls.Load(); n != 2 {
		t.Fatalf("a different window length must miss the cache, calls=%d", n)
	}
}

func TestGuardedDoesNotCacheErrors(t *testing.T) {
	f := &fakeSearcher{err: ErrUpstreamRateLimited}
	g := NewGuarded(f, 0, 0, 8, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := g.Search(context.Background(), testQuery()); !errors.Is(err, ErrUpstreamRateLimited) {
			t.Fatalf("expected passthrough error, got %v", err)
		}
	}
	if n := f.calls.Load(); n != 2 {
		t.Fatalf("errors should not be cached, calls=%d", n)
	}
}

func TestGuardedLimiterRespectsContext(t *testing.T) {
	f := &fakeSearcher{}
	g := NewGuarded(f, 0.001, 1, 0, 0)

	if _, err := g.Search(context.Background(), testQuery()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := g.Search(ctx, testQuery())
	if !errors.Is(err, ErrUpstreamTimeout) {
		t.Fatalf("expected ErrUpstreamTimeout while throttled, got %v", err)
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("throttled call must not reach upstream, calls=%d", n)
	}
}

func TestOutcome(t *testing.T) {
	tests := map[string]error{
		"ok":           nil,
		"auth":         fmt.Errorf("x: %w", ErrUpstreamAuth),
		"rate_limited": ErrUpstreamRateLimited,
		"timeout":      ErrUpstreamTimeout,
		"unavailable":  ErrUpstreamUnavailable,
		"status":       &UpstreamStatusError{StatusCode: 500},
		"error":        errors.New("boom"),
	}
	for want, err := range tests {
		if got := outcome(err); got != want {
			t.Errorf("outcome(%v) = %q, want %q", err, got, want)
		}
	}
}

func TestNewFromConfig(t *testing.T) {
	s, err := New(config.SearchConfig{Provider: config.SearchRSS, RSSRegion: "MX"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Name() != RSSName {
		t.Errorf("Name: got %q", s.Name())
	}
	g := s.(*Guarded)
	if g.next.(*RSS).region != "MX" {
		t.Errorf("region not applied")
	}

	s, err = New(config.SearchConfig{Provider: config.SearchNewsAPI, NewsAPIKey: "k", NewsAPIURL: "http://localhost:1/"})
	if err != nil {
		t.Fatal(err)
	}
	if n := s.(*Guarded).next.(*NewsAPI); n.baseURL != "http://localhost:1" || n.apiKey != "k" {
		t.Errorf("newsapi not configured: %+v", n)
	}

	if _, err := New(config.SearchConfig{Provider: "bing"}); err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("expected unknown provider error, got %v", err)
	}
}
