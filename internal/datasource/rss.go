package datasource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/seenimoa/newsentiment/pkg/models"
)

// RSSName identifies the Google News RSS provider.
const RSSName = "rss"

// GoogleNewsSearchURL is the Google News RSS search endpoint.
const GoogleNewsSearchURL = "https://news.google.com/rss/search"

// RSS searches Google News through its RSS search feed. It needs no key.
type RSS struct {
	baseURL string
	region  string
	client  *http.Client
	parser  *gofeed.Parser
}

// RSSOption configures the RSS searcher.
type RSSOption func(*RSS)

// WithRSSBaseURL sets a custom feed URL (tests, mirrors).
func WithRSSBaseURL(u string) RSSOption {
	return func(r *RSS) { r.baseURL = u }
}

// WithRSSRegion sets the Google News edition country (e.g., "US", "AR").
func WithRSSRegion(region string) RSSOption {
	return func(r *RSS) { r.region = strings.ToUpper(region) }
}

// WithRSSHTTPClient sets a custom HTTP client.
func WithRSSHTTPClient(c *http.Client) RSSOption {
	return func(r *RSS) { r.client = c }
}

// NewRSS creates a Google News RSS searcher.
func NewRSS(opts ...RSSOption) *RSS {
	r := &RSS{
		baseURL: GoogleNewsSearchURL,
		region:  "US",
		client:  &http.Client{Timeout: DefaultTimeout},
		parser:  gofeed.NewParser(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RSS) Name() string { return RSSName }

// Search fetches the feed for the query. The feed ignores sort order and
// page size, so items are filtered to the window and cut client-side.
func (r *RSS) Search(ctx context.Context, q SearchQuery) ([]models.RawArticle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.searchURL(q), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", RSSName, err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, transportError(RSSName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %w", RSSName, ErrUpstreamRateLimited)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return nil, fmt.Errorf("%s: %w: HTTP %d", RSSName, ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UpstreamStatusError{Provider: RSSName, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	feed, err := r.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: parse feed: %w", RSSName, err)
	}

	out := make([]models.RawArticle, 0, len(feed.Items))
	for _, item := range feed.Items {
		a := itemToRaw(item)
		if !inWindow(a.PublishedAt, q.From, q.To) {
			continue
		}
		out = append(out, a)
		if q.PageSize > 0 && len(out) >= q.PageSize {
			break
		}
	}
	return out, nil
}

// searchURL builds a Google News query; the window is expressed with the
// after:/before: search operators, which take whole days.
func (r *RSS) searchURL(q SearchQuery) string {
	terms := []string{q.Keyword}
	if !q.From.IsZero() {
		terms = append(terms, "after:"+q.From.UTC().Format(time.DateOnly))
	}
	if !q.To.IsZero() {
		terms = append(terms, "before:"+q.To.UTC().AddDate(0, 0, 1).Format(time.DateOnly))
	}

	lang := q.Language
	if lang == "" {
		lang = models.DefaultLanguage
	}

	params := url.Values{}
	params.Set("q", strings.Join(terms, " "))
	params.Set("hl", lang)
	params.Set("gl", r.region)
	params.Set("ceid", r.region+":"+lang)
	return r.baseURL + "?" + params.Encode()
}

// itemToRaw maps a feed item. Google News titles end in " - <Source>".
func itemToRaw(item *gofeed.Item) models.RawArticle {
	a := models.RawArticle{
		Title:       item.Title,
		URL:         item.Link,
		Description: item.Description,
		Content:     item.Content,
	}
	if item.PublishedParsed != nil {
		a.PublishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		a.PublishedAt = *item.UpdatedParsed
	}
	if item.Author != nil {
		a.Author = item.Author.Name
	}
	if i := strings.LastIndex(item.Title, " - "); i > 0 {
		a.Title = item.Title[:i]
		a.Source = strings.TrimSpace(item.Title[i+3:])
	}
	return a
}

func inWindow(t, from, to time.Time) bool {
	if t.IsZero() {
		return true
	}
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && t.After(to) {
		return false
	}
	return true
}
