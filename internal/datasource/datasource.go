// Package datasource fetches news search results from external providers.
// It defines a common Searcher interface, the upstream error taxonomy, and
// concrete clients for NewsAPI and Google News RSS.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/seenimoa/newsentiment/pkg/models"
)

// Searcher defines the interface every news search provider implements.
type Searcher interface {
	// Name returns the provider identifier (e.g., "newsapi").
	Name() string

	// Search returns raw results for the query, most relevant first.
	Search(ctx context.Context, q SearchQuery) ([]models.RawArticle, error)
}

// SearchQuery describes one keyword search over a time window.
type SearchQuery struct {
	Keyword  string
	From     time.Time
	To       time.Time
	Language string
	SortBy   string
	PageSize int
}

// cacheKey identifies a query by the span of its window rather than its
// endpoints, which move with the clock. Staleness is bounded by the cache TTL.
func (q SearchQuery) cacheKey(provider string) string {
	span := q.To.Sub(q.From).Round(time.Hour)
	return fmt.Sprintf("%s|%s|%s|%s|%s|%d",
		provider, strings.ToLower(strings.TrimSpace(q.Keyword)), span, q.Language, q.SortBy, q.PageSize)
}

// --- Sentinel errors ---

var (
	// ErrUpstreamUnavailable is returned when the provider cannot be reached.
	ErrUpstreamUnavailable = errors.New("news search unavailable")

	// ErrUpstreamTimeout is a kind of ErrUpstreamUnavailable: the provider
	// did not answer in time.
	ErrUpstreamTimeout = fmt.Errorf("%w: timed out", ErrUpstreamUnavailable)

	// ErrUpstreamAuth is returned when the provider rejects the API key.
	ErrUpstreamAuth = errors.New("news search rejected credentials")

	// ErrUpstreamRateLimited is returned when the provider throttles us.
	ErrUpstreamRateLimited = errors.New("news search rate limited")
)

// UpstreamStatusError is any other non-success answer from the provider.
type UpstreamStatusError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *UpstreamStatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: HTTP %d %s: %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// --- Shared HTTP helpers ---

// DefaultUserAgent is the user agent string used for HTTP requests.
const DefaultUserAgent = "newsentiment/2.0 (+https://github.com/seenimoa/newsentiment)"

// DefaultTimeout bounds one search request.
const DefaultTimeout = 10 * time.Second

// transportError classifies a failed round trip as timeout or unavailable.
func transportError(provider string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		return fmt.Errorf("%s: %w: %v", provider, ErrUpstreamTimeout, err)
	default:
		return fmt.Errorf("%s: %w: %v", provider, ErrUpstreamUnavailable, err)
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
