package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/metrics"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// Guarded wraps a Searcher with a token-bucket limiter and a short-lived
// response cache, so bursts of identical dashboard requests reach the
// provider once.
type Guarded struct {
	next    Searcher
	limiter *rate.Limiter
	cache   *expirable.LRU[string, []models.RawArticle]
}

// NewGuarded wraps next. A non-positive limit disables limiting; a
// non-positive size or ttl disables caching.
func NewGuarded(next Searcher, limit float64, burst, cacheSize int, ttl time.Duration) *Guarded {
	g := &Guarded{next: next}
	if limit > 0 {
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(limit), burst)
	}
	if cacheSize > 0 && ttl > 0 {
		g.cache = expirable.NewLRU[string, []models.RawArticle](cacheSize, nil, ttl)
	}
	return g
}

func (g *Guarded) Name() string { return g.next.Name() }

// Search serves from cache when possible, otherwise waits for a token and
// calls the wrapped provider. Only successful results are cached.
func (g *Guarded) Search(ctx context.Context, q SearchQuery) ([]models.RawArticle, error) {
	key := q.cacheKey(g.next.Name())
	if g.cache != nil {
		if hit, ok := g.cache.Get(key); ok {
			metrics.RecordSearch(g.next.Name(), "cached")
			return cloneRaw(hit), nil
		}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			metrics.RecordSearch(g.next.Name(), "throttled")
			return nil, fmt.Errorf("%s: %w: waiting for rate limiter: %v", g.next.Name(), ErrUpstreamTimeout, err)
		}
	}

	res, err := g.next.Search(ctx, q)
	metrics.RecordSearch(g.next.Name(), outcome(err))
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.Add(key, cloneRaw(res))
	}
	return res, nil
}

func outcome(err error) string {
	var statusErr *UpstreamStatusError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUpstreamAuth):
		return "auth"
	case errors.Is(err, ErrUpstreamRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUpstreamTimeout):
		return "timeout"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	case errors.As(err, &statusErr):
		return "status"
	default:
		return "error"
	}
}

func cloneRaw(in []models.RawArticle) []models.RawArticle {
	out := make([]models.RawArticle, len(in))
	copy(out, in)
	return out
}

// New builds the configured provider wrapped in a Guarded searcher.
func New(cfg config.SearchConfig) (Searcher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var s Searcher
	switch cfg.Provider {
	case config.SearchNewsAPI, "":
		opts := []NewsAPIOption{WithNewsAPIHTTPClient(newHTTPClient(timeout))}
		if cfg.NewsAPIURL != "" {
			opts = append(opts, WithNewsAPIBaseURL(cfg.NewsAPIURL))
		}
		s = NewNewsAPI(cfg.NewsAPIKey, opts...)
	case config.SearchRSS:
		opts := []RSSOption{WithRSSHTTPClient(newHTTPClient(timeout))}
		if cfg.RSSURL != "" {
			opts = append(opts, WithRSSBaseURL(cfg.RSSURL))
		}
		if cfg.RSSRegion != "" {
			opts = append(opts, WithRSSRegion(cfg.RSSRegion))
		}
		s = NewRSS(opts...)
	default:
		return nil, fmt.Errorf("datasource: unknown provider %q", cfg.Provider)
	}

	return NewGuarded(s, cfg.RateLimit, cfg.RateBurst, cfg.CacheSize, cfg.CacheTTL), nil
}
