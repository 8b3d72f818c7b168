// Package ingest runs the fetch → normalize → score → persist flow and the
// background workers around it: the batch persister and the reanalyzer.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/seenimoa/newsentiment/internal/datasource"
	"github.com/seenimoa/newsentiment/internal/metrics"
	"github.com/seenimoa/newsentiment/internal/normalizer"
	"github.com/seenimoa/newsentiment/internal/sentiment"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// ErrLLMUnavailable is returned when LLM scoring is requested but no LLM
// provider is configured.
var ErrLLMUnavailable = errors.New("ingest: LLM scoring not configured")

// ValidationError reports a request parameter outside its bounds.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Parameter bounds.
const (
	MaxDays           = 30
	MaxResultsLLM     = 20
	MaxResultsLexical = 100
	MaxReanalyze      = 50
)

// Event types published to the Notifier.
const (
	EventIngestComplete     = "ingest_complete"
	EventPersistComplete    = "persist_complete"
	EventReanalysisComplete = "reanalysis_complete"
)

// Notifier receives completion events. The API's WebSocket hub implements it.
type Notifier interface {
	Publish(eventType string, data any)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, any) {}

// Saver is the part of the store the persistence path needs.
type Saver interface {
	Save(ctx context.Context, articles []models.Article) (int, error)
}

// ── Coordinator ──

// CoordinatorConfig wires the coordinator's collaborators. LLM may be nil
// when no provider is configured; Persister may be nil for synchronous saves.
type CoordinatorConfig struct {
	Searcher  datasource.Searcher
	Lexical   sentiment.Scorer
	LLM       sentiment.Scorer
	Store     Saver
	Persister *Persister
	Notifier  Notifier
	Logger    *slog.Logger
	Language  string
	SortBy    string
}

// Coordinator executes one ingestion request end to end.
type Coordinator struct {
	searcher   datasource.Searcher
	normalizer *normalizer.Normalizer
	lexical    sentiment.Scorer
	llm        sentiment.Scorer
	store      Saver
	persister  *Persister
	notifier   Notifier
	log        *slog.Logger
	language   string
	sortBy     string
	now        func() time.Time
}

// NewCoordinator creates a coordinator. A nil lexical scorer defaults to the
// built-in word lists.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Lexical == nil {
		cfg.Lexical = sentiment.NewLexicalScorer()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Language == "" {
		cfg.Language = models.DefaultLanguage
	}
	if cfg.SortBy == "" {
		cfg.SortBy = "popularity"
	}
	return &Coordinator{
		searcher:   cfg.Searcher,
		normalizer: normalizer.New(cfg.Language),
		lexical:    cfg.Lexical,
		llm:        cfg.LLM,
		store:      cfg.Store,
		persister:  cfg.Persister,
		notifier:   cfg.Notifier,
		log:        cfg.Logger.With("component", "ingest"),
		language:   cfg.Language,
		sortBy:     cfg.SortBy,
		now:        time.Now,
	}
}

// Validate checks params against the request bounds and returns the
// trimmed keyword.
func (c *Coordinator) Validate(p models.IngestParams) (models.IngestParams, error) {
	p.Keyword = strings.TrimSpace(p.Keyword)
	if p.Keyword == "" {
		return p, invalid("keyword", "must not be empty")
	}
	if n := utf8.RuneCountInString(p.Keyword); n > models.MaxKeywordLen {
		return p, invalid("keyword", "must be at most %d characters, got %d", models.MaxKeywordLen, n)
	}
	if p.Days < 1 || p.Days > MaxDays {
		return p, invalid("days", "must be between 1 and %d, got %d", MaxDays, p.Days)
	}
	maxResults := MaxResultsLexical
	if p.UseLLM {
		maxResults = MaxResultsLLM
	}
	if p.MaxResults < 1 || p.MaxResults > maxResults {
		return p, invalid("max_results", "must be between 1 and %d, got %d", maxResults, p.MaxResults)
	}
	if p.UseLLM && c.llm == nil {
		return p, ErrLLMUnavailable
	}
	return p, nil
}

// Ingest fetches, scores and persists news for one keyword.
func (c *Coordinator) Ingest(ctx context.Context, params models.IngestParams) (*models.IngestResult, error) {
	params, err := c.Validate(params)
	if err != nil {
		return nil, err
	}

	scorer := c.lexical
	if params.UseLLM {
		scorer = c.llm
	}

	from, to := utils.LookbackWindow(c.now(), params.Days)
	raws, err := c.searcher.Search(ctx, datasource.SearchQuery{
		Keyword:  params.Keyword,
		From:     from,
		To:       to,
		Language: c.language,
		SortBy:   c.sortBy,
		PageSize: params.MaxResults,
	})
	if err != nil {
		metrics.RecordIngest(scorer.Name(), "search_error")
		return nil, fmt.Errorf("ingest: search %q: %w", params.Keyword, err)
	}

	articles, dropped := c.normalizer.NormalizeAll(raws, params.Keyword)
	if len(articles) > params.MaxResults {
		articles = articles[:params.MaxResults]
	}
	if dropped > 0 {
		c.log.Debug("dropped unusable search results", "keyword", params.Keyword, "dropped", dropped)
	}

	start := time.Now()
	scored := scorer.Score(ctx, articles)
	if scored == nil {
		scored = []models.Article{}
	}
	for _, a := range scored {
		metrics.RecordScored(scorer.Name(), string(a.SentimentLabel))
	}
	c.log.Info("articles scored",
		"keyword", params.Keyword,
		"scorer", scorer.Name(),
		"count", len(scored),
		"duration", time.Since(start).Round(time.Millisecond),
	)

	newlySaved := c.persist(ctx, params.Keyword, scored)

	counts, mean := summarize(scored)
	result := &models.IngestResult{
		Total:      len(scored),
		NewlySaved: newlySaved,
		Articles:   scored,
		Stats:      counts,
		MeanScore:  mean,
		Params: models.IngestEcho{
			IngestParams: params,
			From:         from,
			To:           to,
			Provider:     c.searcher.Name(),
			Scorer:       scorer.Name(),
		},
	}

	metrics.RecordIngest(scorer.Name(), "ok")
	c.notifier.Publish(EventIngestComplete, map[string]any{
		"keyword":     params.Keyword,
		"total":       result.Total,
		"newly_saved": result.NewlySaved,
		"stats":       result.Stats,
		"mean_score":  result.MeanScore,
		"scorer":      scorer.Name(),
	})
	return result, nil
}

// persist hands the batch to the background persister when there is one.
// Store failures are logged, never returned.
func (c *Coordinator) persist(ctx context.Context, keyword string, articles []models.Article) int {
	if len(articles) == 0 || c.store == nil {
		return 0
	}
	if c.persister != nil {
		return c.persister.Submit(ctx, keyword, articles)
	}
	n, err := c.store.Save(ctx, articles)
	if err != nil {
		c.log.Error("saving articles failed", "keyword", keyword, "error", err)
	}
	return n
}

// summarize counts labels and returns the mean score rounded to 3 decimals.
func summarize(articles []models.Article) (models.LabelCounts, float64) {
	var (
		counts models.LabelCounts
		sum    float64
	)
	for _, a := range articles {
		counts.Add(a.SentimentLabel)
		sum += a.SentimentScore
	}
	if len(articles) == 0 {
		return counts, 0
	}
	return counts, utils.Round(sum/float64(len(articles)), 3)
}
