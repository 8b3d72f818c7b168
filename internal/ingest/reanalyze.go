package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seenimoa/newsentiment/internal/metrics"
	"github.com/seenimoa/newsentiment/internal/sentiment"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// ReanalysisStore is the part of the store reanalysis reads and rewrites.
type ReanalysisStore interface {
	ByKeyword(ctx context.Context, keyword string, limit, daysBack int) ([]models.Article, error)
	UpdateSentiment(ctx context.Context, articles []models.Article) (int, error)
}

// ReanalyzerConfig configures the reanalyzer. Scorer is the agent pipeline
// and may be nil when no LLM is configured.
type ReanalyzerConfig struct {
	Scorer   sentiment.Scorer
	DaysBack int
	Timeout  time.Duration
	Notifier Notifier
	Logger   *slog.Logger
}

// Reanalyzer re-scores stored articles with the agent pipeline in the
// background and overwrites their sentiment in place.
type Reanalyzer struct {
	store    ReanalysisStore
	scorer   sentiment.Scorer
	daysBack int
	timeout  time.Duration
	notifier Notifier
	log      *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReanalyzer creates a reanalyzer.
func NewReanalyzer(store ReanalysisStore, cfg ReanalyzerConfig) *Reanalyzer {
	if cfg.DaysBack <= 0 {
		cfg.DaysBack = 7
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reanalyzer{
		store:    store,
		scorer:   cfg.Scorer,
		daysBack: cfg.DaysBack,
		timeout:  cfg.Timeout,
		notifier: cfg.Notifier,
		log:      cfg.Logger.With("component", "reanalyzer"),
		baseCtx:  ctx,
		cancel:   cancel,
	}
}

// Trigger loads the stored articles for keyword and, if there are any,
// starts a background job re-scoring them.
func (r *Reanalyzer) Trigger(ctx context.Context, keyword string, limit int) (*models.AnalysisStatus, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, invalid("keyword", "must not be empty")
	}
	if limit < 1 || limit > MaxReanalyze {
		return nil, invalid("limit", "must be between 1 and %d, got %d", MaxReanalyze, limit)
	}
	if r.scorer == nil {
		return nil, ErrLLMUnavailable
	}

	articles, err := r.store.ByKeyword(ctx, keyword, limit, r.daysBack)
	if err != nil {
		return nil, fmt.Errorf("ingest: load %q for reanalysis: %w", keyword, err)
	}
	if len(articles) == 0 {
		return &models.AnalysisStatus{
			Status:  models.AnalysisNoNews,
			Message: fmt.Sprintf("No se encontraron noticias para '%s'", keyword),
		}, nil
	}

	jobID := uuid.NewString()
	r.wg.Add(1)
	go r.run(jobID, keyword, articles)

	return &models.AnalysisStatus{
		Status:  models.AnalysisProcessing,
		Message: fmt.Sprintf("Iniciando reanálisis de %d noticias para '%s'", len(articles), keyword),
		JobID:   jobID,
	}, nil
}

func (r *Reanalyzer) run(jobID, keyword string, articles []models.Article) {
	defer r.wg.Done()

	ctx, cancel := context.WithTimeout(r.baseCtx, r.timeout)
	defer cancel()

	log := r.log.With("job_id", jobID, "keyword", keyword)
	start := time.Now()

	scored := r.scorer.Score(ctx, articles)

	// Fallback verdicts never overwrite stored sentiment.
	judged := make([]models.Article, 0, len(scored))
	for _, a := range scored {
		if a.ScoringFailed {
			continue
		}
		metrics.RecordScored(r.scorer.Name(), string(a.SentimentLabel))
		judged = append(judged, a)
	}
	skipped := len(scored) - len(judged)

	var (
		updated int
		err     error
	)
	if len(judged) > 0 {
		updated, err = r.store.UpdateSentiment(ctx, judged)
	}

	counts, mean := summarize(judged)
	event := map[string]any{
		"job_id":     jobID,
		"keyword":    keyword,
		"processed":  len(scored),
		"updated":    updated,
		"skipped":    skipped,
		"stats":      counts,
		"mean_score": mean,
	}
	if err != nil {
		log.Error("reanalysis update failed", "error", err)
		event["error"] = err.Error()
	} else {
		log.Info("reanalysis complete",
			"processed", len(scored),
			"updated", updated,
			"skipped", skipped,
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}
	r.notifier.Publish(EventReanalysisComplete, event)
}

// Close cancels running jobs and waits for them to finish.
func (r *Reanalyzer) Close() {
	r.cancel()
	r.wg.Wait()
}

// Wait blocks until every started job has finished.
func (r *Reanalyzer) Wait() {
	r.wg.Wait()
}
