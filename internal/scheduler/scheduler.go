// Package scheduler runs ingestion for a configured keyword watchlist on a
// cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/ingest"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// EventScheduledIngest is published once per keyword per run.
const EventScheduledIngest = "scheduled_ingest"

// Ingester is the coordinator entry point the scheduler drives.
type Ingester interface {
	Ingest(ctx context.Context, params models.IngestParams) (*models.IngestResult, error)
}

// Scheduler triggers watchlist ingestion on a cron expression.
type Scheduler struct {
	cron     *cron.Cron
	ingester Ingester
	notifier ingest.Notifier
	log      *slog.Logger
	location *time.Location
	spec     string
	keywords []string
	days     int
	max      int
	useLLM   bool
	timeout  time.Duration

	mu      sync.Mutex
	entryID cron.EntryID
	started bool
}

// New creates a scheduler from cfg. Keywords are trimmed and blanks dropped.
func New(cfg config.SchedulerConfig, ingester Ingester, notifier ingest.Notifier, log *slog.Logger) (*Scheduler, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler: load timezone %q: %w", tz, err)
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("scheduler: invalid spec %q: %w", cfg.Spec, err)
	}

	var keywords []string
	for _, k := range cfg.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}

	if log == nil {
		log = slog.Default()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	days, maxResults := cfg.Days, cfg.MaxResults
	if days <= 0 {
		days = 1
	}
	if maxResults <= 0 {
		maxResults = 20
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ingester: ingester,
		notifier: notifier,
		log:      log.With("component", "scheduler"),
		location: loc,
		spec:     cfg.Spec,
		keywords: keywords,
		days:     days,
		max:      maxResults,
		useLLM:   cfg.UseLLM,
		timeout:  10 * time.Minute,
	}, nil
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, any) {}

// Keywords returns the watchlist.
func (s *Scheduler) Keywords() []string { return s.keywords }

// Start registers the job and starts the cron runner.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	id, err := s.cron.AddFunc(s.spec, func() { s.RunOnce(context.Background()) })
	if err != nil {
		return fmt.Errorf("scheduler: add job: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	s.started = true

	s.log.Info("scheduler started",
		"spec", s.spec,
		"timezone", s.location.String(),
		"keywords", len(s.keywords),
		"next_run", s.cron.Entry(id).Next,
	)
	return nil
}

// Stop halts the runner and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	<-s.cron.Stop().Done()
	s.cron.Remove(s.entryID)
	s.started = false
}

// RunOnce ingests every watchlist keyword in order. A failing keyword is
// logged and reported; the rest still run.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, keyword := range s.keywords {
		if ctx.Err() != nil {
			return
		}
		s.runKeyword(ctx, keyword)
	}
}

func (s *Scheduler) runKeyword(ctx context.Context, keyword string) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.ingester.Ingest(ctx, models.IngestParams{
		Keyword:    keyword,
		Days:       s.days,
		MaxResults: s.max,
		UseLLM:     s.useLLM,
	})

	event := map[string]any{"keyword": keyword}
	if err != nil {
		s.log.Warn("scheduled ingest failed", "keyword", keyword, "error", err)
		event["error"] = err.Error()
	} else {
		s.log.Info("scheduled ingest complete",
			"keyword", keyword,
			"total", res.Total,
			"newly_saved", res.NewlySaved,
			"duration", time.Since(start).Round(time.Millisecond),
		)
		event["total"] = res.Total
		event["newly_saved"] = res.NewlySaved
		event["mean_score"] = res.MeanScore
	}
	s.notifier.Publish(EventScheduledIngest, event)
}
