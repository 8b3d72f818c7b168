package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/seenimoa/newsentiment/internal/metrics"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// PersisterConfig configures the background persister.
type PersisterConfig struct {
	QueueSize int
	Timeout   time.Duration // per-batch save timeout
	Notifier  Notifier
	Logger    *slog.Logger
}

type saveJob struct {
	ctx      context.Context
	keyword  string
	articles []models.Article
	queued   time.Time
}

// Persister saves scored batches off the request path. One worker drains a
// bounded queue; when the queue is full the batch is saved inline instead
// of being dropped.
type Persister struct {
	store    Saver
	queue    chan saveJob
	timeout  time.Duration
	notifier Notifier
	log      *slog.Logger

	mu      sync.RWMutex
	closed  bool
	started sync.Once
	wg      sync.WaitGroup
}

// NewPersister creates a persister. Call Start to launch its worker.
func NewPersister(store Saver, cfg PersisterConfig) *Persister {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Persister{
		store:    store,
		queue:    make(chan saveJob, cfg.QueueSize),
		timeout:  cfg.Timeout,
		notifier: cfg.Notifier,
		log:      cfg.Logger.With("component", "persister"),
	}
}

// Start launches the worker goroutine. Calling it more than once is a no-op.
func (p *Persister) Start() {
	p.started.Do(func() {
		p.wg.Add(1)
		go p.run()
	})
}

// Submit queues a batch and returns 0. If the queue is full or the
// persister is closed, the batch is saved before returning and the number
// of new rows is returned instead.
func (p *Persister) Submit(ctx context.Context, keyword string, articles []models.Article) int {
	job := saveJob{
		ctx:      context.WithoutCancel(ctx),
		keyword:  keyword,
		articles: articles,
		queued:   time.Now(),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.closed {
		select {
		case p.queue <- job:
			metrics.PersistQueueDepth.Inc()
			return 0
		default:
		}
	}

	metrics.PersistOverflow.Inc()
	p.log.Warn("persist queue unavailable, saving inline", "keyword", keyword, "articles", len(articles))
	return p.save(job)
}

// Close stops accepting batches, drains the queue and waits for the worker.
func (p *Persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	// A persister that was never started still drains what it holds.
	p.Start()
	p.wg.Wait()
}

func (p *Persister) run() {
	defer p.wg.Done()
	for job := range p.queue {
		metrics.PersistQueueDepth.Dec()
		p.save(job)
	}
}

func (p *Persister) save(job saveJob) int {
	ctx, cancel := context.WithTimeout(job.ctx, p.timeout)
	defer cancel()

	start := time.Now()
	inserted, err := p.store.Save(ctx, job.articles)
	if err != nil {
		p.log.Error("background save failed",
			"keyword", job.keyword,
			"articles", len(job.articles),
			"error", err,
		)
	} else {
		p.log.Info("background save complete",
			"keyword", job.keyword,
			"articles", len(job.articles),
			"inserted", inserted,
			"duplicates", len(job.articles)-inserted,
			"queued_for", start.Sub(job.queued).Round(time.Millisecond),
			"duration", time.Since(start).Round(time.Millisecond),
		)
	}

	event := map[string]any{
		"keyword":    job.keyword,
		"submitted":  len(job.articles),
		"inserted":   inserted,
		"duplicates": len(job.articles) - inserted,
	}
	if err != nil {
		event["error"] = err.Error()
	}
	p.notifier.Publish(EventPersistComplete, event)
	return inserted
}
