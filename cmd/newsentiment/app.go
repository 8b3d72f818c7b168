package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seenimoa/newsentiment/api"
	"github.com/seenimoa/newsentiment/internal/agent"
	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/datasource"
	"github.com/seenimoa/newsentiment/internal/ingest"
	"github.com/seenimoa/newsentiment/internal/llm"
	"github.com/seenimoa/newsentiment/internal/query"
	"github.com/seenimoa/newsentiment/internal/sentiment"
	"github.com/seenimoa/newsentiment/internal/store"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg         *config.Config
	log         *slog.Logger
	store       store.Store
	hub         *api.WSHub
	persister   *ingest.Persister
	coordinator *ingest.Coordinator
	reanalyzer  *ingest.Reanalyzer
	query       *query.Service
}

// appOptions selects which optional parts are built.
type appOptions struct {
	background bool // queue saves on a worker instead of saving inline
	events     bool // publish events to a WebSocket hub
}

// newApp wires config → store → search → scorers → ingest → query.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, opts appOptions) (*app, error) {
	st, err := store.Open(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrate store: %w", err)
		}
	}

	searcher, err := datasource.New(cfg.Search)
	if err != nil {
		st.Close()
		return nil, err
	}

	lexical := sentiment.NewLexicalScorer()
	var pipeline sentiment.Scorer
	router, err := llm.NewRouterFromConfig(cfg.LLM, log)
	switch {
	case err == nil:
		pipeline = agent.NewPipelineScorer(router, lexical, agent.PipelineConfig{
			Concurrency:  cfg.LLM.Concurrency,
			StageTimeout: cfg.LLM.StageTimeout,
			ChatOptions: &llm.ChatOptions{
				Temperature: cfg.LLM.Temperature,
				MaxTokens:   cfg.LLM.MaxTokens,
			},
			Logger: log,
		})
		log.Info("llm pipeline ready", "providers", router.ProviderNames())
	case errors.Is(err, llm.ErrNoProviders):
		log.Warn("no llm provider configured, LLM scoring and reanalysis requests will be rejected")
	default:
		st.Close()
		return nil, fmt.Errorf("llm router: %w", err)
	}

	a := &app{cfg: cfg, log: log, store: st}

	var notifier ingest.Notifier
	if opts.events {
		a.hub = api.NewWSHub(log)
		notifier = a.hub
	}

	if opts.background && cfg.Ingest.BackgroundSave {
		a.persister = ingest.NewPersister(st, ingest.PersisterConfig{
			QueueSize: cfg.Ingest.QueueSize,
			Timeout:   cfg.Ingest.SaveTimeout,
			Notifier:  notifier,
			Logger:    log,
		})
		a.persister.Start()
	}

	a.coordinator = ingest.NewCoordinator(ingest.CoordinatorConfig{
		Searcher:  searcher,
		Lexical:   lexical,
		LLM:       pipeline,
		Store:     st,
		Persister: a.persister,
		Notifier:  notifier,
		Logger:    log,
		Language:  cfg.Search.Language,
		SortBy:    cfg.Search.SortBy,
	})
	a.reanalyzer = ingest.NewReanalyzer(st, ingest.ReanalyzerConfig{
		Scorer:   pipeline,
		DaysBack: cfg.Ingest.ReanalyzeDaysBack,
		Notifier: notifier,
		Logger:   log,
	})
	a.query = query.NewService(st)
	return a, nil
}

// Close stops background work, draining queued saves, then closes the store.
func (a *app) Close() {
	a.reanalyzer.Close()
	if a.persister != nil {
		a.persister.Close()
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("close store", "error", err)
	}
}
