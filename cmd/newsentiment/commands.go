package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seenimoa/newsentiment/api"
	"github.com/seenimoa/newsentiment/internal/scheduler"
	"github.com/seenimoa/newsentiment/internal/store"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// --- Serve Command (API Server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, logger, appOptions{background: true, events: true})
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Scheduler.Enabled {
			sched, err := scheduler.New(cfg.Scheduler, a.coordinator, a.hub, logger)
			if err != nil {
				return err
			}
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()
		}

		srv := api.NewServer(api.Deps{
			Config:     cfg,
			Ingester:   a.coordinator,
			Reanalyzer: a.reanalyzer,
			Query:      a.query,
			Store:      a.store,
			Hub:        a.hub,
			Logger:     logger,
		})
		return srv.ListenAndServe(ctx, cfg.Addr())
	},
}

// --- Ingest Command ---

var ingestCmd = &cobra.Command{
	Use:   "ingest [keyword]",
	Short: "Search, score and store news for a keyword",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		maxResults, _ := cmd.Flags().GetInt("max")
		useLLM, _ := cmd.Flags().GetBool("llm")

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, logger, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.coordinator.Ingest(ctx, models.IngestParams{
			Keyword:    args[0],
			Days:       days,
			MaxResults: maxResults,
			UseLLM:     useLLM,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%q: %d article(s), %d new, scorer %s, mean %.3f\n",
			res.Params.Keyword, res.Total, res.NewlySaved, res.Params.Scorer, res.MeanScore)
		fmt.Printf("  positive %d  neutral %d  negative %d\n\n",
			res.Stats.Positive, res.Stats.Neutral, res.Stats.Negative)
		printArticles(res.Articles)
		return nil
	},
}

func init() {
	ingestCmd.Flags().Int("days", 7, "look back this many days (1-30)")
	ingestCmd.Flags().Int("max", 10, "maximum articles to score")
	ingestCmd.Flags().Bool("llm", false, "score with the LLM agent pipeline")
}

// --- Recent Command ---

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recently published stored articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		keyword, _ := cmd.Flags().GetString("keyword")
		daysBack, _ := cmd.Flags().GetInt("days-back")

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, logger, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		var articles []models.Article
		if keyword != "" {
			articles, err = a.query.ByKeyword(ctx, keyword, limit, daysBack)
		} else {
			articles, err = a.query.Recent(ctx, limit)
		}
		if err != nil {
			return err
		}
		printArticles(articles)
		return nil
	},
}

func init() {
	recentCmd.Flags().Int("limit", 10, "number of articles")
	recentCmd.Flags().String("keyword", "", "only articles ingested for this keyword")
	recentCmd.Flags().Int("days-back", 7, "window for --keyword")
}

// --- Stats Command ---

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize stored sentiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		keyword, _ := cmd.Flags().GetString("keyword")
		daysBack, _ := cmd.Flags().GetInt("days-back")

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, logger, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		var kw *string
		if keyword != "" {
			kw = &keyword
		}
		stats, err := a.query.Stats(ctx, kw, daysBack)
		if err != nil {
			return err
		}

		scope := "all keywords"
		if stats.Keyword != nil {
			scope = fmt.Sprintf("%q", *stats.Keyword)
		}
		fmt.Printf("Sentiment for %s, last %d day(s): %d article(s), overall %.2f\n",
			scope, stats.DaysBack, stats.Total, stats.OverallAvgScore)
		for _, label := range models.Labels {
			s := stats.PerLabel[label]
			fmt.Printf("  %-9s %5d  avg %.2f\n", label, s.Count, s.AvgScore)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().String("keyword", "", "restrict to one keyword")
	statsCmd.Flags().Int("days-back", 7, "window in days")
}

// --- Reanalyze Command ---

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze [keyword]",
	Short: "Re-score stored articles with the LLM agent pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		ctx, stop := signalContext()
		defer stop()

		a, err := newApp(ctx, cfg, logger, appOptions{})
		if err != nil {
			return err
		}
		defer a.Close()

		status, err := a.reanalyzer.Trigger(ctx, args[0], limit)
		if err != nil {
			return err
		}
		fmt.Println(status.Message)
		if status.Status != models.AnalysisProcessing {
			return nil
		}

		start := time.Now()
		a.reanalyzer.Wait()
		fmt.Printf("job %s finished in %s\n", status.JobID, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	reanalyzeCmd.Flags().Int("limit", 10, "number of stored articles to re-score (1-50)")
}

// --- Migrate Command ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply store schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext()
		defer stop()

		st, err := store.Open(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return err
		}
		n, err := st.Count(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s store up to date, %d article(s)\n", st.Driver(), n)
		return nil
	},
}

func printArticles(articles []models.Article) {
	if len(articles) == 0 {
		fmt.Println("no articles")
		return
	}
	for _, a := range articles {
		fmt.Printf("[%-8s %.2f] %s  %s\n", a.SentimentLabel, a.SentimentScore,
			a.PublishedAt.Format("2006-01-02"), utils.Truncate(a.Title, 90))
		fmt.Printf("    %s (%s)\n", a.URL, a.SourceName)
	}
}
