// Package store persists scored articles. The articles table is keyed on
// URL: inserting a URL that already exists is a no-op, never an error.
package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/sentiment"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// ErrUnavailable is returned when the database cannot be reached.
var ErrUnavailable = errors.New("store unavailable")

// Store is the deduplicating article repository.
type Store interface {
	// Driver returns "postgres" or "sqlite".
	Driver() string

	// Save inserts each article in its own transaction and returns how many
	// were new. Duplicates and per-article failures are skipped.
	Save(ctx context.Context, articles []models.Article) (int, error)

	// Recent returns the newest articles by published_at.
	Recent(ctx context.Context, limit int) ([]models.Article, error)

	// ByKeyword returns articles stored for keyword published in the last
	// daysBack days, newest first.
	ByKeyword(ctx context.Context, keyword string, limit, daysBack int) ([]models.Article, error)

	// SearchText matches query case-insensitively against title and
	// description, optionally restricted to one label.
	SearchText(ctx context.Context, query string, label *models.SentimentLabel, limit int) ([]models.Article, error)

	// LabelStats groups articles published since the cutoff by label.
	LabelStats(ctx context.Context, keyword *string, since time.Time) ([]models.LabelAggregate, error)

	// UpdateSentiment overwrites label and score of stored rows matched by URL.
	UpdateSentiment(ctx context.Context, articles []models.Article) (int, error)

	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Open connects the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return NewPostgres(ctx, cfg, log)
	case config.DriverSQLite, "":
		return NewSQLite(cfg.Path, log)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// prepare applies the persistence invariants: clamped score, label in the
// enum, column limits and defaults.
func prepare(a models.Article) models.Article {
	a.SentimentScore = utils.Round(sentiment.ClampScore(a.SentimentScore), 4)
	a.SentimentLabel = sentiment.NormalizeLabel(a.SentimentLabel)
	a.SourceName = utils.Truncate(a.SourceName, models.MaxSourceLen)
	if strings.TrimSpace(a.Author) == "" {
		a.Author = models.UnspecifiedAuthor
	}
	a.Author = utils.Truncate(a.Author, models.MaxAuthorLen)
	a.QueryKeyword = utils.Truncate(a.QueryKeyword, models.MaxKeywordLen)
	if a.Language == "" {
		a.Language = models.DefaultLanguage
	}
	a.Language = utils.Truncate(a.Language, models.MaxLangLen)
	if a.PublishedAt.IsZero() {
		a.PublishedAt = time.Now()
	}
	a.PublishedAt = a.PublishedAt.UTC()
	return a
}

// likePattern escapes LIKE metacharacters so query matches literally.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(query) + "%"
}

func unavailable(op string, err error) error {
	return fmt.Errorf("store: %s: %w: %v", op, ErrUnavailable, err)
}

// --- Migrations ---

//go:embed migrations
var migrationFS embed.FS

type migration struct {
	version    string
	statements []string
}

// loadMigrations returns the driver's migrations ordered by file name.
func loadMigrations(driver string) ([]migration, error) {
	dir := "migrations/" + driver
	entries, err := fs.ReadDir(migrationFS, dir)
	if err != nil {
		return nil, fmt.Errorf("store: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		data, err := fs.ReadFile(migrationFS, dir+"/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("store: read %s: %w", e.Name(), err)
		}
		out = append(out, migration{
			version:    strings.TrimSuffix(e.Name(), ".sql"),
			statements: splitStatements(string(data)),
		})
	}
	return out, nil
}

func splitStatements(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			out = append(out, s)
		}
	}
	return out
}
