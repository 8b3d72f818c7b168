package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/metrics"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// pgxIface is the subset of *pgxpool.Pool the store uses. pgxmock pools
// satisfy it in tests.
type pgxIface interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

const pgColumns = `id, published_at, COALESCE(source_name, ''), COALESCE(author, ''), url, title,
	COALESCE(description, ''), COALESCE(content, ''), query_keyword, sentiment_label,
	sentiment_score::float8, COALESCE(language, ''), created_at`

const pgInsert = `INSERT INTO articles (
	published_at, source_name, author, url, title, description, content,
	query_keyword, sentiment_label, sentiment_score, language
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (url) DO NOTHING`

// Postgres is the production store backed by a pgx connection pool.
type Postgres struct {
	pool pgxIface
	log  *slog.Logger
}

// NewPostgres connects to cfg.URL, retrying with a linear backoff while the
// server is not yet accepting connections.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*Postgres, error) {
	if log == nil {
		log = slog.Default()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("store: parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}

	retries := max(cfg.ConnectRetries, 1)
	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			break
		}
		if attempt >= retries {
			pool.Close()
			return nil, unavailable("connect", err)
		}
		delay := time.Duration(attempt) * time.Second
		log.Warn("database not ready, retrying", "attempt", attempt, "retry_in", delay, "error", err)
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	log.Info("connected to postgres", "max_conns", poolCfg.MaxConns)
	return &Postgres{pool: pool, log: log}, nil
}

// newPostgresWithPool wraps an existing pool. Used by tests.
func newPostgresWithPool(pool pgxIface, log *slog.Logger) *Postgres {
	if log == nil {
		log = slog.Default()
	}
	return &Postgres{pool: pool, log: log}
}

func (p *Postgres) Driver() string { return config.DriverPostgres }

// Save inserts each article in its own transaction. A failure on one article
// is logged and skipped; the rest of the batch still commits. If no
// transaction can be opened the batch stops with ErrUnavailable.
func (p *Postgres) Save(ctx context.Context, articles []models.Article) (int, error) {
	inserted := 0
	for _, a := range articles {
		ok, err := p.saveOne(ctx, prepare(a))
		switch {
		case errors.Is(err, ErrUnavailable):
			metrics.RecordStoreWrite(config.DriverPostgres, "error")
			return inserted, err
		case err != nil:
			metrics.RecordStoreWrite(config.DriverPostgres, "error")
			p.log.Warn("article insert failed", "url", a.URL, "error", err)
			if ctx.Err() != nil {
				return inserted, ctx.Err()
			}
		case ok:
			inserted++
			metrics.RecordStoreWrite(config.DriverPostgres, "inserted")
		default:
			metrics.RecordStoreWrite(config.DriverPostgres, "duplicate")
		}
	}
	return inserted, nil
}

func (p *Postgres) saveOne(ctx context.Context, a models.Article) (bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, unavailable("save", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, pgInsert,
		a.PublishedAt, a.SourceName, a.Author, a.URL, a.Title, a.Description, a.Content,
		a.QueryKeyword, string(a.SentimentLabel), a.SentimentScore, a.Language,
	)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]models.Article, error) {
	return p.query(ctx, "recent",
		`SELECT `+pgColumns+` FROM articles ORDER BY published_at DESC, id DESC LIMIT $1`, limit)
}

func (p *Postgres) ByKeyword(ctx context.Context, keyword string, limit, daysBack int) ([]models.Article, error) {
	since := utils.Since(time.Now(), daysBack)
	return p.query(ctx, "by keyword",
		`SELECT `+pgColumns+` FROM articles
		WHERE query_keyword = $1 AND published_at >= $2
		ORDER BY published_at DESC, id DESC LIMIT $3`, keyword, since, limit)
}

func (p *Postgres) SearchText(ctx context.Context, query string, label *models.SentimentLabel, limit int) ([]models.Article, error) {
	pattern := likePattern(query)
	if label != nil {
		return p.query(ctx, "search",
			`SELECT `+pgColumns+` FROM articles
			WHERE (title ILIKE $1 OR description ILIKE $1) AND sentiment_label = $2
			ORDER BY published_at DESC, id DESC LIMIT $3`, pattern, string(*label), limit)
	}
	return p.query(ctx, "search",
		`SELECT `+pgColumns+` FROM articles
		WHERE title ILIKE $1 OR description ILIKE $1
		ORDER BY published_at DESC, id DESC LIMIT $2`, pattern, limit)
}

func (p *Postgres) LabelStats(ctx context.Context, keyword *string, since time.Time) ([]models.LabelAggregate, error) {
	sql := `SELECT sentiment_label, COUNT(*), AVG(sentiment_score)::float8
		FROM articles WHERE published_at >= $1`
	args := []any{since.UTC()}
	if keyword != nil {
		sql += ` AND query_keyword = $2`
		args = append(args, *keyword)
	}
	sql += ` GROUP BY sentiment_label`

	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable("label stats", err)
	}
	defer rows.Close()

	var out []models.LabelAggregate
	for rows.Next() {
		var (
			agg   models.LabelAggregate
			label string
		)
		if err := rows.Scan(&label, &agg.Count, &agg.AvgScore); err != nil {
			return nil, fmt.Errorf("store: scan label stats: %w", err)
		}
		agg.Label = models.SentimentLabel(label)
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("label stats", err)
	}
	return out, nil
}

// UpdateSentiment rewrites label and score by URL in one transaction.
func (p *Postgres) UpdateSentiment(ctx context.Context, articles []models.Article) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, unavailable("update sentiment", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	updated := 0
	for _, a := range articles {
		a = prepare(a)
		tag, err := tx.Exec(ctx,
			`UPDATE articles SET sentiment_label = $1, sentiment_score = $2 WHERE url = $3`,
			string(a.SentimentLabel), a.SentimentScore, a.URL)
		if err != nil {
			metrics.RecordStoreWrite(config.DriverPostgres, "error")
			return 0, fmt.Errorf("store: update %s: %w", a.URL, err)
		}
		updated += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: commit update: %w", err)
	}
	for range updated {
		metrics.RecordStoreWrite(config.DriverPostgres, "updated")
	}
	return updated, nil
}

func (p *Postgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Migrate applies the embedded migrations not yet recorded in
// schema_migrations, each in its own transaction.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return unavailable("migrate", err)
	}

	migrations, err := loadMigrations(config.DriverPostgres)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		var applied bool
		err := p.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version).Scan(&applied)
		if err != nil {
			return unavailable("migrate", err)
		}
		if applied {
			continue
		}
		if err := p.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("store: migration %s: %w", m.version, err)
		}
		p.log.Info("applied migration", "driver", config.DriverPostgres, "version", m.version)
	}
	return nil
}

func (p *Postgres) applyMigration(ctx context.Context, m migration) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range m.statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) query(ctx context.Context, op, sql string, args ...any) ([]models.Article, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var out []models.Article
	for rows.Next() {
		var (
			a     models.Article
			label string
		)
		if err := rows.Scan(&a.ID, &a.PublishedAt, &a.SourceName, &a.Author, &a.URL, &a.Title,
			&a.Description, &a.Content, &a.QueryKeyword, &label,
			&a.SentimentScore, &a.Language, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan article: %w", err)
		}
		a.SentimentLabel = models.SentimentLabel(label)
		a.PublishedAt = a.PublishedAt.UTC()
		a.CreatedAt = a.CreatedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, unavailable(op, err)
	}
	return out, nil
}
