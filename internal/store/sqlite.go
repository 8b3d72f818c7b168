package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"

	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/metrics"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// sqliteTimeLayout is fixed width so text comparison orders like time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

const sqliteColumns = `id, published_at, COALESCE(source_name, ''), COALESCE(author, ''), url, title,
	COALESCE(description, ''), COALESCE(content, ''), query_keyword, sentiment_label,
	sentiment_score, COALESCE(language, ''), created_at`

const sqliteInsert = `INSERT INTO articles (
	published_at, source_name, author, url, title, description, content,
	query_keyword, sentiment_label, sentiment_score, language, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(url) DO NOTHING`

// SQLite's built-in lower() folds ASCII only; search goes through this
// function so accented titles match regardless of case.
const lowerFunc = "lower_utf8"

var registerLower sync.Once

func registerFunctions() {
	registerLower.Do(func() {
		_ = sqlite.RegisterDeterministicScalarFunction(lowerFunc, 1,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				switch v := args[0].(type) {
				case string:
					return strings.ToLower(v), nil
				case []byte:
					return strings.ToLower(string(v)), nil
				default:
					return v, nil
				}
			})
	})
}

// SQLite is the embedded single-file store.
type SQLite struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(path string, log *slog.Logger) (*SQLite, error) {
	if log == nil {
		log = slog.Default()
	}
	if path == "" {
		path = "newsentiment.db"
	}
	registerFunctions()

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// One writer at a time; WAL still lets reads proceed.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, unavailable("open sqlite", err)
	}
	log.Info("opened sqlite store", "path", path)
	return &SQLite{db: db, log: log, now: time.Now}, nil
}

func (s *SQLite) Driver() string { return config.DriverSQLite }

func (s *SQLite) Save(ctx context.Context, articles []models.Article) (int, error) {
	inserted := 0
	for _, a := range articles {
		ok, err := s.saveOne(ctx, prepare(a))
		switch {
		case errors.Is(err, ErrUnavailable):
			metrics.RecordStoreWrite(config.DriverSQLite, "error")
			return inserted, err
		case err != nil:
			metrics.RecordStoreWrite(config.DriverSQLite, "error")
			s.log.Warn("article insert failed", "url", a.URL, "error", err)
			if ctx.Err() != nil {
				return inserted, ctx.Err()
			}
		case ok:
			inserted++
			metrics.RecordStoreWrite(config.DriverSQLite, "inserted")
		default:
			metrics.RecordStoreWrite(config.DriverSQLite, "duplicate")
		}
	}
	return inserted, nil
}

func (s *SQLite) saveOne(ctx context.Context, a models.Article) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, unavailable("save", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, sqliteInsert,
		formatTime(a.PublishedAt), a.SourceName, a.Author, a.URL, a.Title, a.Description, a.Content,
		a.QueryKeyword, string(a.SentimentLabel), a.SentimentScore, a.Language, formatTime(s.now()),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]models.Article, error) {
	return s.query(ctx, "recent",
		`SELECT `+sqliteColumns+` FROM articles ORDER BY published_at DESC, id DESC LIMIT ?`, limit)
}

func (s *SQLite) ByKeyword(ctx context.Context, keyword string, limit, daysBack int) ([]models.Article, error) {
	since := utils.Since(s.now(), daysBack)
	return s.query(ctx, "by keyword",
		`SELECT `+sqliteColumns+` FROM articles
		WHERE query_keyword = ? AND published_at >= ?
		ORDER BY published_at DESC, id DESC LIMIT ?`, keyword, formatTime(since), limit)
}

func (s *SQLite) SearchText(ctx context.Context, query string, label *models.SentimentLabel, limit int) ([]models.Article, error) {
	pattern := strings.ToLower(likePattern(query))
	where := `(` + lowerFunc + `(title) LIKE ? ESCAPE '\' OR ` + lowerFunc + `(description) LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern}
	if label != nil {
		where += ` AND sentiment_label = ?`
		args = append(args, string(*label))
	}
	args = append(args, limit)
	return s.query(ctx, "search",
		`SELECT `+sqliteColumns+` FROM articles WHERE `+where+`
		ORDER BY published_at DESC, id DESC LIMIT ?`, args...)
}

func (s *SQLite) LabelStats(ctx context.Context, keyword *string, since time.Time) ([]models.LabelAggregate, error) {
	q := `SELECT sentiment_label, COUNT(*), AVG(sentiment_score) FROM articles WHERE published_at >= ?`
	args := []any{formatTime(since)}
	if keyword != nil {
		q += ` AND query_keyword = ?`
		args = append(args, *keyword)
	}
	q += ` GROUP BY sentiment_label`

	rows, err := s.db.QueryContext(ctx, q, args...)
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

func (s *SQLite) UpdateSentiment(ctx context.Context, articles []models.Article) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, unavailable("update sentiment", err)
	}
	defer func() { _ = tx.Rollback() }()

	updated := 0
	for _, a := range articles {
		a = prepare(a)
		res, err := tx.ExecContext(ctx,
			`UPDATE articles SET sentiment_label = ?, sentiment_score = ? WHERE url = ?`,
			string(a.SentimentLabel), a.SentimentScore, a.URL)
		if err != nil {
			metrics.RecordStoreWrite(config.DriverSQLite, "error")
			return 0, fmt.Errorf("store: update %s: %w", a.URL, err)
		}
		n, _ := res.RowsAffected()
		updated += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit update: %w", err)
	}
	for range updated {
		metrics.RecordStoreWrite(config.DriverSQLite, "updated")
	}
	return updated, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return unavailable("migrate", err)
	}

	migrations, err := loadMigrations(config.DriverSQLite)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		var n int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&n); err != nil {
			return unavailable("migrate", err)
		}
		if n > 0 {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("store: migration %s: %w", m.version, err)
		}
		s.log.Info("applied migration", "driver", config.DriverSQLite, "version", m.version)
	}
	return nil
}

func (s *SQLite) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
		m.version, formatTime(s.now())); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) query(ctx context.Context, op, q string, args ...any) ([]models.Article, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, unavailable(op, err)
	}
	defer rows.Close()

	var out []models.Article
	for rows.Next() {
		var (
			a                  models.Article
			label              string
			published, created string
		)
		if err := rows.Scan(&a.ID, &published, &a.SourceName, &a.Author, &a.URL, &a.Title,
			&a.Description, &a.Content, &a.QueryKeyword, &label,
			&a.SentimentScore, &a.Language, &created); err != nil {
			return nil, fmt.Errorf("store: scan article: %w", err)
		}
		a.SentimentLabel = models.SentimentLabel(label)
		a.PublishedAt = utils.ParseFlexible(published)
		a.CreatedAt = utils.ParseFlexible(created)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable(op, err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
