package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/newsentiment/pkg/models"
)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMockPostgres(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return newPostgresWithPool(mock, quietLog()), mock
}

var articleColumns = []string{
	"id", "published_at", "source_name", "author", "url", "title",
	"description", "content", "query_keyword", "sentiment_label",
	"sentiment_score", "language", "created_at",
}

// ════════════════════════════════════════════════════════════════════
// Save
// ════════════════════════════════════════════════════════════════════

func TestPostgresSaveCountsOnlyNewRows(t *testing.T) {
	pg, mock := newMockPostgres(t)

	published := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	articles := []models.Article{
		{URL: "https://a.example/1", Title: "Uno", QueryKeyword: "economía", PublishedAt: published,
			SentimentLabel: models.SentimentPositive, SentimentScore: 4},
		{URL: "https://a.example/2", Title: "Dos", QueryKeyword: "economía", PublishedAt: published,
			SentimentLabel: "bogus", SentimentScore: 9},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO articles").
		WithArgs(published, "", models.UnspecifiedAuthor, "https://a.example/1", "Uno", "", "",
			"economía", "positive", 4.0, "es").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	// Second article is a duplicate; its label and score are normalized first.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO articles").
		WithArgs(published, "", models.UnspecifiedAuthor, "https://a.example/2", "Dos", "", "",
			"economía", "neutral", 5.0, "es").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectCommit()

	n, err := pg.Save(context.Background(), articles)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveSkipsFailedArticle(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO articles").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "https://a.example/bad",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("value too long"))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO articles").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "https://a.example/good",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := pg.Save(context.Background(), []models.Article{
		{URL: "https://a.example/bad", Title: "Mala", QueryKeyword: "k"},
		{URL: "https://a.example/good", Title: "Buena", QueryKeyword: "k"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveUnreachable(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectBegin().WillReturnError(errors.New("dial tcp 127.0.0.1:5432: connection refused"))

	n, err := pg.Save(context.Background(), []models.Article{
		{URL: "https://a.example/1", Title: "Uno", QueryKeyword: "k"},
		{URL: "https://a.example/2", Title: "Dos", QueryKeyword: "k"},
	})
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ════════════════════════════════════════════════════════════════════
// Reads
// ════════════════════════════════════════════════════════════════════

func TestPostgresRecentScansRows(t *testing.T) {
	pg, mock := newMockPostgres(t)

	published := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)
	rows := pgxmock.NewRows(articleColumns).
		AddRow(int64(7), published, "El País", "Ana", "https://a.example/7", "Título",
			"desc", "", "economía", "negative", 1.2, "es", published)
	mock.ExpectQuery("FROM articles ORDER BY published_at DESC").
		WithArgs(10).
		WillReturnRows(rows)

	got, err := pg.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, models.SentimentNegative, got[0].SentimentLabel)
	assert.InDelta(t, 1.2, got[0].SentimentScore, 1e-9)
	assert.Equal(t, "El País", got[0].SourceName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSearchWithLabel(t *testing.T) {
	pg, mock := newMockPostgres(t)

	label := models.SentimentPositive
	mock.ExpectQuery("ILIKE").
		WithArgs(`%50\%%`, "positive", 5).
		WillReturnRows(pgxmock.NewRows(articleColumns))

	got, err := pg.SearchText(context.Background(), "50%", &label, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLabelStats(t *testing.T) {
	pg, mock := newMockPostgres(t)

	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	keyword := "economía"
	mock.ExpectQuery("SELECT sentiment_label, COUNT").
		WithArgs(since, keyword).
		WillReturnRows(pgxmock.NewRows([]string{"sentiment_label", "count", "avg"}).
			AddRow("positive", 3, 4.1).
			AddRow("negative", 1, 0.8))

	got, err := pg.LabelStats(context.Background(), &keyword, since)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.LabelAggregate{Label: models.SentimentPositive, Count: 3, AvgScore: 4.1}, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReadErrorsAreUnavailable(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))
	_, err := pg.Recent(context.Background(), 5)
	assert.ErrorIs(t, err, ErrUnavailable)

	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("connection refused"))
	_, err = pg.Count(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

// ════════════════════════════════════════════════════════════════════
// UpdateSentiment / Migrate
// ════════════════════════════════════════════════════════════════════

func TestPostgresUpdateSentiment(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE articles SET sentiment_label").
		WithArgs("positive", 3.5, "https://a.example/1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE articles SET sentiment_label").
		WithArgs("neutral", 2.5, "https://a.example/missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectCommit()

	n, err := pg.UpdateSentiment(context.Background(), []models.Article{
		{URL: "https://a.example/1", SentimentLabel: models.SentimentPositive, SentimentScore: 3.5},
		{URL: "https://a.example/missing", SentimentLabel: models.SentimentNeutral, SentimentScore: 2.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrateSkipsApplied(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_create_articles").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	require.NoError(t, pg.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMigrateAppliesPending(t *testing.T) {
	pg, mock := newMockPostgres(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("001_create_articles").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS articles").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	for range 3 {
		mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("001_create_articles").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, pg.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
