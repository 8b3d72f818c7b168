package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/pkg/models"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"), quietLog())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func scored(url, title, keyword string, label models.SentimentLabel, score float64, published time.Time) models.Article {
	return models.Article{
		URL:            url,
		Title:          title,
		QueryKeyword:   keyword,
		SourceName:     "Fuente",
		SentimentLabel: label,
		SentimentScore: score,
		PublishedAt:    published,
	}
}

// ════════════════════════════════════════════════════════════════════
// Save / dedup
// ════════════════════════════════════════════════════════════════════

func TestSQLiteSaveDeduplicatesByURL(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	batch := []models.Article{
		scored("https://a.example/1", "Uno", "economía", models.SentimentPositive, 4, now),
		scored("https://a.example/2", "Dos", "economía", models.SentimentNeutral, 2.5, now),
	}

	n, err := s.Save(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Re-saving the same URLs inserts nothing and is not an error.
	n, err = s.Save(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Mixed batch: only the unseen URL counts.
	n, err = s.Save(ctx, append(batch, scored("https://a.example/3", "Tres", "economía", models.SentimentNegative, 1, now)))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSQLiteDuplicateKeepsFirstVersion(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.Save(ctx, []models.Article{scored("https://a.example/1", "Original", "k", models.SentimentPositive, 4, now)})
	require.NoError(t, err)
	_, err = s.Save(ctx, []models.Article{scored("https://a.example/1", "Cambiado", "k", models.SentimentNegative, 0.5, now)})
	require.NoError(t, err)

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Original", got[0].Title)
	assert.Equal(t, models.SentimentPositive, got[0].SentimentLabel)
}

func TestSQLiteSaveOneDuplicateNineNew(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.Save(ctx, []models.Article{scored("https://a.example/0", "Original", "k", models.SentimentPositive, 4.2, now)})
	require.NoError(t, err)

	batch := []models.Article{scored("https://a.example/0", "Cambiado", "k", models.SentimentNegative, 0.3, now)}
	for i := 1; i <= 9; i++ {
		batch = append(batch, scored(fmt.Sprintf("https://a.example/%d", i), "Nueva", "k", models.SentimentNeutral, 2.5, now))
	}

	n, err := s.Save(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	total, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, total)

	rows, err := s.SearchText(ctx, "Original", nil, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "https://a.example/0", rows[0].URL)
	assert.Equal(t, models.SentimentPositive, rows[0].SentimentLabel)
	assert.InDelta(t, 4.2, rows[0].SentimentScore, 1e-9)
}

func TestSQLiteSaveOnClosedStore(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "closed.db"), quietLog())
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Close())

	n, err := s.Save(context.Background(), []models.Article{
		scored("https://a.example/1", "Uno", "k", models.SentimentNeutral, 2.5, time.Now()),
	})
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSQLiteConcurrentSavesInsertOnce(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	a := scored("https://a.example/race", "Carrera", "k", models.SentimentNeutral, 2.5, time.Now())

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := s.Save(ctx, []models.Article{a})
			assert.NoError(t, err)
			mu.Lock()
			total += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, total)
	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteSaveNormalizesFields(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, err := s.Save(ctx, []models.Article{{
		URL:            "https://a.example/n",
		Title:          "Normalizado",
		QueryKeyword:   "k",
		SentimentLabel: "positivo",
		SentimentScore: 7.3,
		PublishedAt:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("CET", 3600)),
	}})
	require.NoError(t, err)

	got, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.SentimentPositive, got[0].SentimentLabel)
	assert.Equal(t, 5.0, got[0].SentimentScore)
	assert.Equal(t, models.UnspecifiedAuthor, got[0].Author)
	assert.Equal(t, "es", got[0].Language)
	assert.Equal(t, time.Date(2025, 1, 2, 2, 4, 5, 0, time.UTC), got[0].PublishedAt)
	assert.False(t, got[0].CreatedAt.IsZero())
}

// ════════════════════════════════════════════════════════════════════
// Reads
// ════════════════════════════════════════════════════════════════════

func TestSQLiteRecentOrdering(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.Save(ctx, []models.Article{
		scored("https://a.example/old", "Viejo", "k", models.SentimentNeutral, 2.5, base),
		scored("https://a.example/new", "Nuevo", "k", models.SentimentNeutral, 2.5, base.Add(48*time.Hour)),
		scored("https://a.example/mid", "Medio", "k", models.SentimentNeutral, 2.5, base.Add(time.Hour)),
	})
	require.NoError(t, err)

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Nuevo", got[0].Title)
	assert.Equal(t, "Medio", got[1].Title)
}

func TestSQLiteByKeywordWindow(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Save(ctx, []models.Article{
		scored("https://a.example/1", "Reciente", "economía", models.SentimentPositive, 4, now.Add(-24*time.Hour)),
		scored("https://a.example/2", "Antiguo", "economía", models.SentimentPositive, 4, now.Add(-10*24*time.Hour)),
		scored("https://a.example/3", "Otro tema", "deportes", models.SentimentPositive, 4, now.Add(-time.Hour)),
	})
	require.NoError(t, err)

	got, err := s.ByKeyword(ctx, "economía", 50, 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Reciente", got[0].Title)
}

func TestSQLiteSearchText(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	desc := scored("https://a.example/3", "Sin coincidencia", "k", models.SentimentNeutral, 2.5, now)
	desc.Description = "La ECONOMÍA mundial"
	_, err := s.Save(ctx, []models.Article{
		scored("https://a.example/1", "Crece la Economía", "k", models.SentimentPositive, 4, now),
		scored("https://a.example/2", "Cae la economía", "k", models.SentimentNegative, 1, now),
		desc,
		scored("https://a.example/4", "Descuento del 50% hoy", "k", models.SentimentNeutral, 2.5, now),
		scored("https://a.example/5", "Descuento del 500 hoy", "k", models.SentimentNeutral, 2.5, now),
	})
	require.NoError(t, err)

	got, err := s.SearchText(ctx, "economía", nil, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	neg := models.SentimentNegative
	got, err = s.SearchText(ctx, "ECONOMÍA", &neg, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Cae la economía", got[0].Title)

	// LIKE metacharacters in the query match literally.
	got, err = s.SearchText(ctx, "50%", nil, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://a.example/4", got[0].URL)
}

func TestSQLiteLabelStats(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.Save(ctx, []models.Article{
		scored("https://a.example/1", "a", "economía", models.SentimentPositive, 4, now),
		scored("https://a.example/2", "b", "economía", models.SentimentPositive, 3.5, now),
		scored("https://a.example/3", "c", "economía", models.SentimentNegative, 1, now),
		scored("https://a.example/4", "d", "deportes", models.SentimentNeutral, 2.5, now),
		scored("https://a.example/5", "e", "economía", models.SentimentNeutral, 2.5, now.AddDate(0, 0, -30)),
	})
	require.NoError(t, err)

	keyword := "economía"
	aggs, err := s.LabelStats(ctx, &keyword, now.AddDate(0, 0, -7))
	require.NoError(t, err)

	byLabel := make(map[models.SentimentLabel]models.LabelAggregate)
	for _, a := range aggs {
		byLabel[a.Label] = a
	}
	require.Len(t, byLabel, 2)
	assert.Equal(t, 2, byLabel[models.SentimentPositive].Count)
	assert.InDelta(t, 3.75, byLabel[models.SentimentPositive].AvgScore, 1e-9)
	assert.Equal(t, 1, byLabel[models.SentimentNegative].Count)

	aggs, err = s.LabelStats(ctx, nil, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Len(t, aggs, 3)
}

func TestSQLiteEmptyReads(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	aggs, err := s.LabelStats(ctx, nil, time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Empty(t, aggs)
}

// ════════════════════════════════════════════════════════════════════
// UpdateSentiment / Migrate / Open
// ════════════════════════════════════════════════════════════════════

func TestSQLiteUpdateSentiment(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := s.Save(ctx, []models.Article{scored("https://a.example/1", "Uno", "k", models.SentimentNeutral, 2.5, now)})
	require.NoError(t, err)

	n, err := s.UpdateSentiment(ctx, []models.Article{
		{URL: "https://a.example/1", SentimentLabel: models.SentimentNegative, SentimentScore: 0.7},
		{URL: "https://a.example/unknown", SentimentLabel: models.SentimentPositive, SentimentScore: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, models.SentimentNegative, got[0].SentimentLabel)
	assert.InDelta(t, 0.7, got[0].SentimentScore, 1e-9)
	assert.Equal(t, "Uno", got[0].Title)
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestOpenSelectsDriver(t *testing.T) {
	st, err := Open(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "open.db"),
	}, quietLog())
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, "sqlite", st.Driver())
	assert.NoError(t, st.Ping(context.Background()))

	_, err = Open(context.Background(), config.DatabaseConfig{Driver: "mysql"}, quietLog())
	assert.Error(t, err)
}

// ════════════════════════════════════════════════════════════════════
// Helpers
// ════════════════════════════════════════════════════════════════════

func TestLikePattern(t *testing.T) {
	assert.Equal(t, `%plain%`, likePattern("plain"))
	assert.Equal(t, `%50\%\_x\\%`, likePattern(`50%_x\`))
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("CREATE TABLE a (x INT);\n\n  CREATE INDEX i ON a (x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, got)
}

func TestLoadMigrationsBothDrivers(t *testing.T) {
	for _, d := range []string{config.DriverPostgres, config.DriverSQLite} {
		ms, err := loadMigrations(d)
		require.NoError(t, err, d)
		require.Len(t, ms, 1, d)
		assert.Equal(t, "001_create_articles", ms[0].version)
		assert.Len(t, ms[0].statements, 4)
	}
}
