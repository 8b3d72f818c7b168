// Package query serves read-only views over stored articles: recent items,
// keyword and text lookups, and per-label sentiment statistics.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/seenimoa/newsentiment/internal/ingest"
	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// Reader is the read side of the store.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]models.Article, error)
	ByKeyword(ctx context.Context, keyword string, limit, daysBack int) ([]models.Article, error)
	SearchText(ctx context.Context, query string, label *models.SentimentLabel, limit int) ([]models.Article, error)
	LabelStats(ctx context.Context, keyword *string, since time.Time) ([]models.LabelAggregate, error)
}

// Bounds for caller-supplied parameters.
const (
	MaxRecent   = 50
	MaxLimit    = 100
	MaxDaysBack = 30
)

// Service answers dashboard queries.
type Service struct {
	store Reader
	now   func() time.Time
}

// NewService creates a query service over store.
func NewService(store Reader) *Service {
	return &Service{store: store, now: time.Now}
}

func bounded(field string, v, lo, hi int) error {
	if v < lo || v > hi {
		return &ingest.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d, got %d", lo, hi, v),
		}
	}
	return nil
}

// Recent returns the newest stored articles.
func (s *Service) Recent(ctx context.Context, limit int) ([]models.Article, error) {
	if err := bounded("limit", limit, 1, MaxRecent); err != nil {
		return nil, err
	}
	return s.store.Recent(ctx, limit)
}

// ByKeyword returns stored articles for an exact keyword within daysBack days.
func (s *Service) ByKeyword(ctx context.Context, keyword string, limit, daysBack int) ([]models.Article, error) {
	if strings.TrimSpace(keyword) == "" {
		return nil, &ingest.ValidationError{Field: "keyword", Message: "must not be empty"}
	}
	if err := bounded("limit", limit, 1, MaxLimit); err != nil {
		return nil, err
	}
	if err := bounded("days_back", daysBack, 1, MaxDaysBack); err != nil {
		return nil, err
	}
	return s.store.ByKeyword(ctx, keyword, limit, daysBack)
}

// Search matches query against stored titles and descriptions. An empty
// label means any label.
func (s *Service) Search(ctx context.Context, query, label string, limit int) ([]models.Article, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ingest.ValidationError{Field: "q", Message: "must not be empty"}
	}
	if err := bounded("limit", limit, 1, MaxLimit); err != nil {
		return nil, err
	}
	var filter *models.SentimentLabel
	if label != "" {
		l := models.SentimentLabel(strings.ToLower(label))
		if !l.Valid() {
			return nil, &ingest.ValidationError{
				Field:   "sentiment",
				Message: fmt.Sprintf("must be one of positive, neutral, negative, got %q", label),
			}
		}
		filter = &l
	}
	return s.store.SearchText(ctx, query, filter, limit)
}

// Stats aggregates stored sentiment published in the last daysBack days.
// Every label is present in the result. Per-label averages are rounded to
// two decimals; the overall average weights the unrounded averages by count.
func (s *Service) Stats(ctx context.Context, keyword *string, daysBack int) (*models.SentimentStats, error) {
	if err := bounded("days_back", daysBack, 1, MaxDaysBack); err != nil {
		return nil, err
	}
	if keyword != nil && strings.TrimSpace(*keyword) == "" {
		keyword = nil
	}

	aggs, err := s.store.LabelStats(ctx, keyword, utils.Since(s.now(), daysBack))
	if err != nil {
		return nil, err
	}
	return Aggregate(keyword, daysBack, aggs), nil
}

// Aggregate folds GROUP BY rows into SentimentStats.
func Aggregate(keyword *string, daysBack int, aggs []models.LabelAggregate) *models.SentimentStats {
	stats := &models.SentimentStats{
		Keyword:  keyword,
		DaysBack: daysBack,
		PerLabel: make(map[models.SentimentLabel]models.LabelStat, len(models.Labels)),
	}
	for _, l := range models.Labels {
		stats.PerLabel[l] = models.LabelStat{}
	}

	var weighted float64
	for _, a := range aggs {
		if !a.Label.Valid() || a.Count == 0 {
			continue
		}
		prev := stats.PerLabel[a.Label]
		count := prev.Count + a.Count
		avg := (prev.AvgScore*float64(prev.Count) + a.AvgScore*float64(a.Count)) / float64(count)
		stats.PerLabel[a.Label] = models.LabelStat{Count: count, AvgScore: avg}
		stats.Total += a.Count
		weighted += a.AvgScore * float64(a.Count)
	}

	if stats.Total > 0 {
		stats.OverallAvgScore = utils.Round(weighted/float64(stats.Total), 2)
	}
	for l, st := range stats.PerLabel {
		st.AvgScore = utils.Round(st.AvgScore, 2)
		stats.PerLabel[l] = st
	}
	return stats
}
