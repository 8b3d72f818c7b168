// Package sentiment defines the scoring contract shared by the lexical and
// agent pipeline strategies, plus the band, clamp and label rules every
// score passes through before it reaches the store.
package sentiment

import (
	"context"

	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// Scorer annotates a batch of articles with sentiment. Implementations never
// return an error: a failed article is scored with the neutral default.
// The returned slice has the same length and order as the input.
type Scorer interface {
	Name() string
	Score(ctx context.Context, articles []models.Article) []models.Article
}

// Judgment is one sentiment verdict as produced by a scorer or pipeline stage.
type Judgment struct {
	Label      models.SentimentLabel `json:"sentiment_label"`
	Score      float64               `json:"sentiment_score"`
	Confidence float64               `json:"confidence"`
	Reasoning  string                `json:"reasoning"`

	// Failed marks the neutral stand-in produced when scoring broke.
	Failed bool `json:"-"`
}

// Band thresholds. Scores between the bands resolve to neutral.
const (
	NegativeMax = 1.4
	PositiveMin = 3.1
)

// BandFor returns the label implied by a numeric score.
func BandFor(score float64) models.SentimentLabel {
	switch {
	case score <= NegativeMax:
		return models.SentimentNegative
	case score >= PositiveMin:
		return models.SentimentPositive
	default:
		return models.SentimentNeutral
	}
}

// ClampScore bounds a score into [0, 5].
func ClampScore(score float64) float64 {
	return utils.Clamp(score, models.MinScore, models.MaxScore)
}

// NormalizeLabel maps any label onto the enum; unknown values become neutral.
func NormalizeLabel(label models.SentimentLabel) models.SentimentLabel {
	if label.Valid() {
		return label
	}
	return models.ParseLabel(string(label))
}

// Normalize returns j with score and confidence clamped and label normalized.
func (j Judgment) Normalize() Judgment {
	j.Label = NormalizeLabel(j.Label)
	j.Score = ClampScore(j.Score)
	j.Confidence = utils.Clamp(j.Confidence, 0, 1)
	return j
}

// Consistent reports whether the label matches the band of the score.
func (j Judgment) Consistent() bool {
	return NormalizeLabel(j.Label) == BandFor(ClampScore(j.Score))
}

// Fallback is the neutral verdict used when scoring fails.
func Fallback(note string) Judgment {
	return Judgment{
		Label:      models.SentimentNeutral,
		Score:      models.NeutralScore,
		Confidence: 0,
		Reasoning:  note,
		Failed:     true,
	}
}

// Apply copies a normalized judgment onto an article.
func Apply(a models.Article, j Judgment) models.Article {
	j = j.Normalize()
	a.SentimentLabel = j.Label
	a.SentimentScore = j.Score
	a.Confidence = j.Confidence
	a.Reasoning = j.Reasoning
	a.ScoringFailed = j.Failed
	return a
}
