package sentiment

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/seenimoa/newsentiment/pkg/models"
)

// ------------------------------------------------------------------
// Keyword-based sentiment scorer (offline, no LLM needed).
// Each indicator term counts once when it appears anywhere in the
// lower-cased title.
// ------------------------------------------------------------------

var positiveTerms = []string{
	"bueno", "excelente", "positivo", "crecimiento",
	"éxito", "logro", "mejora", "beneficio",
}

var negativeTerms = []string{
	"malo", "crisis", "problema", "conflicto",
	"caída", "pérdida", "daño", "riesgo",
}

// LexicalName identifies the lexical strategy in results and metrics.
const LexicalName = "lexical"

// LexicalScorer scores titles with fixed indicator word lists.
type LexicalScorer struct {
	positive []string
	negative []string
}

// NewLexicalScorer returns a scorer over the built-in Spanish word lists.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{positive: positiveTerms, negative: negativeTerms}
}

func (s *LexicalScorer) Name() string { return LexicalName }

// Counts returns how many positive and negative terms appear in text.
func (s *LexicalScorer) Counts(text string) (pos, neg int) {
	lower := strings.ToLower(text)
	for _, w := range s.positive {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range s.negative {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	return pos, neg
}

// ScoreText returns the verdict for a single piece of text.
func (s *LexicalScorer) ScoreText(text string) Judgment {
	pos, neg := s.Counts(text)

	var j Judgment
	switch {
	case pos > neg:
		j.Label = models.SentimentPositive
		j.Score = math.Min(models.MaxScore, 3.0+0.5*float64(pos))
	case neg > pos:
		j.Label = models.SentimentNegative
		j.Score = math.Max(models.MinScore, 2.0-0.5*float64(neg))
	default:
		j.Label = models.SentimentNeutral
		j.Score = models.NeutralScore
	}
	j.Reasoning = fmt.Sprintf("%d positive and %d negative indicator terms", pos, neg)
	return j
}

// Score annotates every article from its title. It never fails.
func (s *LexicalScorer) Score(_ context.Context, articles []models.Article) []models.Article {
	out := make([]models.Article, len(articles))
	for i, a := range articles {
		out[i] = Apply(a, s.ScoreText(a.Title))
	}
	return out
}
