// Package models holds the data types shared across newsentiment packages:
// the persisted Article, the raw search record it is built from, and the
// result shapes returned by ingestion and statistics queries.
package models

import (
	"strings"
	"time"
)

// SentimentLabel is the categorical sentiment of an article.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

// Labels lists every valid label in display order.
var Labels = []SentimentLabel{SentimentPositive, SentimentNeutral, SentimentNegative}

// Valid reports whether l is one of the enumerated labels.
func (l SentimentLabel) Valid() bool {
	switch l {
	case SentimentPositive, SentimentNeutral, SentimentNegative:
		return true
	}
	return false
}

// ParseLabel maps free-form label text onto the enum. Spanish spellings are
// accepted since the LLM prompts are written in Spanish; anything else is neutral.
func ParseLabel(s string) SentimentLabel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "positive", "positivo", "positiva":
		return SentimentPositive
	case "negative", "negativo", "negativa":
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// Score bounds.
const (
	MinScore     = 0.0
	MaxScore     = 5.0
	NeutralScore = 2.5
)

// Stored column widths.
const (
	MaxSourceLen  = 255
	MaxAuthorLen  = 255
	MaxKeywordLen = 100
	MaxLangLen    = 10
)

// UnspecifiedAuthor is stored when the search result carries no author.
const UnspecifiedAuthor = "No especificado"

// DefaultLanguage is the search language used when none is configured.
const DefaultLanguage = "es"

// RawArticle is one record as returned by a search provider, before normalization.
type RawArticle struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
	Author      string    `json:"author,omitempty"`
	Description string    `json:"description,omitempty"`
	Content     string    `json:"content,omitempty"`
}

// Article is a normalized, scored news item. Confidence and Reasoning are
// produced by the agent pipeline and are not persisted. ScoringFailed marks
// an article that carries the neutral default because scoring broke.
type Article struct {
	ID             int64          `json:"id,omitempty"`
	PublishedAt    time.Time      `json:"published_at"`
	SourceName     string         `json:"source_name"`
	Author         string         `json:"author"`
	URL            string         `json:"url"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Content        string         `json:"content,omitempty"`
	QueryKeyword   string         `json:"query_keyword"`
	SentimentLabel SentimentLabel `json:"sentiment_label"`
	SentimentScore float64        `json:"sentiment_score"`
	Confidence     float64        `json:"confidence,omitempty"`
	Reasoning      string         `json:"reasoning,omitempty"`
	Language       string         `json:"language,omitempty"`
	CreatedAt      time.Time      `json:"created_at,omitempty"`
	ScoringFailed  bool           `json:"-"`
}
