// Package normalizer turns raw search results into storable articles.
package normalizer

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// removedTitle is the placeholder NewsAPI returns for deleted items.
const removedTitle = "[removed]"

// Normalizer applies the column limits and defaults of the articles table.
type Normalizer struct {
	language string
	now      func() time.Time
}

// New returns a Normalizer that tags articles with language.
func New(language string) *Normalizer {
	if language == "" {
		language = models.DefaultLanguage
	}
	return &Normalizer{
		language: utils.Truncate(language, models.MaxLangLen),
		now:      time.Now,
	}
}

// Normalize converts one raw record. The second result is false when the
// record must be dropped: blank or removed title, or no URL.
func (n *Normalizer) Normalize(raw models.RawArticle, keyword string) (models.Article, bool) {
	title := utils.CollapseSpaces(raw.Title)
	if title == "" || strings.EqualFold(title, removedTitle) {
		return models.Article{}, false
	}
	url := strings.TrimSpace(raw.URL)
	if url == "" {
		return models.Article{}, false
	}

	author := strings.TrimSpace(raw.Author)
	if author == "" {
		author = models.UnspecifiedAuthor
	}

	published := raw.PublishedAt
	if published.IsZero() {
		published = n.now()
	}

	return models.Article{
		PublishedAt:  published.UTC(),
		SourceName:   utils.Truncate(strings.TrimSpace(raw.Source), models.MaxSourceLen),
		Author:       utils.Truncate(author, models.MaxAuthorLen),
		URL:          url,
		Title:        title,
		Description:  StripHTML(raw.Description),
		Content:      StripHTML(raw.Content),
		QueryKeyword: utils.Truncate(strings.TrimSpace(keyword), models.MaxKeywordLen),
		Language:     n.language,
	}, true
}

// NormalizeAll normalizes a batch, keeping input order. It returns the
// accepted articles and how many raw records were dropped.
func (n *Normalizer) NormalizeAll(raws []models.RawArticle, keyword string) ([]models.Article, int) {
	out := make([]models.Article, 0, len(raws))
	for _, raw := range raws {
		if a, ok := n.Normalize(raw, keyword); ok {
			out = append(out, a)
		}
	}
	return out, len(raws) - len(out)
}

// StripHTML returns the text content of an HTML fragment with whitespace
// collapsed. Plain text passes through unchanged apart from spacing.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	if !strings.ContainsAny(s, "<&") {
		return utils.CollapseSpaces(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return utils.CollapseSpaces(s)
	}
	return utils.CollapseSpaces(doc.Find("body").Text())
}
