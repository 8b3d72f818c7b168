package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/seenimoa/newsentiment/pkg/models"
	"github.com/seenimoa/newsentiment/pkg/utils"
)

// NewsAPIName identifies the NewsAPI provider.
const NewsAPIName = "newsapi"

// NewsAPIBaseURL is the public NewsAPI endpoint.
const NewsAPIBaseURL = "https://newsapi.org"

// maxPageSize is the largest page NewsAPI serves.
const maxPageSize = 100

// NewsAPI searches the NewsAPI /v2/everything endpoint.
type NewsAPI struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewsAPIOption configures the NewsAPI client.
type NewsAPIOption func(*NewsAPI)

// WithNewsAPIBaseURL sets a custom base URL (tests, proxies).
func WithNewsAPIBaseURL(u string) NewsAPIOption {
	return func(n *NewsAPI) { n.baseURL = strings.TrimRight(u, "/") }
}

// WithNewsAPIHTTPClient sets a custom HTTP client.
func WithNewsAPIHTTPClient(c *http.Client) NewsAPIOption {
	return func(n *NewsAPI) { n.client = c }
}

// NewNewsAPI creates a NewsAPI client. An empty key is accepted; searches
// then fail with ErrUpstreamAuth.
func NewNewsAPI(apiKey string, opts ...NewsAPIOption) *NewsAPI {
	n := &NewsAPI{
		apiKey:  apiKey,
		baseURL: NewsAPIBaseURL,
		client:  &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *NewsAPI) Name() string { return NewsAPIName }

// Search runs one /v2/everything query.
func (n *NewsAPI) Search(ctx context.Context, q SearchQuery) ([]models.RawArticle, error) {
	if n.apiKey == "" {
		return nil, fmt.Errorf("%s: %w: no API key configured", NewsAPIName, ErrUpstreamAuth)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.searchURL(q), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", NewsAPIName, err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, transportError(NewsAPIName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, transportError(NewsAPIName, err)
	}

	var result newsAPIResponse
	decodeErr := json.Unmarshal(body, &result)

	if err := n.checkError(resp.StatusCode, &result, body); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%s: decode response: %w", NewsAPIName, decodeErr)
	}

	out := make([]models.RawArticle, 0, len(result.Articles))
	for _, a := range result.Articles {
		out = append(out, models.RawArticle{
			Title:       a.Title,
			URL:         a.URL,
			PublishedAt: utils.ParseFlexible(a.PublishedAt),
			Source:      a.Source.Name,
			Author:      a.Author,
			Description: a.Description,
			Content:     a.Content,
		})
	}
	return out, nil
}

func (n *NewsAPI) searchURL(q SearchQuery) string {
	params := url.Values{}
	params.Set("q", q.Keyword)
	if !q.From.IsZero() {
		params.Set("from", utils.FormatNewsAPI(q.From))
	}
	if !q.To.IsZero() {
		params.Set("to", utils.FormatNewsAPI(q.To))
	}
	if q.SortBy != "" {
		params.Set("sortBy", q.SortBy)
	}
	if q.Language != "" {
		params.Set("language", q.Language)
	}
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(min(q.PageSize, maxPageSize)))
	}
	params.Set("apiKey", n.apiKey)
	return n.baseURL + "/v2/everything?" + params.Encode()
}

// checkError maps HTTP status and the body's status/code fields onto the
// upstream error taxonomy.
func (n *NewsAPI) checkError(status int, r *newsAPIResponse, body []byte) error {
	if status == http.StatusOK && r.Status != "error" {
		return nil
	}

	switch {
	case status == http.StatusUnauthorized || strings.HasPrefix(r.Code, "apiKey"):
		return fmt.Errorf("%s: %w: %s", NewsAPIName, ErrUpstreamAuth, r.Message)
	case status == http.StatusTooManyRequests || r.Code == "rateLimited":
		return fmt.Errorf("%s: %w: %s", NewsAPIName, ErrUpstreamRateLimited, r.Message)
	}

	msg := r.Message
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > 512 {
			msg = msg[:512]
		}
	}
	return &UpstreamStatusError{Provider: NewsAPIName, StatusCode: status, Code: r.Code, Message: msg}
}

// --- Wire types ---

type newsAPIResponse struct {
	Status       string           `json:"status"`
	Code         string           `json:"code"`
	Message      string           `json:"message"`
	TotalResults int              `json:"totalResults"`
	Articles     []newsAPIArticle `json:"articles"`
}

type newsAPIArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"urlToImage"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}
