// Package api provides the HTTP REST API for newsentiment.
//
// It exposes ingestion, stored-article queries, sentiment statistics,
// reanalysis, Prometheus metrics and a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/datasource"
	"github.com/seenimoa/newsentiment/internal/ingest"
	"github.com/seenimoa/newsentiment/internal/metrics"
	"github.com/seenimoa/newsentiment/internal/store"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// Version is reported by / and /health.
const Version = "2.0.0"

// Request defaults.
const (
	defaultKeyword    = "messi"
	defaultDays       = 7
	defaultMaxResults = 10
	defaultRecent     = 10
	defaultListLimit  = 20
	defaultReanalyze  = 10
)

// Ingester runs one ingestion request.
type Ingester interface {
	Ingest(ctx context.Context, params models.IngestParams) (*models.IngestResult, error)
}

// Reanalyzer starts background reanalysis.
type Reanalyzer interface {
	Trigger(ctx context.Context, keyword string, limit int) (*models.AnalysisStatus, error)
}

// Querier answers read-only queries over stored articles.
type Querier interface {
	Recent(ctx context.Context, limit int) ([]models.Article, error)
	ByKeyword(ctx context.Context, keyword string, limit, daysBack int) ([]models.Article, error)
	Search(ctx context.Context, query, label string, limit int) ([]models.Article, error)
	Stats(ctx context.Context, keyword *string, daysBack int) (*models.SentimentStats, error)
}

// Pinger reports store reachability for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the server routes to.
type Deps struct {
	Config     *config.Config
	Ingester   Ingester
	Reanalyzer Reanalyzer
	Query      Querier
	Store      Pinger
	Hub        *WSHub
	Logger     *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	router     chi.Router
	cfg        *config.Config
	ingester   Ingester
	reanalyzer Reanalyzer
	query      Querier
	store      Pinger
	wsHub      *WSHub
	log        *slog.Logger
	now        func() time.Time
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(d Deps) *Server {
	if d.Config == nil {
		d.Config = &config.Config{}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Hub == nil {
		d.Hub = NewWSHub(d.Logger)
	}
	s := &Server{
		cfg:        d.Config,
		ingester:   d.Ingester,
		reanalyzer: d.Reanalyzer,
		query:      d.Query,
		store:      d.Store,
		wsHub:      d.Hub,
		log:        d.Logger.With("component", "api"),
		now:        time.Now,
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Hub returns the server's WebSocket hub.
func (s *Server) Hub() *WSHub {
	return s.wsHub
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	timeout := s.cfg.API.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: timeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go s.wsHub.Run(hubCtx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api: listen: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	timeout := s.cfg.API.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/", s.handleRoot)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", s.handleWebSocket)

	// The WebSocket route must not sit behind the timeout middleware.
	routes := func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(timeout))
			r.Get("/news", s.handleNews)
			r.Get("/news/recent", s.handleRecent)
			r.Get("/news/search", s.handleSearch)
			r.Get("/news/by-keyword/{keyword}", s.handleByKeyword)
			r.Get("/stats", s.handleStats)
			r.Get("/health", s.handleHealth)
			r.Post("/analyze", s.handleAnalyze)
		})
	}
	routes(r)
	r.Route("/api", func(r chi.Router) {
		routes(r)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// metricsMiddleware records request duration by route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		metrics.RecordHTTP(r.Method, route, code, time.Since(start))
	})
}

// ============================================================
// Response types
// ============================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ArticleList is returned by /news/recent.
type ArticleList struct {
	Total    int              `json:"total"`
	Articles []models.Article `json:"articles"`
}

// KeywordArticles is returned by /news/by-keyword/{keyword}.
type KeywordArticles struct {
	Keyword  string           `json:"keyword"`
	DaysBack int              `json:"days_back"`
	Total    int              `json:"total"`
	Articles []models.Article `json:"articles"`
}

// SearchResults is returned by /news/search.
type SearchResults struct {
	Query    string           `json:"query"`
	Total    int              `json:"total"`
	Articles []models.Article `json:"articles"`
}

// HealthStatus is returned by /health.
type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Services  HealthServices `json:"services"`
}

// HealthServices reports dependency readiness.
type HealthServices struct {
	SearchKeyConfigured bool `json:"search_key_configured"`
	LLMKeyConfigured    bool `json:"llm_key_configured"`
	StoreAvailable      bool `json:"store_available"`
}

// Banner is returned by /.
type Banner struct {
	Message  string   `json:"message"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Banner{
		Message: "News & Sentiment Tracker API - Running",
		Version: Version,
		Features: []string{
			"News search (" + providerName(s.cfg) + ")",
			"Lexical sentiment scoring",
			"LLM agent pipeline sentiment analysis",
			"Deduplicated " + driverName(s.cfg) + " storage",
			"WebSocket events",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	storeOK := false
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		storeOK = s.store.Ping(ctx) == nil
		cancel()
	}
	status := "healthy"
	if !storeOK {
		status = "degraded"
	}
	writeJSON(w, http.StatusOK, HealthStatus{
		Status:    status,
		Timestamp: s.now().UTC(),
		Version:   Version,
		Services: HealthServices{
			SearchKeyConfigured: s.cfg.SearchConfigured(),
			LLMKeyConfigured:    s.cfg.LLMConfigured(),
			StoreAvailable:      storeOK,
		},
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := models.IngestParams{Keyword: q.Get("keyword")}
	if _, ok := q["keyword"]; !ok {
		params.Keyword = defaultKeyword
	}

	var err error
	if params.Days, err = intParam(r, "days", defaultDays); err != nil {
		s.writeErr(w, err)
		return
	}
	if params.MaxResults, err = intParam(r, "max_results", defaultMaxResults); err != nil {
		s.writeErr(w, err)
		return
	}
	if params.UseLLM, err = boolParam(r, "use_llm", true); err != nil {
		s.writeErr(w, err)
		return
	}

	res, err := s.ingester.Ingest(r.Context(), params)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultRecent)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	articles, err := s.query.Recent(r.Context(), limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ArticleList{Total: len(articles), Articles: nonNil(articles)})
}

func (s *Server) handleByKeyword(w http.ResponseWriter, r *http.Request) {
	keyword := chi.URLParam(r, "keyword")
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	daysBack, err := intParam(r, "days_back", defaultDays)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	articles, err := s.query.ByKeyword(r.Context(), keyword, limit, daysBack)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, KeywordArticles{
		Keyword:  keyword,
		DaysBack: daysBack,
		Total:    len(articles),
		Articles: nonNil(articles),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	articles, err := s.query.Search(r.Context(), query, r.URL.Query().Get("sentiment"), limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResults{Query: query, Total: len(articles), Articles: nonNil(articles)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	daysBack, err := intParam(r, "days_back", defaultDays)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	var keyword *string
	if k := strings.TrimSpace(r.URL.Query().Get("keyword")); k != "" {
		keyword = &k
	}
	stats, err := s.query.Stats(r.Context(), keyword, daysBack)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	keyword := r.URL.Query().Get("keyword")
	limit, err := intParam(r, "limit", defaultReanalyze)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	status, err := s.reanalyzer.Trigger(r.Context(), keyword, limit)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	code := http.StatusOK
	if status.Status == models.AnalysisProcessing {
		code = http.StatusAccepted
	}
	writeJSON(w, code, status)
}

// ============================================================
// Helpers
// ============================================================

// statusFor maps domain errors onto HTTP status codes. Timeout is checked
// before unavailable because it wraps it.
func statusFor(err error) int {
	var (
		ve        *ingest.ValidationError
		statusErr *datasource.UpstreamStatusError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, datasource.ErrUpstreamAuth):
		return http.StatusUnauthorized
	case errors.Is(err, datasource.ErrUpstreamRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, datasource.ErrUpstreamTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, datasource.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &statusErr):
		return http.StatusBadGateway
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, ingest.ErrLLMUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", code, "error", err)
	}
	writeError(w, code, err.Error())
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ingest.ValidationError{Field: name, Message: fmt.Sprintf("must be an integer, got %q", raw)}
	}
	return v, nil
}

func boolParam(r *http.Request, name string, def bool) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &ingest.ValidationError{Field: name, Message: fmt.Sprintf("must be a boolean, got %q", raw)}
	}
	return v, nil
}

func nonNil(a []models.Article) []models.Article {
	if a == nil {
		return []models.Article{}
	}
	return a
}

func providerName(cfg *config.Config) string {
	if cfg.Search.Provider == "" {
		return config.SearchNewsAPI
	}
	return cfg.Search.Provider
}

func driverName(cfg *config.Config) string {
	if cfg.Database.Driver == "" {
		return config.DriverSQLite
	}
	return cfg.Database.Driver
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
