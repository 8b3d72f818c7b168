package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/seenimoa/newsentiment/internal/config"
)

// Router sends chat requests to the primary provider and falls back through
// the remaining registered providers in order. It satisfies LLMProvider, so
// agents can be built over a Router or a single provider alike.
type Router struct {
	mu         sync.RWMutex
	providers  map[string]LLMProvider
	primary    string
	fallbacks  []string
	maxRetries int
	retryDelay time.Duration
	log        *slog.Logger
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithFallbacks sets the fallback provider chain.
func WithFallbacks(providers ...string) RouterOption {
	return func(r *Router) { r.fallbacks = providers }
}

// WithMaxRetries sets the maximum number of retry attempts per provider.
func WithMaxRetries(n int) RouterOption {
	return func(r *Router) { r.maxRetries = n }
}

// WithRetryDelay sets the base delay between retries.
func WithRetryDelay(d time.Duration) RouterOption {
	return func(r *Router) { r.retryDelay = d }
}

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) { r.log = l }
}

// NewRouter creates a new LLM router with the given primary provider.
func NewRouter(primary string, opts ...RouterOption) *Router {
	r := &Router{
		providers:  make(map[string]LLMProvider),
		primary:    primary,
		maxRetries: 2,
		retryDelay: time.Second,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProvider adds a provider to the router.
func (r *Router) RegisterProvider(provider LLMProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// GetProvider returns a registered provider by name.
func (r *Router) GetProvider(name string) (LLMProvider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Name returns the name of the primary provider.
func (r *Router) Name() string {
	return "router/" + r.primary
}

// Chat routes a chat request through the provider chain with fallback.
func (r *Router) Chat(ctx context.Context, messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {
	chain := r.providerChain()
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	for _, name := range chain {
		provider, ok := r.GetProvider(name)
		if !ok {
			continue
		}

		resp, err := r.chatWithRetry(ctx, provider, messages, tools, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.Warn("llm provider failed, trying next", "provider", name, "error", err)
	}

	if lastErr == nil {
		return nil, ErrNoProviders
	}
	return nil, fmt.Errorf("llm/router: all providers failed: %w", lastErr)
}

// Ping checks the first reachable provider in the chain.
func (r *Router) Ping(ctx context.Context) error {
	var lastErr error = ErrNoProviders
	for _, name := range r.providerChain() {
		p, ok := r.GetProvider(name)
		if !ok {
			continue
		}
		if lastErr = p.Ping(ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// ProviderNames returns the provider chain in routing order.
func (r *Router) ProviderNames() []string {
	var names []string
	for _, name := range r.providerChain() {
		if _, ok := r.GetProvider(name); ok {
			names = append(names, name)
		}
	}
	return names
}

func (r *Router) providerChain() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := []string{r.primary}
	for _, fb := range r.fallbacks {
		if fb != r.primary {
			chain = append(chain, fb)
		}
	}
	return chain
}

func (r *Router) chatWithRetry(ctx context.Context, provider LLMProvider,
	messages []Message, tools []Tool, opts *ChatOptions) (*Response, error) {

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := provider.Chat(ctx, messages, tools, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// retryable reports whether another attempt at the same provider can help.
// Credential, model and context-size errors will not change on retry.
func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNoAPIKey),
		errors.Is(err, ErrInvalidModel),
		errors.Is(err, ErrContextLength),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// NewRouterFromConfig creates a Router with every provider the config has
// credentials for. The configured primary is tried first; the others become
// fallbacks in the order groq, openai, ollama.
func NewRouterFromConfig(cfg config.LLMConfig, log *slog.Logger) (*Router, error) {
	router := NewRouter(cfg.Primary,
		WithMaxRetries(cfg.MaxRetries),
		WithRetryDelay(time.Second),
		WithLogger(log),
	)

	modelFor := func(provider, fallback string) string {
		if cfg.Primary == provider && cfg.Model != "" {
			return cfg.Model
		}
		return fallback
	}

	var fallbacks []string
	register := func(p LLMProvider) {
		router.RegisterProvider(p)
		if p.Name() != cfg.Primary {
			fallbacks = append(fallbacks, p.Name())
		}
	}

	if cfg.GroqKey != "" {
		opts := []OpenAIOption{WithOpenAIModel(modelFor(ProviderGroq, DefaultGroqModel))}
		if cfg.GroqURL != "" {
			opts = append(opts, WithOpenAIBaseURL(cfg.GroqURL))
		}
		if p, err := NewGroqProvider(cfg.GroqKey, opts...); err == nil {
			register(p)
		}
	}

	if cfg.OpenAIKey != "" {
		if p, err := NewOpenAIProvider(cfg.OpenAIKey,
			WithOpenAIModel(modelFor(ProviderOpenAI, DefaultOpenAIModel)),
		); err == nil {
			register(p)
		}
	}

	if cfg.OllamaURL != "" {
		if p, err := NewOllamaProvider(cfg.OllamaURL,
			WithOllamaModel(modelFor(ProviderOllama, DefaultOllamaModel)),
		); err == nil {
			register(p)
		}
	}

	if len(router.providers) == 0 {
		return nil, ErrNoProviders
	}

	// A primary without credentials is skipped; the first fallback leads.
	if _, ok := router.providers[cfg.Primary]; !ok {
		router.primary = fallbacks[0]
		fallbacks = fallbacks[1:]
	}
	router.fallbacks = fallbacks
	return router, nil
}
