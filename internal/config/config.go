// Package config handles configuration loading for newsentiment.
// It supports YAML config files with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Search providers.
const (
	SearchNewsAPI = "newsapi"
	SearchRSS     = "rss"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config represents the complete application configuration.
type Config struct {
	Search    SearchConfig    `mapstructure:"search"    yaml:"search"`
	LLM       LLMConfig       `mapstructure:"llm"       yaml:"llm"`
	Database  DatabaseConfig  `mapstructure:"database"  yaml:"database"`
	Ingest    IngestConfig    `mapstructure:"ingest"    yaml:"ingest"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
}

// SearchConfig holds the news search provider settings.
type SearchConfig struct {
	Provider   string        `mapstructure:"provider"     yaml:"provider"` // "newsapi" or "rss"
	NewsAPIKey string        `mapstructure:"newsapi_key"  yaml:"newsapi_key"`
	NewsAPIURL string        `mapstructure:"newsapi_url"  yaml:"newsapi_url"`
	RSSURL     string        `mapstructure:"rss_url"      yaml:"rss_url"`
	RSSRegion  string        `mapstructure:"rss_region"   yaml:"rss_region"`
	Language   string        `mapstructure:"language"     yaml:"language"`
	SortBy     string        `mapstructure:"sort_by"      yaml:"sort_by"`
	Timeout    time.Duration `mapstructure:"timeout"      yaml:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"   yaml:"rate_limit"` // requests per second
	RateBurst  int           `mapstructure:"rate_burst"   yaml:"rate_burst"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"    yaml:"cache_ttl"`
	CacheSize  int           `mapstructure:"cache_size"   yaml:"cache_size"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Primary      string        `mapstructure:"primary"        yaml:"primary"` // "groq", "openai", "ollama"
	GroqKey      string        `mapstructure:"groq_key"       yaml:"groq_key"`
	GroqURL      string        `mapstructure:"groq_url"       yaml:"groq_url"`
	OpenAIKey    string        `mapstructure:"openai_key"     yaml:"openai_key"`
	OllamaURL    string        `mapstructure:"ollama_url"     yaml:"ollama_url"`
	Model        string        `mapstructure:"model"          yaml:"model"`
	Temperature  float64       `mapstructure:"temperature"    yaml:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"     yaml:"max_tokens"`
	MaxRetries   int           `mapstructure:"max_retries"    yaml:"max_retries"`
	Concurrency  int           `mapstructure:"concurrency"    yaml:"concurrency"`
	StageTimeout time.Duration `mapstructure:"stage_timeout"  yaml:"stage_timeout"`
}

// DatabaseConfig selects and configures the article store.
type DatabaseConfig struct {
	Driver         string `mapstructure:"driver"          yaml:"driver"` // "postgres" or "sqlite"
	URL            string `mapstructure:"url"             yaml:"url"`
	Path           string `mapstructure:"path"            yaml:"path"`
	MaxConns       int32  `mapstructure:"max_conns"       yaml:"max_conns"`
	ConnectRetries int    `mapstructure:"connect_retries" yaml:"connect_retries"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"    yaml:"auto_migrate"`
}

// IngestConfig controls persistence and reanalysis workers.
type IngestConfig struct {
	BackgroundSave    bool          `mapstructure:"background_save"     yaml:"background_save"`
	QueueSize         int           `mapstructure:"queue_size"          yaml:"queue_size"`
	SaveTimeout       time.Duration `mapstructure:"save_timeout"        yaml:"save_timeout"`
	ReanalyzeDaysBack int           `mapstructure:"reanalyze_days_back" yaml:"reanalyze_days_back"`
}

// SchedulerConfig configures periodic watchlist ingestion.
type SchedulerConfig struct {
	Enabled    bool     `mapstructure:"enabled"     yaml:"enabled"`
	Spec       string   `mapstructure:"spec"        yaml:"spec"` // cron expression
	Timezone   string   `mapstructure:"timezone"    yaml:"timezone"`
	Keywords   []string `mapstructure:"keywords"    yaml:"keywords"`
	Days       int      `mapstructure:"days"        yaml:"days"`
	MaxResults int      `mapstructure:"max_results" yaml:"max_results"`
	UseLLM     bool     `mapstructure:"use_llm"     yaml:"use_llm"`
}

// APIConfig holds HTTP API server settings.
type APIConfig struct {
	Host           string        `mapstructure:"host"            yaml:"host"`
	Port           int           `mapstructure:"port"            yaml:"port"`
	CORSOrigins    []string      `mapstructure:"cors_origins"    yaml:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.newsentiment/config.yaml (home directory)
//  3. /etc/newsentiment/config.yaml (system)
//
// Environment variables override config file values.
// Format: NEWSENTIMENT_<SECTION>_<KEY>, e.g., NEWSENTIMENT_DATABASE_DRIVER
func Load() (*Config, error) {
	v := newViper()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".newsentiment"))
	v.AddConfigPath("/etc/newsentiment")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return unmarshal(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("NEWSENTIMENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("search.provider", SearchNewsAPI)
	v.SetDefault("search.newsapi_key", "")
	v.SetDefault("search.newsapi_url", "https://newsapi.org")
	v.SetDefault("search.rss_url", "https://news.google.com/rss/search")
	v.SetDefault("search.rss_region", "US")
	v.SetDefault("search.language", "es")
	v.SetDefault("search.sort_by", "popularity")
	v.SetDefault("search.timeout", 10*time.Second)
	v.SetDefault("search.rate_limit", 1.0)
	v.SetDefault("search.rate_burst", 2)
	v.SetDefault("search.cache_ttl", 5*time.Minute)
	v.SetDefault("search.cache_size", 128)

	v.SetDefault("llm.primary", "groq")
	v.SetDefault("llm.groq_key", "")
	v.SetDefault("llm.groq_url", "https://api.groq.com/openai/v1")
	v.SetDefault("llm.openai_key", "")
	v.SetDefault("llm.ollama_url", "")
	v.SetDefault("llm.model", "") // empty: each provider uses its own default
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.concurrency", 4)
	v.SetDefault("llm.stage_timeout", 60*time.Second)

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.url", "")
	v.SetDefault("database.path", "newsentiment.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("ingest.background_save", true)
	v.SetDefault("ingest.queue_size", 64)
	v.SetDefault("ingest.save_timeout", 60*time.Second)
	v.SetDefault("ingest.reanalyze_days_back", 7)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.spec", "0 * * * *")
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.keywords", []string{})
	v.SetDefault("scheduler.days", 1)
	v.SetDefault("scheduler.max_results", 20)
	v.SetDefault("scheduler.use_llm", false)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.cors_origins", []string{"http://localhost:3000", "http://localhost:8501"})
	v.SetDefault("api.request_timeout", 120*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv reads the conventional unprefixed key variables. They win
// over config file values so deployments can keep secrets out of YAML.
func overrideFromEnv(cfg *Config) {
	if key := os.Getenv("NEWSAPI_KEY"); key != "" {
		cfg.Search.NewsAPIKey = key
	}
	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		cfg.LLM.GroqKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.LLM.OpenAIKey = key
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	switch c.Search.Provider {
	case SearchNewsAPI, SearchRSS:
	default:
		return fmt.Errorf("config: unknown search.provider %q", c.Search.Provider)
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			return errors.New("config: database.url is required for the postgres driver")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.Database.Driver)
	}
	if c.LLM.Concurrency < 1 {
		return fmt.Errorf("config: llm.concurrency must be >= 1, got %d", c.LLM.Concurrency)
	}
	return nil
}

// SearchConfigured reports whether the configured search provider can run.
// The RSS provider needs no credentials.
func (c *Config) SearchConfigured() bool {
	return c.Search.Provider == SearchRSS || c.Search.NewsAPIKey != ""
}

// LLMConfigured reports whether at least one LLM provider can be registered.
func (c *Config) LLMConfigured() bool {
	return c.LLM.GroqKey != "" || c.LLM.OpenAIKey != "" || c.LLM.OllamaURL != ""
}

// Addr returns the API listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
