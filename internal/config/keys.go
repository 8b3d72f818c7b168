package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "gsk...abc"
}

// CheckAPIKeys returns the status of every credential the service can use.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("NewsAPI Key", cfg.Search.NewsAPIKey, "NEWSAPI_KEY"),
		checkKey("Groq API Key", cfg.LLM.GroqKey, "GROQ_API_KEY"),
		checkKey("OpenAI API Key", cfg.LLM.OpenAIKey, "OPENAI_API_KEY"),
		checkKey("Database URL", cfg.Database.URL, "DATABASE_URL"),
	}
}

func checkKey(name, value, envVar string) KeyStatus {
	status := KeyStatus{
		Name:  name,
		IsSet: value != "",
	}

	switch {
	case value == "":
		status.Source = KeySourceNone
	case os.Getenv(envVar) != "":
		status.Source = KeySourceEnv
		status.Masked = maskKey(value)
	default:
		status.Source = KeySourceConfig
		status.Masked = maskKey(value)
	}

	return status
}

// maskKey masks a secret for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
