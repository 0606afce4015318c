// Package config provides configuration for the eterna memory service.
// Settings are loaded from environment variables with the ETERNA_ prefix,
// with sensible defaults for all options.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration settings for the service.
type Config struct {
	Storage    StorageConfig
	LLM        LLMConfig
	Extraction ExtractionConfig
	Conflict   ConflictConfig
	Retrieval  RetrievalConfig
}

// StorageConfig selects and configures the record store backend.
type StorageConfig struct {
	StorageEngine string // Storage engine: sqlite, postgres (default: sqlite)
	DataPath      string // SQLite data directory (default: ./data)
	PostgresDSN   string // PostgreSQL connection string
}

// LLMConfig contains LLM provider configuration.
type LLMConfig struct {
	LLMProvider          string // LLM provider: ollama, anthropic (default: ollama)
	OllamaURL            string // Ollama API URL (default: http://localhost:11434)
	OllamaModel          string // Ollama model for extraction (default: qwen2.5:7b)
	OllamaEmbeddingModel string // Ollama model for embeddings (default: nomic-embed-text)
	AnthropicAPIKey      string // Anthropic API key
	AnthropicModel       string // Anthropic model name (default: claude-haiku-4-5-20251001)
}

// ExtractionConfig tunes the extraction pipeline.
type ExtractionConfig struct {
	RatePerSecond    float64 // Extraction calls per second across all users (default: 5)
	Burst            int     // Rate limiter burst (default: 10)
	ContextFactLimit int     // Current facts included in the prompt (default: 30)
}

// ConflictConfig configures semantic conflict resolution.
type ConflictConfig struct {
	// FieldsFile is an optional YAML file overriding the built-in semantic
	// field table. When set, the file is watched and hot-reloaded.
	FieldsFile string
}

// RetrievalConfig tunes context block building.
type RetrievalConfig struct {
	TopK int // Records per context block (default: 20)
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	return &Config{
		Storage: StorageConfig{
			StorageEngine: getEnv("ETERNA_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("ETERNA_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("ETERNA_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			LLMProvider:          getEnv("ETERNA_LLM_PROVIDER", "ollama"),
			OllamaURL:            getEnv("ETERNA_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:          getEnv("ETERNA_OLLAMA_MODEL", "qwen2.5:7b"),
			OllamaEmbeddingModel: getEnv("ETERNA_EMBEDDING_MODEL", "nomic-embed-text"),
			AnthropicAPIKey:      getEnv("ETERNA_ANTHROPIC_API_KEY", ""),
			AnthropicModel:       getEnv("ETERNA_ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
		},
		Extraction: ExtractionConfig{
			RatePerSecond:    getEnvFloat("ETERNA_EXTRACTION_RATE", 5),
			Burst:            getEnvInt("ETERNA_EXTRACTION_BURST", 10),
			ContextFactLimit: getEnvInt("ETERNA_EXTRACTION_CONTEXT_FACTS", 30),
		},
		Conflict: ConflictConfig{
			FieldsFile: getEnv("ETERNA_CONFLICT_FIELDS_FILE", ""),
		},
		Retrieval: RetrievalConfig{
			TopK: getEnvInt("ETERNA_RETRIEVAL_TOP_K", 20),
		},
	}, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value, including when the variable cannot be parsed.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value, including when the variable cannot be parsed.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
