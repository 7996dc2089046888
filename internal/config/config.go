// Package config loads and validates service configuration from a YAML
// file with ${ENV_VAR} substitution, falling back to plain environment
// variables when no file is given.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Quotes     QuotesConfig     `yaml:"quotes"`
	MarketData MarketDataConfig `yaml:"marketdata"`
	AI         AIConfig         `yaml:"ai"`
	Ledger     LedgerConfig     `yaml:"ledger"`
	Sim        SimConfig        `yaml:"sim"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DatabaseConfig holds the Postgres connection. Empty URL selects the
// in-memory store.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the optional read-through cache settings.
type RedisConfig struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

// QuotesConfig seeds the synthetic quote generator.
type QuotesConfig struct {
	Seed int64 `yaml:"seed"`
}

// MarketDataConfig holds the Finnhub candle API settings.
type MarketDataConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// AIConfig holds the generative model settings.
type AIConfig struct {
	Model   string        `yaml:"model"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// LedgerConfig bounds the optimistic-concurrency retry policy.
type LedgerConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// SimConfig drives the simulated price refresher.
type SimConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	MaxDrift float64       `yaml:"max_drift"`
}

// Load reads a YAML config file, expanding ${VAR} references from the
// environment, then applies defaults and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromEnv builds a config purely from environment variables, for
// container deployments without a mounted file.
func FromEnv() (*Config, error) {
	cfg := Config{
		Server:     ServerConfig{Port: os.Getenv("PORT")},
		Database:   DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Redis:      RedisConfig{URL: os.Getenv("REDIS_URL")},
		MarketData: MarketDataConfig{APIKey: os.Getenv("FINNHUB_API_KEY")},
		AI: AIConfig{
			Model:  os.Getenv("AI_MODEL"),
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		Sim: SimConfig{Enabled: os.Getenv("SIM_DISABLED") == ""},
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
