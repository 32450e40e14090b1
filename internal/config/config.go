// Package config provides configuration management for coachctx.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

const (
	// DefaultWorkerPort is the default HTTP port for the worker service.
	DefaultWorkerPort = 37810

	// DefaultTotalBudget is the token budget used when a request omits one.
	DefaultTotalBudget = 8000

	// DefaultActivityWindowDays bounds the activity and feedback reads.
	DefaultActivityWindowDays = 14

	// DefaultSimilarityThreshold is the minimum cosine similarity for book matches.
	DefaultSimilarityThreshold = 0.7

	// DefaultBranchTimeoutMS caps each retrieval branch of an assembly.
	DefaultBranchTimeoutMS = 8000

	envPrefix = "COACHCTX_"
)

// Config holds the application configuration.
type Config struct {
	// Worker settings
	WorkerHost string `json:"worker_host"`
	WorkerPort int    `json:"worker_port"`
	APIToken   string `json:"api_token"` // empty disables token auth

	// Database settings
	DatabaseDSN string `json:"database_dsn"`
	MaxConns    int    `json:"max_conns"`

	// Embedding provider
	EmbeddingBaseURL       string `json:"embedding_base_url"`
	EmbeddingAPIKey        string `json:"embedding_api_key"`
	EmbeddingModel         string `json:"embedding_model"`
	EmbeddingDimensions    int    `json:"embedding_dimensions"`
	EmbeddingMaxInputChars int    `json:"embedding_max_input_chars"`
	EmbeddingBatchSize     int    `json:"embedding_batch_size"`
	EmbeddingBatchDelayMS  int    `json:"embedding_batch_delay_ms"`

	// Query embedding cache (empty RedisURL disables it)
	RedisURL             string `json:"redis_url"`
	EmbeddingCacheTTLSec int    `json:"embedding_cache_ttl_sec"`

	// Context assembly
	DefaultTotalBudget  int     `json:"default_total_budget"`
	ActivityWindowDays  int     `json:"activity_window_days"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	BranchTimeoutMS     int     `json:"branch_timeout_ms"`

	// Rate limiting (per client)
	RateLimitRPS   float64 `json:"rate_limit_rps"`
	RateLimitBurst int     `json:"rate_limit_burst"`

	LogLevel string `json:"log_level"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// DataDir returns the data directory path (~/.coachctx).
func DataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".coachctx")
}

// SettingsPath returns the settings file path.
func SettingsPath() string {
	return filepath.Join(DataDir(), "settings.json")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		WorkerHost:             "127.0.0.1",
		WorkerPort:             DefaultWorkerPort,
		DatabaseDSN:            "postgres://localhost:5432/coachctx?sslmode=disable",
		MaxConns:               10,
		EmbeddingBaseURL:       "https://api.openai.com/v1",
		EmbeddingModel:         "text-embedding-3-small",
		EmbeddingDimensions:    1536,
		EmbeddingMaxInputChars: 8000,
		EmbeddingBatchSize:     100,
		EmbeddingBatchDelayMS:  100,
		EmbeddingCacheTTLSec:   86400,
		DefaultTotalBudget:     DefaultTotalBudget,
		ActivityWindowDays:     DefaultActivityWindowDays,
		SimilarityThreshold:    DefaultSimilarityThreshold,
		BranchTimeoutMS:        DefaultBranchTimeoutMS,
		RateLimitRPS:           10,
		RateLimitBurst:         20,
		LogLevel:               "info",
	}
}

// Load reads the settings file at SettingsPath, then applies environment
// overrides.
func Load() (*Config, error) {
	return LoadFrom(SettingsPath(), os.Getenv)
}

// LoadFrom merges the JSON settings file at path over the defaults and then
// applies COACHCTX_* variables read through getenv. A missing file is not an
// error.
func LoadFrom(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	applyEnv(cfg, getenv)
	cfg.sanitize()
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(envPrefix + name)); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, err := strconv.Atoi(strings.TrimSpace(getenv(envPrefix + name))); err == nil {
			*dst = v
		}
	}
	float := func(name string, dst *float64) {
		if v, err := strconv.ParseFloat(strings.TrimSpace(getenv(envPrefix+name)), 64); err == nil {
			*dst = v
		}
	}

	str("WORKER_HOST", &cfg.WorkerHost)
	num("WORKER_PORT", &cfg.WorkerPort)
	str("API_TOKEN", &cfg.APIToken)
	str("DATABASE_DSN", &cfg.DatabaseDSN)
	num("MAX_CONNS", &cfg.MaxConns)
	str("EMBEDDING_BASE_URL", &cfg.EmbeddingBaseURL)
	str("EMBEDDING_API_KEY", &cfg.EmbeddingAPIKey)
	str("EMBEDDING_MODEL", &cfg.EmbeddingModel)
	num("EMBEDDING_DIMENSIONS", &cfg.EmbeddingDimensions)
	num("EMBEDDING_MAX_INPUT_CHARS", &cfg.EmbeddingMaxInputChars)
	num("EMBEDDING_BATCH_SIZE", &cfg.EmbeddingBatchSize)
	num("EMBEDDING_BATCH_DELAY_MS", &cfg.EmbeddingBatchDelayMS)
	str("REDIS_URL", &cfg.RedisURL)
	num("EMBEDDING_CACHE_TTL_SEC", &cfg.EmbeddingCacheTTLSec)
	num("DEFAULT_TOTAL_BUDGET", &cfg.DefaultTotalBudget)
	num("ACTIVITY_WINDOW_DAYS", &cfg.ActivityWindowDays)
	float("SIMILARITY_THRESHOLD", &cfg.SimilarityThreshold)
	num("BRANCH_TIMEOUT_MS", &cfg.BranchTimeoutMS)
	float("RATE_LIMIT_RPS", &cfg.RateLimitRPS)
	num("RATE_LIMIT_BURST", &cfg.RateLimitBurst)
	str("LOG_LEVEL", &cfg.LogLevel)
}

// sanitize replaces out-of-range values with defaults.
func (c *Config) sanitize() {
	d := Default()
	if c.WorkerPort <= 0 || c.WorkerPort > 65535 {
		c.WorkerPort = d.WorkerPort
	}
	if c.MaxConns <= 0 {
		c.MaxConns = d.MaxConns
	}
	if c.EmbeddingDimensions <= 0 {
		c.EmbeddingDimensions = d.EmbeddingDimensions
	}
	if c.EmbeddingBatchSize <= 0 {
		c.EmbeddingBatchSize = d.EmbeddingBatchSize
	}
	if c.DefaultTotalBudget < 3 {
		c.DefaultTotalBudget = d.DefaultTotalBudget
	}
	if c.ActivityWindowDays <= 0 {
		c.ActivityWindowDays = d.ActivityWindowDays
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.BranchTimeoutMS <= 0 {
		c.BranchTimeoutMS = d.BranchTimeoutMS
	}
}

// Get returns the global configuration, loading it if necessary.
func Get() *Config {
	configOnce.Do(func() {
		var err error
		globalConfig, err = Load()
		if err != nil {
			globalConfig = Default()
		}
	})

	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
