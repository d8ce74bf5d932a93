package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingAPIKey     = errors.New("TAVILY_API_KEY is required")
	ErrMissingDB         = errors.New("DATABASE_URL is required for the postgres store")
	ErrInvalidStore      = errors.New("invalid store driver")
	ErrInvalidCacheType  = errors.New("invalid cache type")
	ErrInvalidRateLimit  = errors.New("rate limit must not be negative")
	ErrInvalidMaxRetries = errors.New("max retries must not be negative")
)

type Config struct {
	Tavily    TavilyConfig    `yaml:"tavily"`
	Store     StoreConfig     `yaml:"store"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Log       LogConfig       `yaml:"log"`
	Cache     CacheConfig     `yaml:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type TavilyConfig struct {
	APIKey        string        `yaml:"api_key"`
	BaseURL       string        `yaml:"base_url"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
	HTTPProxy     string        `yaml:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy"`
	ClientSource  string        `yaml:"client_source"`
	SkipNormalize bool          `yaml:"skip_normalize"`
}

// StoreConfig selects the vector store used by hybrid search.
type StoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
	URL        string `yaml:"url"`
	Table      string `yaml:"table"`
}

type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	EmbeddingModel string `yaml:"embedding_model"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type CacheConfig struct {
	Type string        `yaml:"type"`
	TTL  time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

func defaults() *Config {
	return &Config{
		Tavily: TavilyConfig{
			BaseURL:    "https://api.tavily.com",
			Timeout:    60 * time.Second,
			MaxRetries: 3,
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "tavily-hybrid.db",
			Table:      "documents",
		},
		OpenAI: OpenAIConfig{
			BaseURL:        "https://api.openai.com/v1",
			EmbeddingModel: "text-embedding-3-small",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Cache: CacheConfig{
			Type: "memory",
			TTL:  time.Hour,
		},
	}
}

// Load reads defaults, then the YAML file at path (if any), then the
// environment. Environment variables win.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Tavily.APIKey = getEnvOrDefault("TAVILY_API_KEY", c.Tavily.APIKey)
	c.Tavily.BaseURL = getEnvOrDefault("TAVILY_BASE_URL", c.Tavily.BaseURL)
	c.Tavily.Timeout = getEnvSecondsOrDefault("TAVILY_TIMEOUT_SEC", c.Tavily.Timeout)
	c.Tavily.MaxRetries = getEnvIntOrDefault("TAVILY_MAX_RETRIES", c.Tavily.MaxRetries)
	c.Tavily.HTTPProxy = getEnvOrDefault("TAVILY_HTTP_PROXY", c.Tavily.HTTPProxy)
	c.Tavily.HTTPSProxy = getEnvOrDefault("TAVILY_HTTPS_PROXY", c.Tavily.HTTPSProxy)
	c.Tavily.ClientSource = getEnvOrDefault("TAVILY_CLIENT_SOURCE", c.Tavily.ClientSource)
	c.Tavily.SkipNormalize = getEnvBoolOrDefault("TAVILY_SKIP_NORMALIZE", c.Tavily.SkipNormalize)

	c.Store.Driver = getEnvOrDefault("STORE_DRIVER", c.Store.Driver)
	c.Store.SQLitePath = getEnvOrDefault("SQLITE_PATH", c.Store.SQLitePath)
	c.Store.URL = getEnvOrDefault("DATABASE_URL", c.Store.URL)
	c.Store.Table = getEnvOrDefault("STORE_TABLE", c.Store.Table)

	c.OpenAI.APIKey = getEnvOrDefault("OPENAI_API_KEY", c.OpenAI.APIKey)
	c.OpenAI.BaseURL = getEnvOrDefault("OPENAI_BASE_URL", c.OpenAI.BaseURL)
	c.OpenAI.EmbeddingModel = getEnvOrDefault("OPENAI_EMBEDDING_MODEL", c.OpenAI.EmbeddingModel)

	c.Log.Level = getEnvOrDefault("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("LOG_FORMAT", c.Log.Format)

	c.Cache.Type = getEnvOrDefault("CACHE_TYPE", c.Cache.Type)
	c.Cache.TTL = getEnvSecondsOrDefault("CACHE_TTL_SEC", c.Cache.TTL)

	c.RateLimit.RequestsPerMinute = getEnvIntOrDefault("RATE_LIMIT_PER_MINUTE", c.RateLimit.RequestsPerMinute)

	c.Metrics.Addr = getEnvOrDefault("METRICS_ADDR", c.Metrics.Addr)
}

func (c *Config) Validate() error {
	if c.Tavily.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.Tavily.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.URL == "" {
			return ErrMissingDB
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStore, c.Store.Driver)
	}
	switch c.Cache.Type {
	case "memory", "none":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCacheType, c.Cache.Type)
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		return ErrInvalidRateLimit
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvSecondsOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if sec, err := strconv.Atoi(value); err == nil {
			return time.Duration(sec) * time.Second
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
