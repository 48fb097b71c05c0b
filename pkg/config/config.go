package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/ekaya-inc/ekaya-drafts/pkg/models"
)

// DefaultConfigPath is read when no explicit path is given.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-drafts.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	LLM       LLMConfig       `yaml:"llm"`
	Streaming StreamingConfig `yaml:"streaming"`
	Cache     CacheConfig     `yaml:"cache"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Quotas    QuotaConfig     `yaml:"quotas"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_drafts"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis connection settings. Redis is only used when the
// response cache store is "redis".
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// LLMConfig selects and configures the model provider.
type LLMConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider      string `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint      string `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""` // Empty uses the provider's public API
	StandardModel string `yaml:"standard_model" env:"LLM_STANDARD_MODEL" env-default:"gpt-4o"`
	FastModel     string `yaml:"fast_model" env:"LLM_FAST_MODEL" env-default:"gpt-4o-mini"`
	MaxTokens     int    `yaml:"max_tokens" env:"LLM_MAX_TOKENS" env-default:"1024"`

	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`    // Secret - not in YAML
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML

	// Circuit breaker around the provider.
	BreakerThreshold  int           `yaml:"breaker_threshold" env:"LLM_BREAKER_THRESHOLD" env-default:"5"`
	BreakerResetAfter time.Duration `yaml:"breaker_reset_after" env:"LLM_BREAKER_RESET_AFTER" env-default:"30s"`
}

// APIKey returns the secret for the configured provider.
func (c *LLMConfig) APIKey() string {
	if c.Provider == ProviderAnthropic {
		return c.AnthropicAPIKey
	}
	return c.OpenAIAPIKey
}

// Provider names accepted in LLMConfig.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// StreamingConfig holds orchestrator tunables. The timing values are
// defaults, not contracts.
type StreamingConfig struct {
	MaxRetries              int           `yaml:"max_retries" env:"STREAM_MAX_RETRIES" env-default:"3"`
	RetryDelay              time.Duration `yaml:"retry_delay" env:"STREAM_RETRY_DELAY" env-default:"1s"`
	Timeout                 time.Duration `yaml:"timeout" env:"STREAM_TIMEOUT" env-default:"30s"`
	BatchSize               int           `yaml:"batch_size" env:"STREAM_BATCH_SIZE" env-default:"10"`
	ReplayDelay             time.Duration `yaml:"replay_delay" env:"STREAM_REPLAY_DELAY" env-default:"50ms"`
	UseFallbackModel        bool          `yaml:"use_fallback_model" env:"STREAM_USE_FALLBACK_MODEL" env-default:"true"`
	MinQualityScore         float64       `yaml:"min_quality_score" env:"STREAM_MIN_QUALITY_SCORE" env-default:"0.7"`
	MaxConcurrentVariations int           `yaml:"max_concurrent_variations" env:"STREAM_MAX_CONCURRENT_VARIATIONS" env-default:"4"`
	UsageQueueSize          int           `yaml:"usage_queue_size" env:"STREAM_USAGE_QUEUE_SIZE" env-default:"100"`
}

// Cache store names accepted in CacheConfig.Store.
const (
	CacheStoreMemory = "memory"
	CacheStoreRedis  = "redis"
)

// CacheConfig configures the response cache.
type CacheConfig struct {
	Store     string        `yaml:"store" env:"CACHE_STORE" env-default:"memory"`
	TTL       time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"5m"`
	KeyPrefix string        `yaml:"key_prefix" env:"CACHE_KEY_PREFIX" env-default:"drafts:response:"`
}

// PromptConfig configures context assembly.
type PromptConfig struct {
	// HistoryThreshold is the number of turns above which earlier turns are
	// condensed into the system prompt.
	HistoryThreshold int `yaml:"history_threshold" env:"PROMPT_HISTORY_THRESHOLD" env-default:"10"`
	// TokenBudget bounds the verbatim history sent to the model.
	TokenBudget int `yaml:"token_budget" env:"PROMPT_TOKEN_BUDGET" env-default:"3000"`
	// ContextBudget bounds the condensed-context block.
	ContextBudget int `yaml:"context_budget" env:"PROMPT_CONTEXT_BUDGET" env-default:"500"`
	// Compaction asks the model for a digest of dropped turns.
	Compaction bool `yaml:"compaction" env:"PROMPT_COMPACTION" env-default:"false"`
}

// TierQuota mirrors models.QuotaLimits with config tags.
type TierQuota struct {
	DailyTokens   int64   `yaml:"daily_tokens"`
	MonthlyTokens int64   `yaml:"monthly_tokens"`
	DailyCost     float64 `yaml:"daily_cost"`
	MonthlyCost   float64 `yaml:"monthly_cost"`
}

// QuotaConfig holds per-tier limit overrides. Tiers that are left out keep
// their defaults.
type QuotaConfig struct {
	Free       *TierQuota `yaml:"free"`
	Starter    *TierQuota `yaml:"starter"`
	Pro        *TierQuota `yaml:"pro"`
	Enterprise *TierQuota `yaml:"enterprise"`
}

// Overrides returns the configured tiers as quota limits.
func (c *QuotaConfig) Overrides() map[models.Tier]models.QuotaLimits {
	out := make(map[models.Tier]models.QuotaLimits)
	add := func(tier models.Tier, q *TierQuota) {
		if q == nil {
			return
		}
		out[tier] = models.QuotaLimits{
			DailyTokens:   q.DailyTokens,
			MonthlyTokens: q.MonthlyTokens,
			DailyCost:     q.DailyCost,
			MonthlyCost:   q.MonthlyCost,
		}
	}
	add(models.TierFree, c.Free)
	add(models.TierStarter, c.Starter)
	add(models.TierPro, c.Pro)
	add(models.TierEnterprise, c.Enterprise)
	return out
}

// RateLimitConfig configures per-user HTTP request limiting.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"true"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RATE_LIMIT_RPS" env-default:"2"`
	Burst             int     `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"5"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom reads configuration from path with environment variable overrides.
// A missing file is not an error: configuration then comes from the
// environment and defaults alone.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("llm.provider must be %q or %q, got %q", ProviderOpenAI, ProviderAnthropic, c.LLM.Provider)
	}
	if c.LLM.StandardModel == "" {
		return fmt.Errorf("llm.standard_model is required")
	}

	switch c.Cache.Store {
	case CacheStoreMemory:
	case CacheStoreRedis:
		if c.Redis.Host == "" {
			return fmt.Errorf("cache.store is %q but redis.host is empty", CacheStoreRedis)
		}
	default:
		return fmt.Errorf("cache.store must be %q or %q, got %q", CacheStoreMemory, CacheStoreRedis, c.Cache.Store)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	if c.Streaming.MaxRetries < 1 {
		return fmt.Errorf("streaming.max_retries must be at least 1")
	}
	if c.Streaming.BatchSize < 1 {
		return fmt.Errorf("streaming.batch_size must be at least 1")
	}
	if c.Streaming.Timeout <= 0 {
		return fmt.Errorf("streaming.timeout must be positive")
	}
	if c.Streaming.MinQualityScore < 0 || c.Streaming.MinQualityScore > 1 {
		return fmt.Errorf("streaming.min_quality_score must be within [0,1]")
	}

	return nil
}

// IsDevelopment reports whether the service runs in a local/dev environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "local" || c.Env == "dev" || c.Env == "development"
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// ConnectionString returns a PostgreSQL connection URL.
func (c *DatabaseConfig) ConnectionString() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port),
		Path:     c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ResolveHostForDocker(c.Host), c.Port)
}
