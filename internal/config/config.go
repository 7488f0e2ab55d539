package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Hunter     HunterConfig     `yaml:"hunter" mapstructure:"hunter"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	IndexPath   string `yaml:"index_path" mapstructure:"index_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// HunterConfig holds executive email finder settings.
type HunterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Token     string `yaml:"token" mapstructure:"token"`
	Model     string `yaml:"model" mapstructure:"model"`
	Workers   int    `yaml:"workers" mapstructure:"workers"`
	CachePath string `yaml:"cache_path" mapstructure:"cache_path"`
}

// ProvidersConfig configures the provider chain and per-call guards.
type ProvidersConfig struct {
	ChainFile        string   `yaml:"chain_file" mapstructure:"chain_file"`
	Order            []string `yaml:"order" mapstructure:"order"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec       float64  `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int      `yaml:"burst" mapstructure:"burst"`
	BreakerThreshold int      `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// EnrichConfig configures candidate selection.
type EnrichConfig struct {
	QualityThreshold int `yaml:"quality_threshold" mapstructure:"quality_threshold"`
}

// QualityConfig holds company quality scoring weights.
type QualityConfig struct {
	Weights QualityWeights `yaml:"weights" mapstructure:"weights"`
}

// QualityWeights are the per-field contributions to a company's quality
// score. They must sum to 100.
type QualityWeights struct {
	Name            int `yaml:"name" mapstructure:"name"`
	Industry        int `yaml:"industry" mapstructure:"industry"`
	Location        int `yaml:"location" mapstructure:"location"`
	Website         int `yaml:"website" mapstructure:"website"`
	Description     int `yaml:"description" mapstructure:"description"`
	VerifiedContact int `yaml:"verified_contact" mapstructure:"verified_contact"`
}

// Sum returns the total of all weights.
func (w QualityWeights) Sum() int {
	return w.Name + w.Industry + w.Location + w.Website + w.Description + w.VerifiedContact
}

// SearchConfig configures hybrid ranking.
type SearchConfig struct {
	LexicalWeight     float64 `yaml:"lexical_weight" mapstructure:"lexical_weight"`
	VectorWeight      float64 `yaml:"vector_weight" mapstructure:"vector_weight"`
	LexicalCandidates int     `yaml:"lexical_candidates" mapstructure:"lexical_candidates"`
	VectorCandidates  int     `yaml:"vector_candidates" mapstructure:"vector_candidates"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       TokenPricing            `yaml:"jina" mapstructure:"jina"`
	Hunter     RequestPricing          `yaml:"hunter" mapstructure:"hunter"`
	Embedding  TokenPricing            `yaml:"embedding" mapstructure:"embedding"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
	PerMTok  float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// TokenPricing is a flat rate per million tokens.
type TokenPricing struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// RequestPricing is a flat rate per request.
type RequestPricing struct {
	PerRequest float64 `yaml:"per_request" mapstructure:"per_request"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentCompanies int `yaml:"max_concurrent_companies" mapstructure:"max_concurrent_companies"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "company-intel.db")
	v.SetDefault("store.index_path", "company-intel.bleve")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.max_concurrent_companies", 5)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("hunter.limit", 10)
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.workers", 4)
	v.SetDefault("providers.chain_file", "providers.yaml")
	v.SetDefault("providers.order", []string{"webresearch", "contactfinder"})
	v.SetDefault("providers.timeout_secs", 30)
	v.SetDefault("providers.rate_per_sec", 2.0)
	v.SetDefault("providers.burst", 2)
	v.SetDefault("providers.breaker_threshold", 5)
	v.SetDefault("providers.breaker_reset_secs", 30)
	v.SetDefault("enrich.quality_threshold", 80)
	v.SetDefault("quality.weights.name", 15)
	v.SetDefault("quality.weights.industry", 15)
	v.SetDefault("quality.weights.location", 15)
	v.SetDefault("quality.weights.website", 15)
	v.SetDefault("quality.weights.description", 20)
	v.SetDefault("quality.weights.verified_contact", 20)
	v.SetDefault("search.lexical_weight", 0.4)
	v.SetDefault("search.vector_weight", 0.6)
	v.SetDefault("search.lexical_candidates", 100)
	v.SetDefault("search.vector_candidates", 100)
	v.SetDefault("pricing.perplexity.per_query", 0.005)
	v.SetDefault("pricing.perplexity.per_mtok", 1.0)
	v.SetDefault("pricing.jina.per_mtok", 0.02)
	v.SetDefault("pricing.hunter.per_request", 0.01)
	v.SetDefault("pricing.embedding.per_mtok", 0.02)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				errs = append(errs, "store.sqlite_path is required for the sqlite driver")
			}
		case "memory":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
		}
	}
	needEmbedding := func() {
		if c.Embedding.Model == "" {
			errs = append(errs, "embedding.model is required")
		}
		if c.Embedding.Workers < 1 || c.Embedding.Workers > 64 {
			errs = append(errs, "embedding.workers must be between 1 and 64")
		}
	}
	needSearch := func() {
		if c.Search.LexicalWeight < 0 || c.Search.VectorWeight < 0 {
			errs = append(errs, "search weights must be >= 0")
		}
		if sum := c.Search.LexicalWeight + c.Search.VectorWeight; sum < 0.999 || sum > 1.001 {
			errs = append(errs, fmt.Sprintf("search weights must sum to 1, got %.3f", sum))
		}
	}
	needEnrich := func() {
		if c.Perplexity.Key == "" && c.Hunter.Key == "" {
			errs = append(errs, "at least one of perplexity.key or hunter.key is required")
		}
		if c.Batch.MaxConcurrentCompanies < 1 || c.Batch.MaxConcurrentCompanies > 50 {
			errs = append(errs, "batch.max_concurrent_companies must be between 1 and 50")
		}
		if c.Providers.TimeoutSecs <= 0 {
			errs = append(errs, "providers.timeout_secs must be > 0")
		}
		if c.Enrich.QualityThreshold < 0 || c.Enrich.QualityThreshold > 100 {
			errs = append(errs, "enrich.quality_threshold must be between 0 and 100")
		}
		w := c.Quality.Weights
		if w.Name < 0 || w.Industry < 0 || w.Location < 0 || w.Website < 0 || w.Description < 0 || w.VerifiedContact < 0 {
			errs = append(errs, "quality.weights values must be >= 0")
		} else if w.Sum() != 100 {
			errs = append(errs, fmt.Sprintf("quality.weights must sum to 100, got %d", w.Sum()))
		}
	}

	switch mode {
	case "enrich":
		needStore()
		needEnrich()
	case "reindex":
		needStore()
		needEmbedding()
	case "search":
		needStore()
		needEmbedding()
		needSearch()
	case "serve":
		needStore()
		needEnrich()
		needEmbedding()
		needSearch()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
