package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dshills/kaze/internal/chunker"
	"github.com/dshills/kaze/internal/embedder"
	"github.com/dshills/kaze/internal/retry"
	"github.com/dshills/kaze/internal/storage"
	"github.com/dshills/kaze/pkg/types"
)

// EnvPrefix prefixes every environment override, e.g. KAZE_QUERY_LIMIT
const EnvPrefix = "KAZE"

// FileName is the config file looked up in the output directory
const FileName = "config.yaml"

// Config holds all configuration for kaze
type Config struct {
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Index     IndexConfig     `mapstructure:"index"`
	Query     QueryConfig     `mapstructure:"query"`
	Store     StoreConfig     `mapstructure:"store"`
}

// EmbeddingConfig selects and tunes the embedding provider
type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"` // openai, ollama, local; empty auto-detects
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	OllamaHost string        `mapstructure:"ollama_host"`
	Dimension  int           `mapstructure:"dimension"` // local provider only
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	CacheSize  int           `mapstructure:"cache_size"`
}

// IndexConfig holds ingestion defaults
type IndexConfig struct {
	FileBatchSize  int      `mapstructure:"file_batch_size"`
	ChunkBatchSize int      `mapstructure:"chunk_batch_size"`
	MaxFileSizeKB  int      `mapstructure:"max_file_size_kb"`       // files mode
	ChunkMaxSizeKB int      `mapstructure:"chunk_max_file_size_kb"` // chunks mode
	Workers        int      `mapstructure:"workers"` // 0 uses the CPU count
	Include        []string `mapstructure:"include"`
	Exclude        []string `mapstructure:"exclude"`
	Sequential     bool     `mapstructure:"sequential"`
}

// MaxFileSizeFor returns the size limit in KB for an extraction mode
func (c IndexConfig) MaxFileSizeFor(mode chunker.Mode) int {
	if mode == chunker.ModeFiles {
		return c.MaxFileSizeKB
	}
	return c.ChunkMaxSizeKB
}

// QueryConfig holds query defaults
type QueryConfig struct {
	Limit     int     `mapstructure:"limit"`
	Threshold float64 `mapstructure:"threshold"`
}

// StoreConfig tunes the SQLite store
type StoreConfig struct {
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// LoadOptions locates configuration sources
type LoadOptions struct {
	ConfigFile string // Explicit file; must exist
	OutputDir  string // Searched for config.yaml when ConfigFile is empty
	ProjectDir string // Searched for .env
}

// Load builds the configuration from defaults, an optional YAML file, a
// project .env file and the environment, in increasing precedence.
func Load(opts LoadOptions) (*Config, error) {
	if opts.ProjectDir != "" {
		// Existing environment variables win over .env entries
		envFile := filepath.Join(opts.ProjectDir, ".env")
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Well-known variables used by the providers themselves
	_ = v.BindEnv("embedding.api_key", "KAZE_EMBEDDING_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.base_url", "KAZE_EMBEDDING_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("embedding.ollama_host", "KAZE_EMBEDDING_OLLAMA_HOST", "OLLAMA_HOST")
	_ = v.BindEnv("embedding.model", "KAZE_EMBEDDING_MODEL", "KAZE_MODEL")

	switch {
	case opts.ConfigFile != "":
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	case opts.OutputDir != "":
		path := filepath.Join(opts.OutputDir, FileName)
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("embedding.provider", "")
	v.SetDefault("embedding.model", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.ollama_host", embedder.DefaultOllamaHost)
	v.SetDefault("embedding.dimension", embedder.LocalDimension)
	v.SetDefault("embedding.timeout", "60s")
	v.SetDefault("embedding.max_retries", 3)
	v.SetDefault("embedding.cache_size", 10000)

	v.SetDefault("index.file_batch_size", 10)
	v.SetDefault("index.chunk_batch_size", 20)
	v.SetDefault("index.max_file_size_kb", 8)
	v.SetDefault("index.chunk_max_file_size_kb", 100)
	v.SetDefault("index.workers", 0)
	v.SetDefault("index.include", []string{})
	v.SetDefault("index.exclude", []string{})
	v.SetDefault("index.sequential", false)

	v.SetDefault("query.limit", 10)
	v.SetDefault("query.threshold", 0.2)

	v.SetDefault("store.busy_timeout", "5s")
	v.SetDefault("store.max_retries", 5)
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	switch strings.ToLower(c.Embedding.Provider) {
	case "", embedder.ProviderOpenAI, embedder.ProviderOllama, embedder.ProviderLocal:
	default:
		return fmt.Errorf("%w: unknown embedding provider %q", types.ErrInvalidRequest, c.Embedding.Provider)
	}
	if c.Embedding.Timeout <= 0 {
		return fmt.Errorf("%w: embedding timeout must be positive", types.ErrInvalidRequest)
	}
	if c.Embedding.MaxRetries < 1 {
		return fmt.Errorf("%w: embedding max_retries must be at least 1", types.ErrInvalidRequest)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("%w: embedding dimension cannot be negative", types.ErrInvalidRequest)
	}
	if c.Index.FileBatchSize < 1 || c.Index.ChunkBatchSize < 1 {
		return fmt.Errorf("%w: batch sizes must be at least 1", types.ErrInvalidRequest)
	}
	if c.Index.Workers < 0 {
		return fmt.Errorf("%w: workers cannot be negative", types.ErrInvalidRequest)
	}
	if c.Query.Limit < 1 {
		return fmt.Errorf("%w: query limit must be at least 1", types.ErrInvalidRequest)
	}
	if c.Query.Threshold < 0 || c.Query.Threshold > 1 {
		return fmt.Errorf("%w: query threshold must be within [0, 1]", types.ErrInvalidRequest)
	}
	if c.Store.MaxRetries < 1 {
		return fmt.Errorf("%w: store max_retries must be at least 1", types.ErrInvalidRequest)
	}
	return nil
}

// EmbedderConfig maps the embedding section onto the provider factory
func (c *Config) EmbedderConfig() embedder.Config {
	ec := embedder.Config{
		Provider:  c.Embedding.Provider,
		Model:     c.Embedding.Model,
		APIKey:    c.Embedding.APIKey,
		BaseURL:   c.Embedding.BaseURL,
		Dimension: c.Embedding.Dimension,
	}
	if embedder.DetectProvider(ec) == embedder.ProviderOllama {
		ec.BaseURL = c.Embedding.OllamaHost
	}
	return ec
}

// AdapterConfig returns the adapter tuning for the embedding section
func (c *Config) AdapterConfig() embedder.AdapterConfig {
	ac := embedder.DefaultAdapterConfig()
	ac.Timeout = c.Embedding.Timeout
	ac.Retry.MaxAttempts = c.Embedding.MaxRetries
	ac.CacheSize = c.Embedding.CacheSize
	return ac
}

// StorageOptions returns the store tuning
func (c *Config) StorageOptions() storage.Options {
	opts := storage.DefaultOptions()
	opts.BusyTimeout = c.Store.BusyTimeout
	opts.Retry = retry.DefaultConfig()
	opts.Retry.MaxAttempts = c.Store.MaxRetries
	return opts
}
