package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all memoryd configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Data      DataConfig      `yaml:"data"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Activity  ActivityConfig  `yaml:"activity"`
	Costs     CostsConfig     `yaml:"costs"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`

	// MaxConnections caps concurrently accepted connections (0 = unlimited).
	MaxConnections int `yaml:"max_connections"`

	// Write routes (POST/DELETE) share one token bucket.
	WriteRatePerSecond float64 `yaml:"write_rate_per_second"`
	WriteBurst         int     `yaml:"write_burst"`

	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// DataConfig locates durable state (names.json, costs.json, the database).
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// StoreConfig configures the SQLite record store.
type StoreConfig struct {
	// DatabasePath defaults to <data.dir>/memories.db when empty.
	DatabasePath string `yaml:"database_path"`
	OpenTimeout  string `yaml:"open_timeout"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // voyage, genai, ollama, mock

	// Model, BaseURL and Dimensions fall back to per-provider defaults when empty.
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	Timeout    string `yaml:"timeout"`

	// QueryCacheSize is the number of query embeddings kept in memory (0 disables).
	QueryCacheSize int `yaml:"query_cache_size"`
}

// SourcePrice is the USD price per million tokens for one cost source.
// Embedding sources only use InputPerMillion.
type SourcePrice struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	CachedPerMillion float64 `yaml:"cached_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// PricingConfig maps cost source names to prices.
type PricingConfig struct {
	Sources map[string]SourcePrice `yaml:"sources"`
}

// ActivityConfig sizes the recent-activity ring buffer.
type ActivityConfig struct {
	Capacity     int `yaml:"capacity"`
	MaxRecent    int `yaml:"max_recent"`
	DefaultLimit int `yaml:"default_limit"`
}

// CostsConfig controls whether the cost ledger survives restarts.
type CostsConfig struct {
	Persist       bool   `yaml:"persist"`
	File          string `yaml:"file"`
	FlushInterval string `yaml:"flush_interval"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               ":8020",
			ReadTimeout:        "15s",
			WriteTimeout:       "60s",
			ShutdownTimeout:    "10s",
			MaxConnections:     256,
			WriteRatePerSecond: 20,
			WriteBurst:         40,
			MaxBodyBytes:       1 << 20,
		},
		Data: DataConfig{
			Dir: "data",
		},
		Store: StoreConfig{
			OpenTimeout: "30s",
		},
		Embedding: EmbeddingConfig{
			Provider:       "voyage",
			Timeout:        "30s",
			QueryCacheSize: 1024,
		},
		Pricing: PricingConfig{
			Sources: map[string]SourcePrice{
				"xai":    {InputPerMillion: 0.20, CachedPerMillion: 0.05, OutputPerMillion: 0.50},
				"voyage": {InputPerMillion: 0.06},
				"genai":  {InputPerMillion: 0.15},
				"ollama": {},
				"mock":   {},
			},
		},
		Activity: ActivityConfig{
			Capacity:     500,
			MaxRecent:    200,
			DefaultLimit: 50,
		},
		Costs: CostsConfig{
			Persist:       true,
			File:          "costs.json",
			FlushInterval: "5s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("MEMORYD_DATA_DIR"); dir != "" {
		c.Data.Dir = dir
	}
	if addr := os.Getenv("MEMORYD_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("MEMORYD_DB"); path != "" {
		c.Store.DatabasePath = path
	}
	if lvl := os.Getenv("MEMORYD_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}

	if p := os.Getenv("MEMORYD_EMBEDDING_PROVIDER"); p != "" {
		c.Embedding.Provider = p
	}
	// Provider keys only fill the key for the provider that is selected.
	switch c.Embedding.Provider {
	case "voyage":
		if key := os.Getenv("VOYAGE_API_KEY"); key != "" {
			c.Embedding.APIKey = key
		}
	case "genai":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.Embedding.APIKey = key
		}
	case "ollama":
		if host := os.Getenv("OLLAMA_HOST"); host != "" {
			c.Embedding.BaseURL = host
		}
	}
}

// reservedSourceNames are top-level keys of the cost snapshot JSON.
var reservedSourceNames = []string{"total_cost_usd", "last_updated"}

// ValidProviders lists all supported embedding providers.
var ValidProviders = []string{"voyage", "genai", "ollama", "mock"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	valid := false
	for _, p := range ValidProviders {
		if c.Embedding.Provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid embedding provider: %q (valid: %v)", c.Embedding.Provider, ValidProviders)
	}

	if c.Embedding.APIKey == "" {
		switch c.Embedding.Provider {
		case "voyage":
			return fmt.Errorf("voyage API key not configured (set VOYAGE_API_KEY or embedding.api_key)")
		case "genai":
			return fmt.Errorf("GenAI API key not configured (set GEMINI_API_KEY or embedding.api_key)")
		}
	}

	if _, ok := c.Pricing.Sources[c.Embedding.Provider]; !ok {
		return fmt.Errorf("no price configured for embedding source %q", c.Embedding.Provider)
	}
	for name, p := range c.Pricing.Sources {
		for _, reserved := range reservedSourceNames {
			if name == reserved {
				return fmt.Errorf("source name %q is reserved", name)
			}
		}
		if p.InputPerMillion < 0 || p.CachedPerMillion < 0 || p.OutputPerMillion < 0 {
			return fmt.Errorf("negative price for source %q", name)
		}
	}

	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir must not be empty")
	}
	if c.Activity.Capacity <= 0 {
		return fmt.Errorf("activity.capacity must be positive, got %d", c.Activity.Capacity)
	}
	if c.Activity.MaxRecent <= 0 {
		return fmt.Errorf("activity.max_recent must be positive, got %d", c.Activity.MaxRecent)
	}
	return nil
}

// SourceNames returns the configured cost sources in sorted order.
func (c *Config) SourceNames() []string {
	names := make([]string, 0, len(c.Pricing.Sources))
	for name := range c.Pricing.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DatabasePath returns the SQLite path, defaulting into the data dir.
func (c *Config) DatabasePath() string {
	if c.Store.DatabasePath != "" {
		return c.Store.DatabasePath
	}
	return filepath.Join(c.Data.Dir, "memories.db")
}

// CostsPath returns the ledger file path, or "" when costs are not persisted.
func (c *Config) CostsPath() string {
	if !c.Costs.Persist {
		return ""
	}
	if filepath.IsAbs(c.Costs.File) {
		return c.Costs.File
	}
	return filepath.Join(c.Data.Dir, c.Costs.File)
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 15*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 60*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown budget as a duration.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 10*time.Second)
}

// GetStoreOpenTimeout returns the store open timeout as a duration.
func (c *Config) GetStoreOpenTimeout() time.Duration {
	return parseDuration(c.Store.OpenTimeout, 30*time.Second)
}

// GetEmbeddingTimeout returns the embedding request timeout as a duration.
func (c *Config) GetEmbeddingTimeout() time.Duration {
	return parseDuration(c.Embedding.Timeout, 30*time.Second)
}

// GetFlushInterval returns the ledger save debounce as a duration.
func (c *Config) GetFlushInterval() time.Duration {
	return parseDuration(c.Costs.FlushInterval, 5*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
