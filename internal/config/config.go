// Package config loads runtime configuration from a YAML file, a .env file,
// and environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/storelane/graphmeter/internal/apierrors"
	"github.com/storelane/graphmeter/internal/retry"
)

// Config is the full runtime configuration.
type Config struct {
	API    APIConfig    `yaml:"api"`
	Retry  RetryConfig  `yaml:"retry"`
	Cache  CacheConfig  `yaml:"cache"`
	Usage  UsageConfig  `yaml:"usage"`
	Logger LoggerConfig `yaml:"logger"`
}

// APIConfig describes the upstream endpoint and credentials.
type APIConfig struct {
	Domain               string        `yaml:"domain"`
	Version              string        `yaml:"version"`
	AccessToken          string        `yaml:"access_token"`
	TokenHeader          string        `yaml:"token_header"`
	Timeout              time.Duration `yaml:"timeout"`
	ApproachingThreshold float64       `yaml:"approaching_threshold"`
}

// RetryConfig mirrors retry.Policy in file form.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// UsageConfig controls usage telemetry and its persistence.
type UsageConfig struct {
	MaxHistory int    `yaml:"max_history"`
	DBPath     string `yaml:"db_path"`
	Persist    bool   `yaml:"persist"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Default returns a config with all defaults applied.
func Default() Config {
	return Config{
		API: APIConfig{
			Version:              DefaultAPIVersion,
			Timeout:              DefaultTimeout,
			ApproachingThreshold: DefaultApproachingThreshold,
		},
		Retry: RetryConfig{
			MaxRetries:    DefaultMaxRetries,
			InitialDelay:  DefaultInitialDelay,
			MaxDelay:      DefaultMaxDelay,
			BackoffFactor: DefaultBackoffFactor,
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             DefaultCacheTTL,
			CleanupInterval: DefaultCleanupInterval,
		},
		Usage: UsageConfig{
			MaxHistory: DefaultMaxHistory,
			DBPath:     DefaultUsageDBPath,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path (optional), merging .env and environment overrides.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}

	if v := os.Getenv("GRAPHMETER_DOMAIN"); v != "" {
		cfg.API.Domain = v
	}
	if v := os.Getenv("GRAPHMETER_API_VERSION"); v != "" {
		cfg.API.Version = v
	}
	if v := os.Getenv("GRAPHMETER_ACCESS_TOKEN"); v != "" {
		cfg.API.AccessToken = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.API.Domain == "" {
		return fmt.Errorf("api.domain is required")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BackoffFactor < 1 {
		return fmt.Errorf("retry.backoff_factor must be >= 1, got %f", c.Retry.BackoffFactor)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be >= 0")
	}
	if c.Usage.MaxHistory < 0 {
		return fmt.Errorf("usage.max_history must be >= 0, got %d", c.Usage.MaxHistory)
	}
	return nil
}

// RetryPolicy converts the file form into an immutable retry.Policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:    c.Retry.MaxRetries,
		InitialDelay:  c.Retry.InitialDelay,
		MaxDelay:      c.Retry.MaxDelay,
		BackoffFactor: c.Retry.BackoffFactor,
		RetryableCategories: map[apierrors.Category]bool{
			apierrors.CategoryNetwork:   true,
			apierrors.CategoryRateLimit: true,
			apierrors.CategoryServer:    true,
		},
	}
}
