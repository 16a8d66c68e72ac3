// Package config loads run configuration from a YAML file, with defaults
// that make an empty file (or no file at all) a working configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is the root configuration.
type AppConfig struct {
	Location string `yaml:"location"`
	SeedURL  string `yaml:"seed_url"`
	Count    int    `yaml:"count"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Services  ServicesConfig  `yaml:"services"`
	Retry     RetryConfig     `yaml:"retry"`
	Pause     PauseConfig     `yaml:"pause"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Storage   StorageConfig   `yaml:"storage"`
	Output    OutputConfig    `yaml:"output"`

	MetricsPort int `yaml:"metrics_port"`
}

// DiscoveryConfig tunes the URL discovery chain.
type DiscoveryConfig struct {
	Keyword      string `yaml:"keyword"`
	DisableFixed bool   `yaml:"disable_fixed"`
}

// ServicesConfig names the external services. API keys are read from the
// environment, never from the file.
type ServicesConfig struct {
	Firecrawl ServiceConfig `yaml:"firecrawl"`
	OpenAI    OpenAIConfig  `yaml:"openai"`
}

// ServiceConfig is shared service plumbing.
type ServiceConfig struct {
	APIKeyEnv string        `yaml:"api_key_env"`
	BaseURL   string        `yaml:"base_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// OpenAIConfig extends ServiceConfig with a model name.
type OpenAIConfig struct {
	ServiceConfig `yaml:",inline"`
	Model         string `yaml:"model"`
}

// RetryConfig tunes the rate-limit retry policy.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

// PauseConfig bounds the pause between consecutive collections.
type PauseConfig struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// FallbackConfig tunes the direct-fetch fallback used when the scrape
// service fails outright.
type FallbackConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Fingerprint   string        `yaml:"fingerprint"`
	UserAgent     string        `yaml:"user_agent"`
	Timeout       time.Duration `yaml:"timeout"`
	RespectRobots bool          `yaml:"respect_robots"`
}

// StorageConfig selects the archive backend. Kind is one of "none", "json",
// "csv", "sqlite", "postgres".
type StorageConfig struct {
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
}

// OutputConfig controls where the run's records are written.
type OutputConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // "json" or "text"
}

// Default returns the configuration used when no file is given.
func Default() AppConfig {
	return AppConfig{
		Location: "New York",
		Count:    3,
		Discovery: DiscoveryConfig{
			Keyword: "hotel",
		},
		Services: ServicesConfig{
			Firecrawl: ServiceConfig{
				APIKeyEnv: "FIRECRAWL_API_KEY",
				Timeout:   60 * time.Second,
			},
			OpenAI: OpenAIConfig{
				ServiceConfig: ServiceConfig{
					APIKeyEnv: "OPENAI_API_KEY",
					Timeout:   60 * time.Second,
				},
				Model: "gpt-4o",
			},
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseDelay:   5 * time.Second,
		},
		Pause: PauseConfig{
			Min: 3 * time.Second,
			Max: 7 * time.Second,
		},
		Fallback: FallbackConfig{
			Enabled:       true,
			Fingerprint:   "chrome",
			Timeout:       30 * time.Second,
			RespectRobots: true,
		},
		Storage: StorageConfig{
			Kind: "none",
		},
		Output: OutputConfig{
			Path:   "hotels.json",
			Format: "json",
		},
	}
}

// Load reads a YAML configuration file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	switch c.Storage.Kind {
	case "", "none", "json", "csv", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown storage kind %q", c.Storage.Kind)
	}
	switch c.Output.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("unknown output format %q", c.Output.Format)
	}
	if c.Pause.Max != 0 && c.Pause.Max < c.Pause.Min {
		return fmt.Errorf("pause.max (%v) below pause.min (%v)", c.Pause.Max, c.Pause.Min)
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry.max_attempts must not be negative")
	}
	return nil
}
