// Package config loads hearth configuration from an optional YAML file and
// HEARTH_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/hearth/common/environment"
	"github.com/bdobrica/hearth/internal/hearth/datetime"
)

// Config is the full process configuration.
type Config struct {
	Log LogConfig `yaml:"log"`

	// DatabasePath enables SQLite persistence for pending confirmations and
	// the reference calendar.  Empty means in-memory only.
	DatabasePath string `yaml:"database_path"`

	// HTTPAddr is the listen address of the health/metrics server.
	// Empty disables it.
	HTTPAddr string `yaml:"http_addr"`

	// Timezone is used when a caller does not send one.
	Timezone string `yaml:"timezone"`

	Model   ModelConfig   `yaml:"model"`
	Confirm ConfirmConfig `yaml:"confirm"`
	Events  EventsConfig  `yaml:"events"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// ModelConfig configures the model-backed parser.  The parser is disabled
// when no API key is available.
type ModelConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv      string        `yaml:"api_key_env"`
	Timeout        time.Duration `yaml:"timeout"`
	CallsPerMinute int           `yaml:"calls_per_minute"`
	Burst          int           `yaml:"burst"`
}

// ConfirmConfig configures the confirmation gate.
type ConfirmConfig struct {
	PendingTTL time.Duration `yaml:"pending_ttl"`
}

// EventsConfig holds event defaults.
type EventsConfig struct {
	DefaultDuration time.Duration `yaml:"default_duration"`
	PrefsCacheTTL   time.Duration `yaml:"prefs_cache_ttl"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "text"},
		Timezone: "UTC",
		Model: ModelConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			APIKeyEnv:      "OPENAI_API_KEY",
			Timeout:        8 * time.Second,
			CallsPerMinute: 20,
			Burst:          5,
		},
		Confirm: ConfirmConfig{PendingTTL: 5 * time.Minute},
		Events: EventsConfig{
			DefaultDuration: time.Hour,
			PrefsCacheTTL:   time.Minute,
		},
	}
}

// Load reads path (skipped when empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	environment.OverrideString("HEARTH_LOG_LEVEL", &c.Log.Level)
	environment.OverrideString("HEARTH_LOG_FORMAT", &c.Log.Format)
	environment.OverrideString("HEARTH_DATABASE_PATH", &c.DatabasePath)
	environment.OverrideString("HEARTH_HTTP_ADDR", &c.HTTPAddr)
	environment.OverrideString("HEARTH_TIMEZONE", &c.Timezone)
	environment.OverrideString("HEARTH_MODEL_BASE_URL", &c.Model.BaseURL)
	environment.OverrideString("HEARTH_MODEL", &c.Model.Model)
	environment.OverrideString("HEARTH_MODEL_API_KEY_ENV", &c.Model.APIKeyEnv)

	return errors.Join(
		environment.OverrideDuration("HEARTH_MODEL_TIMEOUT", &c.Model.Timeout),
		environment.OverrideInt("HEARTH_MODEL_CALLS_PER_MINUTE", &c.Model.CallsPerMinute),
		environment.OverrideInt("HEARTH_MODEL_BURST", &c.Model.Burst),
		environment.OverrideDuration("HEARTH_PENDING_TTL", &c.Confirm.PendingTTL),
		environment.OverrideDuration("HEARTH_DEFAULT_DURATION", &c.Events.DefaultDuration),
		environment.OverrideDuration("HEARTH_PREFS_CACHE_TTL", &c.Events.PrefsCacheTTL),
	)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}
	if c.Timezone != "" && !datetime.ValidTimezone(c.Timezone) {
		errs = append(errs, fmt.Errorf("timezone: unknown zone %q", c.Timezone))
	}
	if c.Model.Timeout <= 0 {
		errs = append(errs, errors.New("model.timeout: must be positive"))
	}
	if c.Model.CallsPerMinute < 0 {
		errs = append(errs, errors.New("model.calls_per_minute: must not be negative"))
	}
	if c.Confirm.PendingTTL <= 0 {
		errs = append(errs, errors.New("confirm.pending_ttl: must be positive"))
	}
	if c.Events.DefaultDuration <= 0 {
		errs = append(errs, errors.New("events.default_duration: must be positive"))
	}
	return errors.Join(errs...)
}

// APIKey returns the model API key, or "" when none is configured.
func (c Config) APIKey() string {
	return environment.Secret(c.Model.APIKeyEnv)
}
