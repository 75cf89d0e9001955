// Package config loads the engine configuration from a yaml file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig points at the remote relational store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver" env:"QUOTIDIAN_DB_DRIVER"`
	DSN             string `yaml:"dsn" env:"QUOTIDIAN_DB_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"QUOTIDIAN_DB_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"QUOTIDIAN_DB_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds" env:"QUOTIDIAN_DB_CONN_MAX_LIFETIME"`
}

// LocalStateConfig selects and locates the per-installation local store.
type LocalStateConfig struct {
	Backend     string `yaml:"backend" env:"QUOTIDIAN_LOCAL_BACKEND"` // sqlite or redis
	Path        string `yaml:"path" env:"QUOTIDIAN_LOCAL_PATH"`
	RedisAddr   string `yaml:"redis_addr" env:"QUOTIDIAN_LOCAL_REDIS_ADDR"`
	RedisPrefix string `yaml:"redis_prefix" env:"QUOTIDIAN_LOCAL_REDIS_PREFIX"`
}

// ReconcilerConfig paces the long-lived poll loop.
type ReconcilerConfig struct {
	IntervalSeconds    int `yaml:"interval_seconds" env:"QUOTIDIAN_RECONCILE_INTERVAL"`
	CallTimeoutSeconds int `yaml:"call_timeout_seconds" env:"QUOTIDIAN_RECONCILE_CALL_TIMEOUT"`
}

func (c ReconcilerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

func (c ReconcilerConfig) CallTimeout() time.Duration {
	return time.Duration(c.CallTimeoutSeconds) * time.Second
}

// RefresherConfig sets the short-lived process's scheduling intervals.
type RefresherConfig struct {
	IdleIntervalMinutes  int `yaml:"idle_interval_minutes" env:"QUOTIDIAN_REFRESH_IDLE_INTERVAL"`
	RetryIntervalMinutes int `yaml:"retry_interval_minutes" env:"QUOTIDIAN_REFRESH_RETRY_INTERVAL"`
	CacheMaxAgeHours     int `yaml:"cache_max_age_hours" env:"QUOTIDIAN_CACHE_MAX_AGE"`
}

func (c RefresherConfig) IdleInterval() time.Duration {
	return time.Duration(c.IdleIntervalMinutes) * time.Minute
}

func (c RefresherConfig) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMinutes) * time.Minute
}

func (c RefresherConfig) CacheMaxAge() time.Duration {
	return time.Duration(c.CacheMaxAgeHours) * time.Hour
}

// LoggingConfig mirrors pkg/logger.LoggingConfig.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"QUOTIDIAN_LOG_LEVEL"`
	Format string `yaml:"format" env:"QUOTIDIAN_LOG_FORMAT"`
	Output string `yaml:"output" env:"QUOTIDIAN_LOG_OUTPUT"`
}

// Config is the full engine configuration.
type Config struct {
	Database    DatabaseConfig   `yaml:"database"`
	LocalState  LocalStateConfig `yaml:"local_state"`
	Reconciler  ReconcilerConfig `yaml:"reconciler"`
	Refresher   RefresherConfig  `yaml:"refresher"`
	Logging     LoggingConfig    `yaml:"logging"`
	MetricsAddr string           `yaml:"metrics_addr" env:"QUOTIDIAN_METRICS_ADDR"`
	Timezone    string           `yaml:"timezone" env:"QUOTIDIAN_TIMEZONE"`
}

// Location resolves the configured timezone; an empty or invalid value
// means local time.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "postgres",
		},
		LocalState: LocalStateConfig{
			Backend: "sqlite",
			Path:    "quotidian-state.db",
		},
		Reconciler: ReconcilerConfig{
			IntervalSeconds:    15,
			CallTimeoutSeconds: 10,
		},
		Refresher: RefresherConfig{
			IdleIntervalMinutes:  30,
			RetryIntervalMinutes: 5,
			CacheMaxAgeHours:     24,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the path named by QUOTIDIAN_CONFIG (default
// "quotidian.yaml"), falling back to defaults when the file is missing,
// then applies environment overrides.
func Load() (*Config, error) {
	path := os.Getenv("QUOTIDIAN_CONFIG")
	if path == "" {
		path = "quotidian.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file. A missing file
// is not an error; environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults + env only
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.LocalState.Backend {
	case "sqlite":
		if c.LocalState.Path == "" {
			return fmt.Errorf("local_state: path is required for the sqlite backend")
		}
	case "redis":
		if c.LocalState.RedisAddr == "" {
			return fmt.Errorf("local_state: redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("local_state: unknown backend %q", c.LocalState.Backend)
	}

	if c.Reconciler.IntervalSeconds <= 0 {
		return fmt.Errorf("reconciler: interval_seconds must be positive")
	}
	if c.Reconciler.CallTimeoutSeconds <= 0 {
		return fmt.Errorf("reconciler: call_timeout_seconds must be positive")
	}
	return nil
}
