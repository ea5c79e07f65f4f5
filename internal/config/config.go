// Package config provides unified configuration loading for ergometer:
// defaults, then an optional YAML file, then environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains all ergometer configuration settings.
type Config struct {
	Database Database `json:"database" yaml:"database"`
	Logging  Logging  `json:"logging" yaml:"logging"`
	Targets  Targets  `json:"targets" yaml:"targets"`
	Ingest   Ingest   `json:"ingest" yaml:"ingest"`
}

// Database configures the SQLite-backed Edge Store.
type Database struct {
	// Path is the database file. Supports ${VAR} env-var expansion.
	Path string `json:"path" yaml:"path"`
}

// Logging configures ergometer's operational and delta logging.
type Logging struct {
	// Level sets the log verbosity: "info" (default), "debug", or
	// "trace". "debug" and above enable delta logging to
	// <data-dir>/deltas.jsonl.
	Level string `json:"level" yaml:"level"`
}

// Targets holds the three target values kept in config.yaml. They are
// not passed to the store: the Settings Register is seeded from
// store.Defaults at first open, and after that only update_if_newer
// events change it.
type Targets struct {
	Daily   int64 `json:"daily_seconds" yaml:"daily_seconds"`
	Session int64 `json:"session_seconds" yaml:"session_seconds"`
	Rest    int64 `json:"rest_seconds" yaml:"rest_seconds"`
}

// Ingest configures the local event-log tailer used by `ergometer serve`.
type Ingest struct {
	// HostID identifies this host's position in the Host-Position
	// Register.
	HostID string `json:"host_id" yaml:"host_id"`
	// LogPath is the local event log file to tail.
	LogPath string `json:"log_path" yaml:"log_path"`
	// PollIntervalMS is how often to check the log file for growth.
	PollIntervalMS int `json:"poll_interval_ms" yaml:"poll_interval_ms"`
	// RateLimitPerSecond caps how many batches per second the tailer
	// will forward to the controller.
	RateLimitPerSecond float64 `json:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	// RateLimitBurst is the token bucket's burst size.
	RateLimitBurst int `json:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Database: Database{
			Path: filepath.Join(home, ".ergometer", "ergometer.db"),
		},
		Logging: Logging{
			Level: "info",
		},
		Targets: Targets{
			Daily:   8 * 3600,
			Session: 1 * 3600,
			Rest:    5 * 60,
		},
		Ingest: Ingest{
			HostID:              defaultHostID(),
			LogPath:             filepath.Join(home, ".ergometer", "events.log"),
			PollIntervalMS:      1000,
			RateLimitPerSecond:  5,
			RateLimitBurst:      10,
		},
	}
}

func defaultHostID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}

// Load loads configuration from ~/.ergometer/config.yaml, falling back
// to defaults if the file does not exist, and applies environment
// variable overrides.
func Load() (*Config, error) {
	cfg := Default()

	home, err := os.UserHomeDir()
	if err == nil {
		path := filepath.Join(home, ".ergometer", "config.yaml")
		if _, statErr := os.Stat(path); statErr == nil {
			fileCfg, loadErr := LoadFromFile(path)
			if loadErr != nil {
				return nil, fmt.Errorf("config: loading %s: %w", path, loadErr)
			}
			cfg = fileCfg
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file, layered
// over the defaults so a partial file is valid.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	cfg.Database.Path = expandEnvVars(cfg.Database.Path)
	cfg.Ingest.LogPath = expandEnvVars(cfg.Ingest.LogPath)
	return cfg, nil
}

// Save writes cfg to path as YAML, creating parent directories as
// needed.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("config: creating directory for %s: %w", path, err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshalling: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is self-consistent.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("config: invalid log level %q (valid: info, debug, trace)", c.Logging.Level)
	}
	if c.Targets.Daily < 0 || c.Targets.Session < 0 || c.Targets.Rest < 0 {
		return fmt.Errorf("config: targets must be non-negative")
	}
	if c.Ingest.PollIntervalMS <= 0 {
		return fmt.Errorf("config: ingest.poll_interval_ms must be positive, got %d", c.Ingest.PollIntervalMS)
	}
	if c.Ingest.RateLimitPerSecond <= 0 {
		return fmt.Errorf("config: ingest.rate_limit_per_second must be positive, got %f", c.Ingest.RateLimitPerSecond)
	}
	if c.Ingest.RateLimitBurst <= 0 {
		return fmt.Errorf("config: ingest.rate_limit_burst must be positive, got %d", c.Ingest.RateLimitBurst)
	}
	return nil
}

func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, func(name string) string {
		return os.Getenv(name)
	})
}
