package config

import (
	"os"
	"strconv"
)

// applyEnvOverrides layers environment variables over a loaded Config.
// Only a handful of operational knobs are overridable this way; targets
// are not.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ERGOMETER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = expandEnvVars(v)
	}
	if v := os.Getenv("ERGOMETER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ERGOMETER_INGEST_LOG_PATH"); v != "" {
		cfg.Ingest.LogPath = expandEnvVars(v)
	}
	if v := os.Getenv("ERGOMETER_INGEST_RATE_LIMIT_PER_SECOND"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Ingest.RateLimitPerSecond = n
		}
	}
	if v := os.Getenv("ERGOMETER_INGEST_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Ingest.RateLimitBurst = n
		}
	}
}
