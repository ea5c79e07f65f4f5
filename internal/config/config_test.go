package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() = %v, want nil", err)
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := Default()
	cfg.Targets.Daily = 7 * 3600
	cfg.Logging.Level = "debug"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if loaded.Targets.Daily != 7*3600 {
		t.Errorf("loaded.Targets.Daily = %d, want %d", loaded.Targets.Daily, 7*3600)
	}
	if loaded.Logging.Level != "debug" {
		t.Errorf("loaded.Logging.Level = %q, want debug", loaded.Logging.Level)
	}
}

func TestLoadFromFilePartialOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: trace\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Logging.Level != "trace" {
		t.Errorf("cfg.Logging.Level = %q, want trace", cfg.Logging.Level)
	}
	if cfg.Targets.Daily != Default().Targets.Daily {
		t.Errorf("cfg.Targets.Daily = %d, want default %d", cfg.Targets.Daily, Default().Targets.Daily)
	}
}

func TestValidateRejectsBadLevel(t *testing.T) {
	cfg := Default()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil for invalid log level, want error")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ERGOMETER_LOG_LEVEL", "trace")
	cfg := Default()
	applyEnvOverrides(cfg)
	if cfg.Logging.Level != "trace" {
		t.Errorf("cfg.Logging.Level = %q, want trace", cfg.Logging.Level)
	}
}
