package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	cfg := newDefaults()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "data/tainytune.db" {
		t.Errorf("unexpected default database path %q", cfg.Database.Path)
	}
	if time.Duration(cfg.Sync.Debounce) != 5*time.Second {
		t.Errorf("expected default debounce 5s, got %v", time.Duration(cfg.Sync.Debounce))
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("unexpected default log config: %+v", cfg.Log)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tainytune.yaml")

	yaml := `
server:
  port: 9090
  read_timeout: 10s
database:
  path: /tmp/journal.db
remote:
  base_url: https://journal.example.com
  timeout: 5s
sync:
  probe_interval: 30s
  debounce: 2s
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if time.Duration(cfg.Server.ReadTimeout) != 10*time.Second {
		t.Errorf("expected read timeout 10s, got %v", time.Duration(cfg.Server.ReadTimeout))
	}
	if cfg.Remote.BaseURL != "https://journal.example.com" {
		t.Errorf("unexpected remote base url %q", cfg.Remote.BaseURL)
	}
	if time.Duration(cfg.Sync.Debounce) != 2*time.Second {
		t.Errorf("expected debounce 2s, got %v", time.Duration(cfg.Sync.Debounce))
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.Log.Level)
	}
	// Untouched values keep their defaults
	if time.Duration(cfg.Server.WriteTimeout) != 30*time.Second {
		t.Errorf("expected default write timeout, got %v", time.Duration(cfg.Server.WriteTimeout))
	}
}

func TestLoadFromFile_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")

	if err := os.WriteFile(path, []byte("sync:\n  debounce: nonsense\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadFromFile(path); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TAINYTUNE_PORT", "7070")
	t.Setenv("TAINYTUNE_DB_PATH", "/tmp/env.db")
	t.Setenv("TAINYTUNE_REMOTE_URL", "http://env.example.com")
	t.Setenv("TAINYTUNE_API_KEY", "secret")
	t.Setenv("TAINYTUNE_SYNC_DEBOUNCE", "250ms")
	t.Setenv("TAINYTUNE_ANALYSIS_ENABLED", "false")

	cfg := newDefaults()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Database.Path != "/tmp/env.db" {
		t.Errorf("expected env db path, got %q", cfg.Database.Path)
	}
	if cfg.Remote.BaseURL != "http://env.example.com" {
		t.Errorf("expected env remote url, got %q", cfg.Remote.BaseURL)
	}
	if cfg.Remote.APIKey != "secret" {
		t.Errorf("expected env api key, got %q", cfg.Remote.APIKey)
	}
	if time.Duration(cfg.Sync.Debounce) != 250*time.Millisecond {
		t.Errorf("expected debounce 250ms, got %v", time.Duration(cfg.Sync.Debounce))
	}
	if cfg.Analysis.Enabled {
		t.Error("expected analysis disabled via env")
	}
}

func TestValidate(t *testing.T) {
	cfg := newDefaults()
	if err := cfg.validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Server.Port = 0
	if err := cfg.validate(); err == nil {
		t.Error("expected error for port 0")
	}

	cfg = newDefaults()
	cfg.Database.Path = ""
	if err := cfg.validate(); err == nil {
		t.Error("expected error for empty database path")
	}
}
