package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDefaultConfig_HeartbeatEnabled verifies heartbeat is enabled by default
func TestDefaultConfig_HeartbeatEnabled(t *testing.T) {
	cfg := DefaultConfig()

	if !cfg.Heartbeat.Enabled {
		t.Fatal("expected heartbeat enabled by default")
	}
	if cfg.Heartbeat.Interval != 30 {
		t.Fatalf("expected default heartbeat interval 30, got %d", cfg.Heartbeat.Interval)
	}
}

func TestDefaultConfig_SupervisorBound(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Supervisor.MaxConcurrent <= 0 {
		t.Fatalf("expected positive supervisor bound, got %d", cfg.Supervisor.MaxConcurrent)
	}
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("load missing config: %v", err)
	}
	if cfg.Router.BaselineConfidence != 1.0 {
		t.Fatalf("expected default baseline confidence, got %v", cfg.Router.BaselineConfidence)
	}
}

func TestLoadConfig_FileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"supervisor": {"max_concurrent": 2}, "heartbeat": {"enabled": false, "interval": 10}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SKILLHOST_HEARTBEAT_INTERVAL", "5")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Supervisor.MaxConcurrent != 2 {
		t.Fatalf("expected file override max_concurrent=2, got %d", cfg.Supervisor.MaxConcurrent)
	}
	if cfg.Heartbeat.Enabled {
		t.Fatal("expected heartbeat disabled from file")
	}
	if cfg.Heartbeat.Interval != 5 {
		t.Fatalf("expected env override interval=5, got %d", cfg.Heartbeat.Interval)
	}
}

func TestFlexibleStringSlice_MixedTypes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"channels": {"discord": {"allow_from": ["123", 456]}}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	got := []string(cfg.Channels.Discord.AllowFrom)
	if len(got) != 2 || got[0] != "123" || got[1] != "456" {
		t.Fatalf("expected [123 456], got %v", got)
	}
}
