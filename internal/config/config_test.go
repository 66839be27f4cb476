package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "smartpos.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "branch_id: branch-a\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Mode != ModeLocal {
		t.Errorf("expected default mode local, got %s", cfg.Mode)
	}
	if cfg.Sync.Enabled {
		t.Error("expected sync disabled by default")
	}
	if cfg.Sync.PushInterval != 30*time.Second {
		t.Errorf("expected default push_interval 30s, got %v", cfg.Sync.PushInterval)
	}
	if cfg.Sync.BatchSize != 100 {
		t.Errorf("expected default batch_size 100, got %d", cfg.Sync.BatchSize)
	}
	if cfg.Sync.Transport != "http" {
		t.Errorf("expected default transport http, got %s", cfg.Sync.Transport)
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
branch_id: branch-b
mode: local
sync:
  enabled: true
  endpoint: http://cloud.local/api/sync
  token: secret
  push_interval: 10s
  batch_size: 25
  backoff_base: 1s
  backoff_max: 2m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.BranchID != "branch-b" {
		t.Errorf("expected branch-b, got %s", cfg.BranchID)
	}
	if !cfg.Sync.Enabled {
		t.Error("expected sync enabled")
	}
	if cfg.Sync.PushInterval != 10*time.Second {
		t.Errorf("expected push_interval 10s, got %v", cfg.Sync.PushInterval)
	}
	if cfg.Sync.BackoffMax != 2*time.Minute {
		t.Errorf("expected backoff_max 2m, got %v", cfg.Sync.BackoffMax)
	}
}

func TestLoad_EnabledWithoutBranchID(t *testing.T) {
	path := writeConfig(t, `
sync:
  enabled: true
  endpoint: http://cloud.local/api/sync
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for enabled sync without branch_id")
	}
}

func TestLoad_EnabledWithoutEndpoint(t *testing.T) {
	path := writeConfig(t, `
branch_id: branch-c
sync:
  enabled: true
`)

	if _, err := Load(path); err == nil {
		t.Error("expected error for enabled sync without endpoint")
	}
}

func TestLoad_InvalidMode(t *testing.T) {
	if _, err := Load(writeConfig(t, "mode: hybrid\n")); err == nil {
		t.Error("expected error for invalid mode")
	}
}

func TestLoad_InvalidTransport(t *testing.T) {
	path := writeConfig(t, `
branch_id: branch-d
sync:
  transport: carrier-pigeon
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid transport")
	}
}

func TestLoad_InvalidBackoffBounds(t *testing.T) {
	path := writeConfig(t, `
branch_id: branch-e
sync:
  backoff_base: 1m
  backoff_max: 1s
`)
	if _, err := Load(path); err == nil {
		t.Error("expected error when backoff_max < backoff_base")
	}
}

func TestWriteDefault_RefusesOverwrite(t *testing.T) {
	path := writeConfig(t, "branch_id: keep-me\n")

	if err := WriteDefault(path); err == nil {
		t.Error("expected error overwriting existing config")
	}

	data, _ := os.ReadFile(path)
	if string(data) != "branch_id: keep-me\n" {
		t.Error("existing config was modified")
	}
}

func TestWriteDefault_ProducesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smartpos.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load of default config failed: %v", err)
	}
	if cfg.Sync.Enabled {
		t.Error("default config must not enable sync")
	}
}
