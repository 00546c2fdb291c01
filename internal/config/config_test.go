package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.DataDir != dir {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if cfg.SyncInterval != 30*time.Second {
		t.Errorf("SyncInterval = %v", cfg.SyncInterval)
	}
	if cfg.Debounce != 150*time.Millisecond {
		t.Errorf("Debounce = %v", cfg.Debounce)
	}
	if cfg.ServerPort != 8374 {
		t.Errorf("ServerPort = %d", cfg.ServerPort)
	}
	if cfg.DeviceID == "" {
		t.Error("DeviceID not generated")
	}
	if cfg.RemoteBacked() {
		t.Error("fresh config must be local-only")
	}
	if cfg.DatabasePath() != filepath.Join(dir, "markbook.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath())
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := "remote_url: libsql://example.turso.io\nuser_id: user-1\nserver_port: 9000\n"
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.RemoteURL != "libsql://example.turso.io" || cfg.UserID != "user-1" {
		t.Errorf("remote settings not loaded: %+v", cfg)
	}
	if !cfg.RemoteBacked() {
		t.Error("expected remote-backed mode")
	}
	if cfg.ServerPort != 9000 {
		t.Errorf("ServerPort = %d", cfg.ServerPort)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("user_id: from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MB_USER_ID", "from-env")

	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.UserID != "from-env" {
		t.Errorf("UserID = %q, want env override", cfg.UserID)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	cfg.Set("remote_url", "libsql://saved.turso.io")
	cfg.Set("user_id", "user-9")
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	again, err := LoadFrom(dir)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.RemoteURL != "libsql://saved.turso.io" || again.UserID != "user-9" {
		t.Errorf("saved settings lost: %+v", again)
	}
	if again.DeviceID != cfg.DeviceID {
		t.Errorf("device id must be stable across loads: %q vs %q", again.DeviceID, cfg.DeviceID)
	}
}
