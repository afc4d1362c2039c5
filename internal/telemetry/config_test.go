package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestLoad_NewConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Enabled {
		t.Error("new config should be disabled")
	}
	if _, err := uuid.Parse(cfg.AnonymousID); err != nil {
		t.Errorf("AnonymousID %q is not a UUID: %v", cfg.AnonymousID, err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".ideaforge")

	cfg := &Config{AnonymousID: "fixed-id"}
	cfg.Enable()
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(ConfigPath(dir))
	if err != nil {
		t.Fatalf("config file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !loaded.IsEnabled() || loaded.AnonymousID != "fixed-id" {
		t.Errorf("Load() = %+v, want enabled with fixed-id", loaded)
	}

	loaded.Disable()
	if loaded.IsEnabled() {
		t.Error("Disable() should turn telemetry off")
	}
}

func TestLoad_GeneratesIDWhenMissing(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(ConfigPath(dir), []byte(`{"enabled": true}`), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.AnonymousID == "" {
		t.Error("AnonymousID should be generated")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(ConfigPath(dir), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_IsEnabled_Nil(t *testing.T) {
	var cfg *Config
	if cfg.IsEnabled() {
		t.Error("nil config must report disabled")
	}
}
