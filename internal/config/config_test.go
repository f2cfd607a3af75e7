package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Model.Provider != "claude" {
		t.Errorf("expected claude, got %s", cfg.Model.Provider)
	}
	if cfg.Sandbox.ScreenWidth != 1280 {
		t.Errorf("expected 1280, got %d", cfg.Sandbox.ScreenWidth)
	}
	if cfg.Model.MaxWords != 30000 {
		t.Errorf("expected 30000, got %d", cfg.Model.MaxWords)
	}
	if cfg.Model.PreserveLast != 5 {
		t.Errorf("expected 5, got %d", cfg.Model.PreserveLast)
	}
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.toml")
	os.WriteFile(path, []byte(`
[hub]
listen_addr = ":9090"

[sandbox]
screen_width = 1920
`), 0644)

	cfg := Load(path)
	if cfg.Hub.ListenAddr != ":9090" {
		t.Errorf("expected :9090, got %s", cfg.Hub.ListenAddr)
	}
	if cfg.Sandbox.ScreenWidth != 1920 {
		t.Errorf("expected 1920, got %d", cfg.Sandbox.ScreenWidth)
	}
	// Defaults preserved
	if cfg.Model.Provider != "claude" {
		t.Errorf("default should be preserved, got %s", cfg.Model.Provider)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("INTVRFACE_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("INTVRFACE_MODEL_API_KEY", "env-key")

	cfg := Load("/nonexistent/path.toml")
	if cfg.Hub.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("expected 127.0.0.1:9999, got %s", cfg.Hub.ListenAddr)
	}
	if cfg.Model.APIKey != "env-key" {
		t.Errorf("expected env-key, got %s", cfg.Model.APIKey)
	}
}

func TestEnvOverrideModelName(t *testing.T) {
	t.Setenv("INTVRFACE_MODEL", "claude-opus-4")
	cfg := Load("/nonexistent/path.toml")
	if cfg.Model.Model != "claude-opus-4" {
		t.Errorf("expected claude-opus-4, got %s", cfg.Model.Model)
	}
}
