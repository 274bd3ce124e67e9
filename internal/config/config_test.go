package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Server.Addr != ":8000" {
		t.Errorf("Addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.Models.Main != "openrouter/auto" {
		t.Errorf("Main = %q, want openrouter/auto", cfg.Models.Main)
	}
	if cfg.Generator.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", cfg.Generator.Temperature)
	}
	if cfg.Generator.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0 (unbounded)", cfg.Generator.Timeout)
	}
	if cfg.Cache.MaxEntries != 0 || cfg.Cache.TTL != 0 {
		t.Errorf("cache defaults = %+v, want unbounded", cfg.Cache)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "improv.yaml")
	data := `
server:
  addr: ":9090"
models:
  main: claude-sonnet-4-20250514
cache:
  max_entries: 256
  ttl: 5m
generator:
  timeout: 90s
pipeline:
  coalesce: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned unexpected error: %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Server.Addr)
	}
	if cfg.Models.Main != "claude-sonnet-4-20250514" {
		t.Errorf("Main = %q", cfg.Models.Main)
	}
	// Unset field keeps its default.
	if cfg.Models.Utility != "openrouter/auto" {
		t.Errorf("Utility = %q, want default openrouter/auto", cfg.Models.Utility)
	}
	if cfg.Cache.MaxEntries != 256 || cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Generator.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", cfg.Generator.Timeout)
	}
	if !cfg.Pipeline.Coalesce {
		t.Error("Coalesce = false, want true")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load of missing file did not return an error")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "improv.yaml")
	if err := os.WriteFile(path, []byte("generator:\n  temperature: 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "temperature") {
		t.Errorf("Load err = %v, want temperature range error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, "server.addr"},
		{"empty main model", func(c *Config) { c.Models.Main = "" }, "models.main"},
		{"empty utility model", func(c *Config) { c.Models.Utility = "" }, "models.utility"},
		{"negative cache size", func(c *Config) { c.Cache.MaxEntries = -1 }, "cache.max_entries"},
		{"empty memory file", func(c *Config) { c.Memory.File = "" }, "memory.file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error mentioning %q", err, tt.wantErr)
			}
		})
	}
}
