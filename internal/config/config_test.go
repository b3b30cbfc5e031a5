package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/reanhealth/botgateway/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
[auth]
jwt_secret = "secret"
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != config.DefaultHTTPAddr {
		t.Fatalf("Addr = %q, want default", cfg.Server.Addr)
	}
	if cfg.Queue.Workers != config.DefaultQueueWorkers {
		t.Fatalf("Workers = %d, want %d", cfg.Queue.Workers, config.DefaultQueueWorkers)
	}
	if cfg.Queue.BaseDelayMs != 2000 || cfg.Queue.MaxDelayMs != 30000 || cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("queue retry defaults wrong: %+v", cfg.Queue)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
[server]
addr = ":9100"
public_base_url = "https://bot.example.com"

[queue]
workers = 4
max_attempts = 5
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9100" || cfg.Queue.Workers != 4 || cfg.Queue.MaxAttempts != 5 {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsBadURL(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
[server]
public_base_url = "not a url"
`)
	if _, err := config.Load(path); err == nil {
		t.Fatal("Load accepted invalid public_base_url")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("Load succeeded on missing file")
	}
}
