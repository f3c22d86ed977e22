package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/artpar/apimeter/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  read_timeout: 15s

store:
  addr: "redis:6379"
  db: 2

events:
  backend: "sqlite"
  path: "/var/lib/apimeter/events.db"

alerts:
  enabled: true
  default_bins: [80, 90, 100]
  services:
    - "svc-1"
    - "svc-2"

logging:
  level: "debug"
  format: "console"

metrics:
  enabled: true
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %s, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("ReadTimeout = %v, want 15s", cfg.Server.ReadTimeout)
	}
	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr() = %s", cfg.Server.Addr())
	}
	if cfg.Store.Addr != "redis:6379" {
		t.Errorf("Store.Addr = %s", cfg.Store.Addr)
	}
	if cfg.Store.DB != 2 {
		t.Errorf("Store.DB = %d, want 2", cfg.Store.DB)
	}
	if cfg.Events.Path != "/var/lib/apimeter/events.db" {
		t.Errorf("Events.Path = %s", cfg.Events.Path)
	}
	if !cfg.Alerts.Enabled {
		t.Error("Alerts.Enabled = false, want true")
	}
	if len(cfg.Alerts.DefaultBins) != 3 || cfg.Alerts.DefaultBins[0] != 80 {
		t.Errorf("DefaultBins = %v", cfg.Alerts.DefaultBins)
	}
	if len(cfg.Alerts.Services) != 2 {
		t.Errorf("Services = %v", cfg.Alerts.Services)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "server:\n  port: 8081\n")

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host default = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout default = %v, want 10s", cfg.Server.ReadTimeout)
	}
	if cfg.Store.Addr != "localhost:6379" {
		t.Errorf("Store.Addr default = %s", cfg.Store.Addr)
	}
	if cfg.Events.Backend != "sqlite" {
		t.Errorf("Events.Backend default = %s", cfg.Events.Backend)
	}
	if cfg.Events.Path != "apimeter-events.db" {
		t.Errorf("Events.Path default = %s", cfg.Events.Path)
	}
	want := []int{50, 80, 90, 100, 120, 150, 200, 300}
	if len(cfg.Alerts.DefaultBins) != len(want) {
		t.Fatalf("DefaultBins default = %v, want %v", cfg.Alerts.DefaultBins, want)
	}
	for i, bin := range want {
		if cfg.Alerts.DefaultBins[i] != bin {
			t.Errorf("DefaultBins[%d] = %d, want %d", i, cfg.Alerts.DefaultBins[i], bin)
		}
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging default = %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	if _, err := config.Load(writeConfig(t, "server:\n  port: 70000\n")); err == nil {
		t.Error("expected validation error for port 70000")
	}
}

func TestLoad_InvalidEventsBackend(t *testing.T) {
	if _, err := config.Load(writeConfig(t, "events:\n  backend: \"kafka\"\n")); err == nil {
		t.Error("expected validation error for unknown events backend")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	if _, err := config.Load(writeConfig(t, "logging:\n  level: \"verbose\"\n")); err == nil {
		t.Error("expected validation error for unknown log level")
	}
}

func TestLoad_NegativeBinRejected(t *testing.T) {
	if _, err := config.Load(writeConfig(t, "alerts:\n  default_bins: [-10, 50]\n")); err == nil {
		t.Error("expected validation error for negative bin")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APIMETER_SERVER_PORT", "9999")
	t.Setenv("APIMETER_STORE_ADDR", "redis-prod:6379")
	t.Setenv("APIMETER_LOG_LEVEL", "warn")

	cfg := writeAndLoad(t, "server:\n  port: 8081\n")

	if cfg.Server.Port != 9999 {
		t.Errorf("Port = %d, env override must win over file", cfg.Server.Port)
	}
	if cfg.Store.Addr != "redis-prod:6379" {
		t.Errorf("Store.Addr = %s", cfg.Store.Addr)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %s", cfg.Logging.Level)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("REDIS_HOST", "10.0.0.5")

	cfg := writeAndLoad(t, "store:\n  addr: \"${REDIS_HOST}:6379\"\n")

	if cfg.Store.Addr != "10.0.0.5:6379" {
		t.Errorf("Store.Addr = %s, want expanded env value", cfg.Store.Addr)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APIMETER_EVENTS_BACKEND", "memory")
	t.Setenv("APIMETER_METRICS_ENABLED", "true")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Events.Backend != "memory" {
		t.Errorf("Events.Backend = %s", cfg.Events.Backend)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port default = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadWithFallback_MissingFile(t *testing.T) {
	cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want env defaults on missing file", cfg.Server.Port)
	}
}

func TestLoadWithFallback_ExistingFile(t *testing.T) {
	cfg, err := config.LoadWithFallback(writeConfig(t, "server:\n  port: 9393\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9393 {
		t.Errorf("Port = %d, want value from file", cfg.Server.Port)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, content))
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}
