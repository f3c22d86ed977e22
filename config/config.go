// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Events  EventsConfig  `yaml:"events"`
	Alerts  AlertsConfig  `yaml:"alerts"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig configures the shared Redis store.
type StoreConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig configures the alert event sink.
// Backend "sqlite" persists events at Path; "memory" keeps them in process.
type EventsConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// AlertsConfig configures utilization alerting.
// DefaultBins are seeded into every service allow-list named in Services at
// startup; per-service membership still lives in the shared store.
type AlertsConfig struct {
	Enabled     bool     `yaml:"enabled"`
	DefaultBins []int    `yaml:"default_bins"`
	Services    []string `yaml:"services"`
}

// LoggingConfig configures logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// MetricsConfig configures the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file, applies APIMETER_* environment
// overrides, defaults, and validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// Useful for container deployments where no config file is mounted.
//
// Environment variables:
//
//	APIMETER_SERVER_HOST     - listen host (default: 0.0.0.0)
//	APIMETER_SERVER_PORT     - listen port (default: 8080)
//	APIMETER_STORE_ADDR      - Redis address (default: localhost:6379)
//	APIMETER_STORE_PASSWORD  - Redis password
//	APIMETER_STORE_DB        - Redis database number
//	APIMETER_EVENTS_BACKEND  - event sink: sqlite or memory (default: sqlite)
//	APIMETER_EVENTS_PATH     - sqlite event database path
//	APIMETER_LOG_LEVEL       - debug, info, warn, error (default: info)
//	APIMETER_LOG_FORMAT      - json or console (default: json)
//	APIMETER_METRICS_ENABLED - enable /metrics (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// LoadWithFallback tries to load from file, falling back to environment
// variables when the file does not exist.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("APIMETER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("APIMETER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("APIMETER_STORE_ADDR"); v != "" {
		cfg.Store.Addr = v
	}
	if v := os.Getenv("APIMETER_STORE_PASSWORD"); v != "" {
		cfg.Store.Password = v
	}
	if v := os.Getenv("APIMETER_STORE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.DB = db
		}
	}
	if v := os.Getenv("APIMETER_EVENTS_BACKEND"); v != "" {
		cfg.Events.Backend = v
	}
	if v := os.Getenv("APIMETER_EVENTS_PATH"); v != "" {
		cfg.Events.Path = v
	}
	if v := os.Getenv("APIMETER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("APIMETER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("APIMETER_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 10 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 10 * time.Second
	}
	if cfg.Store.Addr == "" {
		cfg.Store.Addr = "localhost:6379"
	}
	if cfg.Events.Backend == "" {
		cfg.Events.Backend = "sqlite"
	}
	if cfg.Events.Backend == "sqlite" && cfg.Events.Path == "" {
		cfg.Events.Path = "apimeter-events.db"
	}
	if cfg.Alerts.DefaultBins == nil {
		cfg.Alerts.DefaultBins = []int{50, 80, 90, 100, 120, 150, 200, 300}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	switch cfg.Events.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("events.backend must be sqlite or memory, got %q", cfg.Events.Backend)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level invalid: %q", cfg.Logging.Level)
	}
	for _, bin := range cfg.Alerts.DefaultBins {
		if bin < 0 {
			return fmt.Errorf("alerts.default_bins contains negative bin %d", bin)
		}
	}
	return nil
}
