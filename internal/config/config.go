// Package config loads engine configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds everything the server and CLI need.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	// PostgresDSN selects the Postgres-backed store; empty falls back to
	// the in-memory store (tests, local runs).
	PostgresDSN string `yaml:"postgres_dsn"`

	// RedisAddr enables the shared forecast cache; empty disables it.
	RedisAddr string   `yaml:"redis_addr"`
	SharedTTL Duration `yaml:"shared_ttl"`

	FitBudget Duration `yaml:"fit_budget"`
	MemoSize  int      `yaml:"memo_size"`
	MemoTTL   Duration `yaml:"memo_ttl"`

	// RateLimit is requests per second admitted by the HTTP surface.
	RateLimit int `yaml:"rate_limit"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "text" or "json"

	// ReferenceEntity is backtested for the accuracy summary endpoint.
	ReferenceEntity string `yaml:"reference_entity"`

	MetricsUser string `yaml:"metrics_user"`
	MetricsPass string `yaml:"metrics_pass"`

	Otel OtelConfig `yaml:"otel"`
}

// OtelConfig controls trace export.
type OtelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		SharedTTL:       Duration(24 * time.Hour),
		FitBudget:       Duration(2 * time.Second),
		MemoSize:        512,
		MemoTTL:         Duration(10 * time.Minute),
		RateLimit:       100,
		LogLevel:        "info",
		LogFormat:       "text",
		ReferenceEntity: "India",
		Otel:            OtelConfig{Endpoint: "localhost:4317"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path) //#nosec G304 -- operator-provided config path
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getEnv("AIDLENS_LISTEN_ADDR", c.ListenAddr)
	c.PostgresDSN = getEnv("POSTGRES_DSN", c.PostgresDSN)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.LogLevel = getEnv("AIDLENS_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("AIDLENS_LOG_FORMAT", c.LogFormat)
	c.ReferenceEntity = getEnv("AIDLENS_REFERENCE_ENTITY", c.ReferenceEntity)
	c.MetricsUser = getEnv("METRICS_USER", c.MetricsUser)
	c.MetricsPass = getEnv("METRICS_PASS", c.MetricsPass)
	c.RateLimit = getEnvInt("AIDLENS_RATE_LIMIT", c.RateLimit)

	if v := os.Getenv("AIDLENS_FIT_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.FitBudget = Duration(d)
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Otel.Enabled = true
		c.Otel.Endpoint = v
	}
}

func (c *Config) validate() error {
	if c.RateLimit <= 0 {
		return fmt.Errorf("rate_limit must be positive, got %d", c.RateLimit)
	}
	if c.FitBudget <= 0 {
		return fmt.Errorf("fit_budget must be positive, got %s", c.FitBudget.Std())
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
