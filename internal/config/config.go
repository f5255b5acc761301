// Package config provides environment-driven configuration for clustermap.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Secret wraps a sensitive string to prevent accidental logging or marshalling.
type Secret string

// String implements fmt.Stringer, returning a redacted placeholder.
func (s Secret) String() string { return "[REDACTED]" }

// GoString implements fmt.GoStringer, returning a redacted placeholder.
func (s Secret) GoString() string { return "[REDACTED]" }

// MarshalText implements encoding.TextMarshaler, returning a redacted placeholder.
func (s Secret) MarshalText() ([]byte, error) { return []byte("[REDACTED]"), nil }

// Value returns the underlying secret string.
func (s Secret) Value() string { return string(s) }

// Backend kinds.
const (
	BackendHTTP     = "http"
	BackendPostgres = "postgres"
)

// Config holds all application configuration values.
type Config struct {
	Port        string
	ListenHost  string
	MetricsPort string
	LogLevel    string
	CORSOrigins []string
	APIKey      Secret

	Backend       string
	BackendURL    string
	BackendAPIKey Secret
	DatabaseURL   Secret
	DBMaxConns    int

	InitialBatchSize int
	BatchSize        int
	PointLimit       int
	LoadRetries      int
	PrefetchWorkers  int

	LabelPolicy        string
	MaxSessions        int
	SessionIdleTimeout time.Duration
	DebugAssertions    bool
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          envOrDefault("PORT", "3040"),
		ListenHost:    envOrDefault("LISTEN_HOST", "127.0.0.1"),
		MetricsPort:   envOrDefault("METRICS_PORT", "9092"),
		LogLevel:      envOrDefault("LOG_LEVEL", "info"),
		APIKey:        Secret(envOrDefault("API_KEY", "")),
		Backend:       envOrDefault("BACKEND", BackendHTTP),
		BackendURL:    envOrDefault("BACKEND_URL", "http://127.0.0.1:9200"),
		BackendAPIKey: Secret(envOrDefault("BACKEND_API_KEY", "")),
		DatabaseURL:   Secret(envOrDefault("DATABASE_URL", "")),
		LabelPolicy:   envOrDefault("LABEL_POLICY", "topn"),
	}

	ints := []struct {
		key      string
		fallback string
		dst      *int
	}{
		{"DB_MAX_CONNS", "10", &cfg.DBMaxConns},
		{"INITIAL_BATCH_SIZE", "10000", &cfg.InitialBatchSize},
		{"BATCH_SIZE", "10000", &cfg.BatchSize},
		{"POINT_LIMIT", "100000", &cfg.PointLimit},
		{"LOAD_RETRIES", "2", &cfg.LoadRetries},
		{"PREFETCH_WORKERS", "2", &cfg.PrefetchWorkers},
		{"MAX_SESSIONS", "64", &cfg.MaxSessions},
	}

	for _, v := range ints {
		n, err := strconv.Atoi(envOrDefault(v.key, v.fallback))
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer: %w", v.key, err)
		}
		*v.dst = n
	}

	idle, err := time.ParseDuration(envOrDefault("SESSION_IDLE_TIMEOUT", "30m"))
	if err != nil {
		return nil, fmt.Errorf("SESSION_IDLE_TIMEOUT must be a duration: %w", err)
	}
	cfg.SessionIdleTimeout = idle

	debug, err := strconv.ParseBool(envOrDefault("DEBUG_ASSERTIONS", "false"))
	if err != nil {
		return nil, fmt.Errorf("DEBUG_ASSERTIONS must be a boolean: %w", err)
	}
	cfg.DebugAssertions = debug

	origins := envOrDefault("CORS_ORIGINS", "http://localhost:5173")
	cfg.CORSOrigins = strings.Split(origins, ",")

	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// Addr returns the listen address in host:port format.
func (c *Config) Addr() string {
	return c.ListenHost + ":" + c.Port
}

// MetricsAddr returns the metrics listen address in host:port format.
func (c *Config) MetricsAddr() string {
	return c.ListenHost + ":" + c.MetricsPort
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}
