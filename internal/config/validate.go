package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	minPointLimit = 10000
	maxPointLimit = 5000000
)

func (c *Config) validate() error {
	if err := c.validateNetwork(); err != nil {
		return err
	}

	if err := c.validateBackend(); err != nil {
		return err
	}

	if err := c.validateCORS(); err != nil {
		return err
	}

	if err := c.validateLoading(); err != nil {
		return err
	}

	return c.validateSessions()
}

func (c *Config) validateNetwork() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid integer: %w", err)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}

	// Loopback for local deployments, 0.0.0.0/:: for containers where the
	// network boundary is enforced externally.
	validHosts := map[string]bool{
		"127.0.0.1": true,
		"::1":       true,
		"localhost": true,
		"0.0.0.0":   true,
		"::":        true,
	}
	if !validHosts[c.ListenHost] {
		return fmt.Errorf("LISTEN_HOST must be a loopback address or 0.0.0.0/:: for containers (got %q)", c.ListenHost)
	}

	metricsPort, err := strconv.Atoi(c.MetricsPort)
	if err != nil {
		return fmt.Errorf("METRICS_PORT must be a valid integer: %w", err)
	}

	if metricsPort < 1 || metricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT must be between 1 and 65535")
	}

	if metricsPort == port {
		return fmt.Errorf("METRICS_PORT must differ from PORT")
	}

	return nil
}

func (c *Config) validateBackend() error {
	switch c.Backend {
	case BackendHTTP:
		u, err := url.ParseRequestURI(c.BackendURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("BACKEND_URL is not a valid URL: %q", c.BackendURL)
		}

		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("BACKEND_URL scheme must be http:// or https://")
		}

		if u.Scheme == "http" && !isLocalhost(c.BackendURL) && c.BackendAPIKey.Value() != "" {
			return fmt.Errorf("BACKEND_URL must use HTTPS when BACKEND_API_KEY is sent to a non-localhost host")
		}
	case BackendPostgres:
		return c.validateDatabase()
	default:
		return fmt.Errorf("BACKEND must be 'http' or 'postgres', got %q", c.Backend)
	}

	return nil
}

func (c *Config) validateDatabase() error {
	if c.DatabaseURL.Value() == "" {
		return fmt.Errorf("DATABASE_URL is required when BACKEND is postgres")
	}

	dbURL, err := url.Parse(c.DatabaseURL.Value())
	if err != nil {
		return fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}

	if dbURL.Scheme != "postgres" && dbURL.Scheme != "postgresql" {
		return fmt.Errorf("DATABASE_URL scheme must be postgres:// or postgresql://")
	}

	if dbURL.Hostname() == "" {
		return fmt.Errorf("DATABASE_URL must include a host")
	}

	dbHost := dbURL.Hostname()
	if dbHost != "localhost" && dbHost != "127.0.0.1" && dbHost != "::1" {
		if dbURL.Query().Get("sslmode") == "disable" {
			return fmt.Errorf("DATABASE_URL sslmode=disable is not allowed for non-local host %q", dbHost)
		}
	}

	if c.DBMaxConns < 2 || c.DBMaxConns > 100 {
		return fmt.Errorf("DB_MAX_CONNS must be between 2 and 100")
	}

	return nil
}

func (c *Config) validateCORS() error {
	for _, origin := range c.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain wildcard '*'")
		}
		if strings.ContainsAny(origin, "*?[]") {
			return fmt.Errorf("CORS_ORIGINS must not contain glob characters (*?[]), got %q", origin)
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("CORS_ORIGINS contains invalid origin %q (must have scheme and host)", origin)
		}
	}

	return nil
}

func (c *Config) validateLoading() error {
	if c.PointLimit < minPointLimit || c.PointLimit > maxPointLimit {
		return fmt.Errorf("POINT_LIMIT must be between %d and %d", minPointLimit, maxPointLimit)
	}

	if c.InitialBatchSize < 1 || c.InitialBatchSize > c.PointLimit {
		return fmt.Errorf("INITIAL_BATCH_SIZE must be between 1 and POINT_LIMIT")
	}

	if c.BatchSize < 1 || c.BatchSize > c.PointLimit {
		return fmt.Errorf("BATCH_SIZE must be between 1 and POINT_LIMIT")
	}

	if c.LoadRetries < 0 || c.LoadRetries > 10 {
		return fmt.Errorf("LOAD_RETRIES must be between 0 and 10")
	}

	if c.PrefetchWorkers < 0 || c.PrefetchWorkers > 16 {
		return fmt.Errorf("PREFETCH_WORKERS must be between 0 and 16")
	}

	return nil
}

func (c *Config) validateSessions() error {
	if c.LabelPolicy != "topn" && c.LabelPolicy != "depth" {
		return fmt.Errorf("LABEL_POLICY must be 'topn' or 'depth', got %q", c.LabelPolicy)
	}

	if c.MaxSessions < 1 || c.MaxSessions > 10000 {
		return fmt.Errorf("MAX_SESSIONS must be between 1 and 10000")
	}

	if c.SessionIdleTimeout < time.Minute {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be at least 1m")
	}

	return nil
}

// isLocalhost returns true if the given address points to a loopback address.
func isLocalhost(addr string) bool {
	u, err := url.Parse(addr)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
