// Package dbpool provides PostgreSQL connection pool management.
package dbpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Pool wraps a pgxpool.Pool. The underlying pool is unexported so stores
// go through the query methods below and their own timeouts.
type Pool struct {
	pool *pgxpool.Pool
}

// DefaultMaxConns is used when NewPool is given a non-positive maxConns.
const DefaultMaxConns = 10

// applicationName tags server sessions in pg_stat_activity.
const applicationName = "clustermap"

// ErrSchemaMissing is returned by HealthCheck when the map tables are absent.
var ErrSchemaMissing = errors.New("map schema not migrated")

// NewPool creates a PostgreSQL connection pool and pings it. One
// connection is held by the LISTEN/NOTIFY bridge while the server runs.
func NewPool(ctx context.Context, databaseURL string, maxConns int) (*Pool, error) {
	if maxConns <= 0 {
		maxConns = DefaultMaxConns
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}

	params := cfg.ConnConfig.RuntimeParams
	params["statement_timeout"] = "30000"
	if params["application_name"] == "" {
		params["application_name"] = applicationName
	}

	cfg.MaxConns = int32(maxConns) //nolint:gosec // validated to 2..100 by config.
	cfg.MinConns = min(2, cfg.MaxConns)
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Pool{pool: pool}, nil
}

// Acquire returns a dedicated connection, for LISTEN.
func (p *Pool) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	return p.pool.Acquire(ctx)
}

// Exec executes a statement that returns no rows.
func (p *Pool) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, arguments...)
}

// Query executes a query that returns rows.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}

// QueryRow executes a query that returns at most one row.
func (p *Pool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}

// BeginTx starts a transaction with the given options.
func (p *Pool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) { //nolint:gocritic // matching pgxpool.Pool signature.
	return p.pool.BeginTx(ctx, txOptions)
}

// Ping verifies the pool can reach the database.
func (p *Pool) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// HealthCheck verifies connectivity and that the point and cluster tables
// exist, so a server started against an unmigrated database is not ready.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var ok bool

	err := p.pool.QueryRow(ctx,
		`SELECT to_regclass('cm_points') IS NOT NULL AND to_regclass('cm_clusters') IS NOT NULL`,
	).Scan(&ok)
	if err != nil {
		return fmt.Errorf("health check query: %w", err)
	}

	if !ok {
		return ErrSchemaMissing
	}

	return nil
}

// ConnString returns the connection string used to create the pool.
func (p *Pool) ConnString() string {
	return p.pool.Config().ConnString()
}

// Collectors exposes pool statistics as Prometheus gauges. Register them
// once per process.
func (p *Pool) Collectors() []prometheus.Collector {
	gauge := func(name, help string, fn func(*pgxpool.Stat) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "clustermap_db_pool_" + name,
			Help: help,
		}, func() float64 { return fn(p.pool.Stat()) })
	}

	return []prometheus.Collector{
		gauge("acquired_conns", "Connections currently in use.", func(s *pgxpool.Stat) float64 { return float64(s.AcquiredConns()) }),
		gauge("idle_conns", "Idle connections.", func(s *pgxpool.Stat) float64 { return float64(s.IdleConns()) }),
		gauge("total_conns", "Open connections.", func(s *pgxpool.Stat) float64 { return float64(s.TotalConns()) }),
		gauge("max_conns", "Configured connection limit.", func(s *pgxpool.Stat) float64 { return float64(s.MaxConns()) }),
	}
}

// Close closes the connection pool.
func (p *Pool) Close() {
	p.pool.Close()
}
