// Package db provides schema migrations and the change-notification bridge
// for the Postgres backend.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/db/migrations"
	"github.com/persistorai/clustermap/internal/dbpool"
)

// newProvider opens a database/sql handle on the pool's connection string,
// since goose needs a *sql.DB. Callers close the returned handle.
func newProvider(pool *dbpool.Pool, fsys fs.FS) (*goose.Provider, *sql.DB, error) {
	if fsys == nil {
		fsys = migrations.FS
	}

	sqlDB, err := sql.Open("pgx", pool.ConnString())
	if err != nil {
		return nil, nil, fmt.Errorf("opening sql.DB for migrations: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("creating goose provider: %w", err)
	}

	return provider, sqlDB, nil
}

// RunMigrations applies all pending migrations and returns how many ran.
// A nil fsys uses the embedded cm_points/cm_clusters schema.
func RunMigrations(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger, fsys fs.FS) (int, error) {
	provider, sqlDB, err := newProvider(pool, fsys)
	if err != nil {
		return 0, err
	}
	defer sqlDB.Close()

	results, err := provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("applying migrations: %w", err)
	}

	for _, r := range results {
		if r.Error != nil {
			return 0, fmt.Errorf("migration %d (%s) failed: %w", r.Source.Version, r.Source.Path, r.Error)
		}

		log.WithFields(logrus.Fields{
			"version":  r.Source.Version,
			"file":     r.Source.Path,
			"duration": r.Duration,
		}).Info("migration applied")
	}

	if len(results) == 0 {
		log.Debug("schema up to date")
	}

	return len(results), nil
}

// CurrentVersion returns the schema version recorded in the database.
func CurrentVersion(ctx context.Context, pool *dbpool.Pool) (int64, error) {
	provider, sqlDB, err := newProvider(pool, nil)
	if err != nil {
		return 0, err
	}
	defer sqlDB.Close()

	v, err := provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}

	return v, nil
}
