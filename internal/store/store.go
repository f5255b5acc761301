// Package store implements the map backend over PostgreSQL.
//
// Each store owns one table and embeds the shared Base. Stores never import
// each other; Backend composes them into a domain.Backend.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/dbpool"
)

// Statement deadlines. Imports write millions of rows in one transaction.
const (
	queryTimeout  = 30 * time.Second
	importTimeout = 10 * time.Minute
)

// snapshotRead is a read-only view of one table state, so a multi-statement
// read never mixes rows from before and after an import.
var snapshotRead = pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead}

// Base contains shared dependencies for all stores.
type Base struct {
	Pool *dbpool.Pool
	Log  *logrus.Logger
}

// within bounds ctx by d unless the caller already set an earlier deadline.
func within(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < d {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}

// inTx runs fn in a transaction that commits when fn returns nil and rolls
// back otherwise.
func (b *Base) inTx(ctx context.Context, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	if err := pgx.BeginTxFunc(ctx, b.Pool, opts, fn); err != nil {
		return fmt.Errorf("transaction: %w", err)
	}

	return nil
}
