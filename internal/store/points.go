package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/clustermap/internal/models"
)

// maxBatchSize is a defense-in-depth cap on a single page of points.
const maxBatchSize = 500000

// PointStore reads document points.
type PointStore struct {
	Base
}

// NewPointStore creates a PointStore.
func NewPointStore(base Base) *PointStore {
	return &PointStore{Base: base}
}

// FetchPointsBatch returns up to size points in insertion order, starting at
// offset.
func (s *PointStore) FetchPointsBatch(ctx context.Context, offset, size int) ([]models.Point, error) {
	if offset < 0 || size <= 0 {
		return nil, nil
	}

	size = min(size, maxBatchSize)

	ctx, cancel := within(ctx, queryTimeout)
	defer cancel()

	rows, err := s.Pool.Query(ctx,
		`SELECT `+pointColumns+` FROM cm_points ORDER BY seq OFFSET $1 LIMIT $2`, offset, size)
	if err != nil {
		return nil, fmt.Errorf("querying points batch: %w", err)
	}
	defer rows.Close()

	return collectPoints(rows)
}

// FetchPointsByClusterIDs returns every point whose leaf cluster is one of
// clusterIDs.
func (s *PointStore) FetchPointsByClusterIDs(ctx context.Context, clusterIDs []string) ([]models.Point, error) {
	if len(clusterIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := within(ctx, queryTimeout)
	defer cancel()

	var pts []models.Point

	err := s.inTx(ctx, snapshotRead, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT `+pointColumns+` FROM cm_points WHERE cluster_id = ANY($1) ORDER BY seq`, clusterIDs)
		if err != nil {
			return fmt.Errorf("querying cluster points: %w", err)
		}
		defer rows.Close()

		pts, err = collectPoints(rows)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetching cluster points: %w", err)
	}

	return pts, nil
}

// CountPoints returns the number of stored points.
func (s *PointStore) CountPoints(ctx context.Context) (int, error) {
	ctx, cancel := within(ctx, queryTimeout)
	defer cancel()

	var n int
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM cm_points`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}

	return n, nil
}
