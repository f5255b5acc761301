package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/persistorai/clustermap/internal/models"
)

// maxBulkBatchSize limits the number of rows per INSERT statement to avoid
// exceeding PostgreSQL's parameter limit (65535 params).
const maxBulkBatchSize = 500

// BulkStore ingests points and clusters.
type BulkStore struct {
	Base
}

// NewBulkStore creates a BulkStore.
func NewBulkStore(base Base) *BulkStore {
	return &BulkStore{Base: base}
}

// UpsertClusters inserts or replaces clusters in one transaction and returns
// the number of rows written.
func (s *BulkStore) UpsertClusters(ctx context.Context, clusters []models.Cluster) (int, error) {
	const cols = 7

	return s.insertBatches(ctx, len(clusters), cols,
		`INSERT INTO cm_clusters (`+clusterColumns+`) VALUES %s
		 ON CONFLICT (cluster_id) DO UPDATE SET
			label = EXCLUDED.label, x = EXCLUDED.x, y = EXCLUDED.y,
			depth = EXCLUDED.depth, is_leaf = EXCLUDED.is_leaf, path = EXCLUDED.path`,
		func(i int) []any {
			c := clusters[i]
			path := c.Path
			if path == "" {
				path = c.ID
			}

			return []any{c.ID, c.Label, c.X, c.Y, c.Depth, c.LeafFlag(), path}
		})
}

// InsertPoints inserts document points in one transaction, skipping ids
// that already exist, and returns the number of new rows. Existing rows keep
// their position in the paging order.
func (s *BulkStore) InsertPoints(ctx context.Context, points []models.Point) (int, error) {
	const cols = 7

	for i := range points {
		if points[i].Kind != models.KindDocument {
			return 0, fmt.Errorf("point %d (%s): only documents are stored", i, points[i].ID)
		}
	}

	return s.insertBatches(ctx, len(points), cols,
		`INSERT INTO cm_points (`+pointColumns+`) VALUES %s ON CONFLICT (document_id) DO NOTHING`,
		func(i int) []any {
			p := points[i]

			var date *time.Time
			if p.Date != nil {
				d := p.Date.UTC()
				date = &d
			}

			return []any{p.SourceID, p.Title, p.X, p.Y, date, p.LeafClusterID(), p.ClusterPath}
		})
}

// insertBatches runs a multi-row INSERT per batch of maxBulkBatchSize rows.
// The statement's %s is replaced by the VALUES tuples.
func (s *BulkStore) insertBatches(ctx context.Context, n, cols int, stmt string, row func(i int) []any) (int, error) {
	if n == 0 {
		return 0, nil
	}

	ctx, cancel := within(ctx, importTimeout)
	defer cancel()

	total := 0

	err := s.inTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for start := 0; start < n; start += maxBulkBatchSize {
			end := min(start+maxBulkBatchSize, n)

			args := make([]any, 0, (end-start)*cols)
			for i := start; i < end; i++ {
				args = append(args, row(i)...)
			}

			tag, err := tx.Exec(ctx, fmt.Sprintf(stmt, valuesPlaceholders(end-start, cols)), args...)
			if err != nil {
				return fmt.Errorf("inserting rows %d-%d: %w", start, end-1, err)
			}

			total += int(tag.RowsAffected())
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bulk insert: %w", err)
	}

	s.Log.WithField("rows", total).Debug("bulk insert committed")

	return total, nil
}

// valuesPlaceholders returns "($1,$2),($3,$4)" for rows=2, cols=2.
func valuesPlaceholders(rows, cols int) string {
	var b strings.Builder

	n := 1
	for r := range rows {
		if r > 0 {
			b.WriteByte(',')
		}

		b.WriteByte('(')

		for c := range cols {
			if c > 0 {
				b.WriteByte(',')
			}

			fmt.Fprintf(&b, "$%d", n)
			n++
		}

		b.WriteByte(')')
	}

	return b.String()
}
