package store

import (
	"context"
	"fmt"

	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/models"
)

var _ domain.Backend = (*Backend)(nil)

// Backend serves the map from Postgres. Failures are plain errors; the
// loader marks them transient.
type Backend struct {
	*PointStore
	*ClusterStore
	*SearchStore
	*BulkStore
}

// NewBackend composes the table stores over one base.
func NewBackend(base Base) *Backend {
	return &Backend{
		PointStore:   NewPointStore(base),
		ClusterStore: NewClusterStore(base),
		SearchStore:  NewSearchStore(base),
		BulkStore:    NewBulkStore(base),
	}
}

// Import upserts clusters, then inserts points.
func (b *Backend) Import(ctx context.Context, clusters []models.Cluster, points []models.Point) (int, int, error) {
	nc, err := b.UpsertClusters(ctx, clusters)
	if err != nil {
		return 0, 0, fmt.Errorf("importing clusters: %w", err)
	}

	np, err := b.InsertPoints(ctx, points)
	if err != nil {
		return nc, 0, fmt.Errorf("importing points: %w", err)
	}

	return nc, np, nil
}
