package store

import (
	"context"
	"fmt"

	"github.com/persistorai/clustermap/internal/models"
)

// ClusterStore reads the cluster hierarchy.
type ClusterStore struct {
	Base
}

// NewClusterStore creates a ClusterStore.
func NewClusterStore(base Base) *ClusterStore {
	return &ClusterStore{Base: base}
}

// FetchClusters returns every cluster, root-most first.
func (s *ClusterStore) FetchClusters(ctx context.Context) ([]models.Cluster, error) {
	ctx, cancel := within(ctx, queryTimeout)
	defer cancel()

	rows, err := s.Pool.Query(ctx, `SELECT `+clusterColumns+` FROM cm_clusters ORDER BY depth, cluster_id`)
	if err != nil {
		return nil, fmt.Errorf("querying clusters: %w", err)
	}
	defer rows.Close()

	var out []models.Cluster

	for rows.Next() {
		c, err := scanCluster(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning cluster: %w", err)
		}

		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clusters: %w", err)
	}

	return out, nil
}
