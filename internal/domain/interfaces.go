// Package domain defines the canonical collaborator interfaces shared by the
// exploration core and its backends (REST client, Postgres store). Consumers
// should depend on these interfaces rather than re-declaring equivalent ones.
package domain

import (
	"context"
	"errors"

	"github.com/persistorai/clustermap/internal/models"
)

// Backend is the document/cluster search service. Every method may fail or
// return an empty slice; empty is not an error.
type Backend interface {
	// FetchPointsBatch returns up to size document points starting at offset.
	FetchPointsBatch(ctx context.Context, offset, size int) ([]models.Point, error)

	// FetchPointsByClusterIDs returns the document points of the given leaf clusters.
	FetchPointsByClusterIDs(ctx context.Context, clusterIDs []string) ([]models.Point, error)

	// FetchClusters returns the whole cluster hierarchy.
	FetchClusters(ctx context.Context) ([]models.Cluster, error)

	// FetchSearchResultIDs returns raw document ids matching query on the
	// given accessor (a document field, or "semantic").
	FetchSearchResultIDs(ctx context.Context, query, accessor string) ([]string, error)
}

// Accessors understood by every backend.
const (
	AccessorTitle    = "title"
	AccessorSemantic = "semantic"
)

// ErrUnknownAccessor is returned for a search accessor a backend cannot serve.
var ErrUnknownAccessor = errors.New("unknown search accessor")
