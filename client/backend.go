package client

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/persistorai/clustermap/internal/batch"
	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/models"
)

var _ domain.Backend = (*Client)(nil)

// PointService reads document points from the backend.
type PointService struct {
	c *Client
}

// Batch returns up to size points starting at offset in the backend's
// stable paging order.
func (s *PointService) Batch(ctx context.Context, offset, size int) ([]models.Point, error) {
	params := url.Values{
		"offset": {strconv.Itoa(offset)},
		"size":   {strconv.Itoa(size)},
	}

	cols, err := s.c.decode(ctx, http.MethodGet, withQuery("/api/v1/points", params), nil)
	if err != nil {
		return nil, err
	}

	return batch.Points(cols)
}

// ByCluster returns the points of the given leaf clusters.
func (s *PointService) ByCluster(ctx context.Context, clusterIDs []string) ([]models.Point, error) {
	if len(clusterIDs) == 0 {
		return []models.Point{}, nil
	}

	cols, err := s.c.decode(ctx, http.MethodPost, "/api/v1/points/by-cluster", map[string]any{"cluster_ids": clusterIDs})
	if err != nil {
		return nil, err
	}

	return batch.Points(cols)
}

// ClusterService reads the cluster hierarchy.
type ClusterService struct {
	c *Client
}

// List returns every cluster.
func (s *ClusterService) List(ctx context.Context) ([]models.Cluster, error) {
	cols, err := s.c.decode(ctx, http.MethodGet, "/api/v1/clusters", nil)
	if err != nil {
		return nil, err
	}

	return batch.Clusters(cols)
}

// SearchService runs backend searches.
type SearchService struct {
	c *Client
}

// IDs returns the raw document ids matching query on accessor. An empty
// query matches nothing and is not sent.
func (s *SearchService) IDs(ctx context.Context, query, accessor string) ([]string, error) {
	if query == "" {
		return []string{}, nil
	}

	if accessor == "" {
		accessor = domain.AccessorTitle
	}

	path := withQuery("/api/v1/search/"+url.PathEscape(accessor), url.Values{"q": {query}})

	cols, err := s.c.decode(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	return batch.IDs(cols)
}

// decode runs a request and reads the body as a batch.
func (c *Client) decode(ctx context.Context, method, path string, body any) (*batch.Columns, error) {
	raw, err := c.raw(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	cols, err := batch.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return cols, nil
}

// FetchPointsBatch implements domain.Backend.
func (c *Client) FetchPointsBatch(ctx context.Context, offset, size int) ([]models.Point, error) {
	return c.Points.Batch(ctx, offset, size)
}

// FetchPointsByClusterIDs implements domain.Backend.
func (c *Client) FetchPointsByClusterIDs(ctx context.Context, clusterIDs []string) ([]models.Point, error) {
	return c.Points.ByCluster(ctx, clusterIDs)
}

// FetchClusters implements domain.Backend.
func (c *Client) FetchClusters(ctx context.Context) ([]models.Cluster, error) {
	return c.Clusters.List(ctx)
}

// FetchSearchResultIDs implements domain.Backend.
func (c *Client) FetchSearchResultIDs(ctx context.Context, query, accessor string) ([]string, error) {
	return c.Search.IDs(ctx, query, accessor)
}
