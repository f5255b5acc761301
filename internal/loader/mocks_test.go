package loader_test

import (
	"context"
	"sync"

	"github.com/persistorai/clustermap/internal/models"
)

// mockBackend records calls and returns configured responses.
type mockBackend struct {
	mu    sync.Mutex
	calls []string

	fetchPointsBatch        func(ctx context.Context, offset, size int) ([]models.Point, error)
	fetchPointsByClusterIDs func(ctx context.Context, clusterIDs []string) ([]models.Point, error)
	fetchClusters           func(ctx context.Context) ([]models.Cluster, error)
	fetchSearchResultIDs    func(ctx context.Context, query, accessor string) ([]string, error)
}

func (m *mockBackend) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockBackend) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, c := range m.calls {
		if c == name {
			n++
		}
	}

	return n
}

func (m *mockBackend) FetchPointsBatch(ctx context.Context, offset, size int) ([]models.Point, error) {
	m.record("FetchPointsBatch")
	return m.fetchPointsBatch(ctx, offset, size)
}

func (m *mockBackend) FetchPointsByClusterIDs(ctx context.Context, clusterIDs []string) ([]models.Point, error) {
	m.record("FetchPointsByClusterIDs")
	return m.fetchPointsByClusterIDs(ctx, clusterIDs)
}

func (m *mockBackend) FetchClusters(ctx context.Context) ([]models.Cluster, error) {
	m.record("FetchClusters")
	return m.fetchClusters(ctx)
}

func (m *mockBackend) FetchSearchResultIDs(ctx context.Context, query, accessor string) ([]string, error) {
	m.record("FetchSearchResultIDs")
	return m.fetchSearchResultIDs(ctx, query, accessor)
}
