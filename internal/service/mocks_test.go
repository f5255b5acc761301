package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/models"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

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

// corpusBackend serves total synthetic documents split across two leaves.
func corpusBackend(total int) *mockBackend {
	doc := func(i int) models.Point {
		leaf := "L1"
		if i%2 == 1 {
			leaf = "L2"
		}

		return models.NewDocumentPoint(fmt.Sprint(i), fmt.Sprintf("doc %d", i), float64(i), 0, nil, "R/"+leaf)
	}

	return &mockBackend{
		fetchPointsBatch: func(_ context.Context, offset, size int) ([]models.Point, error) {
			var out []models.Point
			for i := offset; i < min(offset+size, total); i++ {
				out = append(out, doc(i))
			}

			return out, nil
		},
		fetchPointsByClusterIDs: func(context.Context, []string) ([]models.Point, error) {
			return nil, nil
		},
		fetchClusters: func(context.Context) ([]models.Cluster, error) {
			return []models.Cluster{
				{ID: "R", Depth: 0, Path: "R", Label: "Root"},
				{ID: "L1", Depth: 1, Path: "R/L1", Label: "One", IsLeaf: true},
				{ID: "L2", Depth: 1, Path: "R/L2", Label: "Two", IsLeaf: true},
			}, nil
		},
		fetchSearchResultIDs: func(context.Context, string, string) ([]string, error) {
			return nil, nil
		},
	}
}
