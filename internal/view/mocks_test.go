package view_test

import (
	"context"
	"sync"

	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/view"
)

// mockBackend returns configured responses.
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

// mockRenderer records commands in order.
type mockRenderer struct {
	mu        sync.Mutex
	events    []string
	data      []models.Point
	selection []string
	labels    []string
	zoom      float64
}

func (r *mockRenderer) log(ev string) {
	r.events = append(r.events, ev)
}

func (r *mockRenderer) SetData(points []models.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("data")
	r.data = append([]models.Point(nil), points...)
}

func (r *mockRenderer) SetSelection(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("selection")
	r.selection = append([]string(nil), ids...)
}

func (r *mockRenderer) SetVisibleLabels(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("labels")
	r.labels = append([]string(nil), ids...)
}

func (r *mockRenderer) FitView() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("fit")
}

func (r *mockRenderer) ZoomLevel() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoom
}

func (r *mockRenderer) snapshot() (events, selection, labels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]string(nil), r.selection...), append([]string(nil), r.labels...)
}

// frameRenderer additionally accepts whole frames and data deltas.
type frameRenderer struct {
	mockRenderer
	frames  []view.Frame
	appends [][]models.Point
}

func (r *frameRenderer) RenderFrame(f view.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("frame")
	r.frames = append(r.frames, f)
}

func (r *frameRenderer) AppendData(points []models.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log("append")
	r.appends = append(r.appends, points)
}

// mockTimeline records SetSelection calls.
type mockTimeline struct {
	calls []*models.DateRange
}

func (m *mockTimeline) SetSelection(r *models.DateRange) {
	m.calls = append(m.calls, r)
}
