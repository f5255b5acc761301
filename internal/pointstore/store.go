// Package pointstore holds the document and cluster-label points resident in
// one exploration session. The store only grows: points are merged, never
// removed or replaced.
package pointstore

import (
	"sync"

	"github.com/persistorai/clustermap/internal/models"
)

// MergeFunc observes the points added by one merge.
type MergeFunc func(added []models.Point)

// Store is an append-only, id-deduplicated point set. Safe for concurrent use.
type Store struct {
	// notifyMu orders merges together with their notifications, so observers
	// see merges in the order they were applied.
	notifyMu sync.Mutex

	mu        sync.RWMutex
	points    []models.Point
	index     map[string]int
	documents int

	listenerMu sync.RWMutex
	listeners  []listener
	nextID     int
}

type listener struct {
	id int
	fn MergeFunc
}

// New returns an empty store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Subscribe registers fn to run after every merge that added points.
// Subscribers run synchronously on the merging goroutine in registration
// order and must not call Merge. The returned func removes the subscription.
func (s *Store) Subscribe(fn MergeFunc) func() {
	s.listenerMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	s.listenerMu.Unlock()

	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()

		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Merge appends the points whose id is not yet present, including
// duplicates within pts, and returns the ones added in input order.
// Subscribers are notified before Merge returns.
func (s *Store) Merge(pts []models.Point) []models.Point {
	if len(pts) == 0 {
		return nil
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	var added []models.Point

	for i := range pts {
		if _, ok := s.index[pts[i].ID]; ok {
			continue
		}

		s.index[pts[i].ID] = len(s.points)
		s.points = append(s.points, pts[i])
		added = append(added, pts[i])

		if pts[i].Kind == models.KindDocument {
			s.documents++
		}
	}
	s.mu.Unlock()

	if len(added) == 0 {
		return nil
	}

	s.listenerMu.RLock()
	fns := make([]MergeFunc, 0, len(s.listeners))
	for _, l := range s.listeners {
		fns = append(fns, l.fn)
	}
	s.listenerMu.RUnlock()

	for _, fn := range fns {
		fn(added)
	}

	return added
}

// All returns a read-only snapshot of every point in merge order. The slice
// shares storage with the store and must not be modified.
func (s *Store) All() []models.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.points[:len(s.points):len(s.points)]
}

// ByID returns the point with the given id.
func (s *Store) ByID(id string) (models.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.index[id]
	if !ok {
		return models.Point{}, false
	}

	return s.points[i], true
}

// Has reports whether id is present.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.index[id]

	return ok
}

// Resolve returns the points for ids in the given order, skipping unknown ids.
func (s *Store) Resolve(ids []string) []models.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Point, 0, len(ids))

	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			out = append(out, s.points[i])
		}
	}

	return out
}

// Filter returns the points for which keep returns true, in merge order.
func (s *Store) Filter(keep func(*models.Point) bool) []models.Point {
	var out []models.Point

	for _, p := range s.All() {
		if keep(&p) {
			out = append(out, p)
		}
	}

	return out
}

// Len returns the total number of points.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.points)
}

// DocumentCount returns the number of document points.
func (s *Store) DocumentCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.documents
}
