// Package selection computes the active selection of an exploration session:
// the document points that satisfy every active facet (point pick, cluster
// pick, date range, search result set).
package selection

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/metrics"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/pointstore"
)

// State is the engine's filtering state.
type State int

// Engine states.
const (
	Idle State = iota
	Filtering
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Filtering {
		return "filtering"
	}

	return "idle"
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reason names what caused a selection change.
type Reason string

// Change reasons.
const (
	ReasonPoint   Reason = "point"
	ReasonCluster Reason = "cluster"
	ReasonDate    Reason = "date"
	ReasonSearch  Reason = "search"
	ReasonClear   Reason = "clear"
	ReasonMerge   Reason = "merge"
)

// Change is published after every selection replacement.
type Change struct {
	Reason    Reason
	State     State
	Selection *Selection
	Facets    Facets
}

// Options tune an Engine.
type Options struct {
	// DebugAssertions makes internal invariant violations panic instead of
	// being logged and repaired.
	DebugAssertions bool
}

// Engine owns the facet state and the active selection of one session.
// The selection object is replaced, never mutated, on every change.
type Engine struct {
	store *pointstore.Store
	log   *logrus.Logger
	debug bool

	// opMu orders mutations together with their notifications.
	opMu sync.Mutex

	mu        sync.RWMutex
	facets    facetState
	selection *Selection
	gen       uint64

	// cacheMu guards the membership cache. Lock order: mu, then cacheMu.
	cacheMu  sync.Mutex
	cacheFor *Selection
	cache    map[string]struct{}

	subsMu sync.RWMutex
	subs   map[int]func(Change)
	nextID int

	unsubscribe func()
}

// New creates an engine over store and subscribes it to store merges.
func New(store *pointstore.Store, log *logrus.Logger, opts Options) *Engine {
	e := &Engine{
		store:     store,
		log:       log,
		debug:     opts.DebugAssertions,
		selection: &Selection{},
		subs:      make(map[int]func(Change)),
	}

	e.unsubscribe = store.Subscribe(e.onMerge)

	return e
}

// Close detaches the engine from its point store.
func (e *Engine) Close() {
	e.unsubscribe()
}

// Subscribe registers fn to receive every change. fn runs synchronously, in
// change order, and must not call the engine's mutating methods.
func (e *Engine) Subscribe(fn func(Change)) func() {
	e.subsMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.subsMu.Unlock()

	return func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

// State returns Filtering when at least one facet is active.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	if e.facets.active() {
		return Filtering
	}

	return Idle
}

// IsSelectionActive reports whether filtering is active.
func (e *Engine) IsSelectionActive() bool {
	return e.State() == Filtering
}

// Facets returns a snapshot of the facet state.
func (e *Engine) Facets() Facets {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.facets.snapshot()
}

// Selection returns the current active selection.
func (e *Engine) Selection() *Selection {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.selection
}

// PickPoint selects a single document point. It is rejected for a
// cluster-label point or while any other facet is active; a second pick
// replaces the first.
func (e *Engine) PickPoint(p models.Point) error {
	if p.IsClusterLabel() {
		return fmt.Errorf("picking %s: %w", p.ID, models.ErrPickRejected)
	}

	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	if !e.facets.onlyPointFacet() {
		e.mu.Unlock()
		return fmt.Errorf("picking %s while filtering: %w", p.ID, models.ErrPickRejected)
	}

	e.facets.picked = &p
	e.recomputeLocked()
	ch := e.changeLocked(ReasonPoint)
	e.mu.Unlock()

	e.publish(ch)

	return nil
}

// PickClusters narrows by a set of leaf cluster ids. With extend set and a
// cluster facet already active, the ids join the most recent cluster group
// and the selection is recomputed (the only widening operation). Otherwise
// they form a new conjunctive group. An empty set yields an empty narrowing.
func (e *Engine) PickClusters(leafIDs []string, extend bool) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	if extend && len(e.facets.groups) > 0 {
		last := e.facets.groups[len(e.facets.groups)-1]
		grown := make(map[string]struct{}, len(last)+len(leafIDs))

		for id := range last {
			grown[id] = struct{}{}
		}

		for _, id := range leafIDs {
			grown[id] = struct{}{}
		}

		e.facets.groups[len(e.facets.groups)-1] = grown
		e.recomputeLocked()
	} else {
		wasActive := e.facets.active()
		group := toSet(leafIDs)
		e.facets.groups = append(e.facets.groups, group)
		e.narrowLocked(wasActive, func(p *models.Point) bool {
			_, ok := group[p.LeafClusterID()]
			return ok
		})
	}

	ch := e.changeLocked(ReasonCluster)
	e.mu.Unlock()

	e.publish(ch)
}

// PickDateRange narrows by an inclusive date range. A range applied while
// another is active is intersected with it. An inverted range selects
// nothing.
func (e *Engine) PickDateRange(r models.DateRange) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	wasActive := e.facets.active()

	if e.facets.dateRange != nil {
		r = e.facets.dateRange.Intersect(r)
	}

	e.facets.dateRange = &r
	e.narrowLocked(wasActive, func(p *models.Point) bool {
		return r.Contains(p.Date)
	})

	ch := e.changeLocked(ReasonDate)
	e.mu.Unlock()

	e.publish(ch)
}

// ApplySearchResults narrows by a set of point-store ids. Results applied
// while a search facet is active are intersected with it.
func (e *Engine) ApplySearchResults(ids []string) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	wasActive := e.facets.active()
	set := toSet(ids)

	if e.facets.search != nil {
		set = intersect(e.facets.search, set)
	}

	e.facets.search = set
	e.narrowLocked(wasActive, func(p *models.Point) bool {
		_, ok := set[p.ID]
		return ok
	})

	ch := e.changeLocked(ReasonSearch)
	e.mu.Unlock()

	e.publish(ch)
}

// Clear resets every facet and empties the selection. Clearing an idle
// engine changes nothing and publishes nothing. Reports whether it changed
// anything.
func (e *Engine) Clear() bool {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	if !e.facets.active() && e.selection.Len() == 0 {
		e.mu.Unlock()
		return false
	}

	e.facets.reset()
	e.replaceLocked(nil)
	ch := e.changeLocked(ReasonClear)
	e.mu.Unlock()

	e.publish(ch)

	return true
}

// onMerge extends the selection with newly merged points that satisfy the
// active facets. Runs synchronously inside pointstore.Merge.
func (e *Engine) onMerge(added []models.Point) {
	e.opMu.Lock()
	defer e.opMu.Unlock()

	e.mu.Lock()
	if !e.facets.active() {
		e.mu.Unlock()
		return
	}

	var matched []string

	for i := range added {
		if e.facets.match(&added[i]) {
			matched = append(matched, added[i].ID)
		}
	}

	if len(matched) == 0 {
		e.mu.Unlock()
		return
	}

	// Appending never overwrites ids visible through an older selection:
	// each selection sees only its own prefix of the backing array.
	e.replaceLocked(append(e.selection.ids, matched...))
	ch := e.changeLocked(ReasonMerge)
	e.mu.Unlock()

	e.log.WithFields(logrus.Fields{
		"added":    len(matched),
		"selected": ch.Selection.Len(),
	}).Debug("selection extended by merge")

	e.publish(ch)
}

// narrowLocked applies a new facet. When filtering was already active the
// current selection is filtered by keep; otherwise the selection is seeded
// from the store.
func (e *Engine) narrowLocked(wasActive bool, keep func(*models.Point) bool) {
	if !wasActive {
		e.recomputeLocked()
		return
	}

	pts := e.store.Resolve(e.selection.ids)
	ids := make([]string, 0, len(pts))

	for i := range pts {
		if keep(&pts[i]) {
			ids = append(ids, pts[i].ID)
		}
	}

	e.replaceLocked(ids)
}

// recomputeLocked rebuilds the selection from the facets over the whole store.
func (e *Engine) recomputeLocked() {
	if !e.facets.active() {
		e.replaceLocked(nil)
		return
	}

	var ids []string

	for _, p := range e.store.All() {
		if e.facets.match(&p) {
			ids = append(ids, p.ID)
		}
	}

	e.replaceLocked(ids)
}

// replaceLocked installs a new selection object and drops the membership
// cache in the same step.
func (e *Engine) replaceLocked(ids []string) {
	e.gen++
	e.selection = &Selection{ids: ids, gen: e.gen}

	e.cacheMu.Lock()
	e.cacheFor = nil
	e.cache = nil
	e.cacheMu.Unlock()

	metrics.SelectionSize.Observe(float64(len(ids)))
}

func (e *Engine) changeLocked(reason Reason) Change {
	return Change{
		Reason:    reason,
		State:     e.stateLocked(),
		Selection: e.selection,
		Facets:    e.facets.snapshot(),
	}
}

func (e *Engine) publish(ch Change) {
	e.subsMu.RLock()
	fns := make([]func(Change), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subsMu.RUnlock()

	for _, fn := range fns {
		fn(ch)
	}
}
