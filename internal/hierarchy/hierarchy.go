// Package hierarchy holds the cluster tree of one exploration session and
// the indexes derived from it.
package hierarchy

import (
	"sort"
	"sync"

	"github.com/persistorai/clustermap/internal/models"
)

// Hierarchy is the cluster tree. It is built from bulk loads; Build is
// idempotent and later builds only extend it. Safe for concurrent use.
type Hierarchy struct {
	mu       sync.RWMutex
	loaded   bool
	clusters map[string]models.Cluster
	children map[string]int
	leaves   []string
	index    *DepthIndex
}

// New returns an empty, not-yet-loaded hierarchy.
func New() *Hierarchy {
	return &Hierarchy{
		clusters: make(map[string]models.Cluster),
		children: make(map[string]int),
		index:    newDepthIndex(nil),
	}
}

// Build merges clusters into the tree and rebuilds the derived indexes.
// Clusters whose id is already present are ignored. A path that does not
// end in the cluster's own id has it appended. Returns the number added.
func (h *Hierarchy) Build(clusters []models.Cluster) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	added := 0

	for _, c := range clusters {
		if c.ID == "" {
			continue
		}

		if _, ok := h.clusters[c.ID]; ok {
			continue
		}

		c.Path = normalisePath(c.Path, c.ID)
		h.clusters[c.ID] = c
		added++

		segs := models.SplitPath(c.Path)
		if len(segs) > 1 {
			h.children[segs[len(segs)-2]]++
		}
	}

	h.loaded = true

	if added > 0 {
		h.reindex()
	}

	return added
}

func normalisePath(path, id string) string {
	segs := models.SplitPath(path)
	if len(segs) == 0 || segs[len(segs)-1] != id {
		segs = append(segs, id)
	}

	return models.JoinPath(segs...)
}

// reindex rebuilds the leaf list and depth index. Callers hold the write lock.
func (h *Hierarchy) reindex() {
	all := make([]models.Cluster, 0, len(h.clusters))
	h.leaves = h.leaves[:0]

	for _, c := range h.clusters {
		all = append(all, c)

		if h.leafLocked(c) {
			h.leaves = append(h.leaves, c.ID)
		}
	}

	sort.Strings(h.leaves)
	h.index = newDepthIndex(all)
}

// leafLocked trusts the source's leaf flag and infers leaves only for
// clusters loaded without one. Callers hold the lock.
func (h *Hierarchy) leafLocked(c models.Cluster) bool {
	if c.IsLeaf || c.LeafKnown {
		return c.IsLeaf
	}

	return h.children[c.ID] == 0
}

// Loaded reports whether at least one Build has happened.
func (h *Hierarchy) Loaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.loaded
}

// Len returns the number of clusters.
func (h *Hierarchy) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clusters)
}

// Get returns a cluster by id.
func (h *Hierarchy) Get(id string) (models.Cluster, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clusters[id]

	return c, ok
}

// IsLeaf reports whether id is a known leaf cluster.
func (h *Hierarchy) IsLeaf(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.clusters[id]

	return ok && h.leafLocked(c)
}

// All returns every cluster ordered by depth, then id.
func (h *Hierarchy) All() []models.Cluster {
	h.mu.RLock()
	idx := h.index
	out := make([]models.Cluster, 0, len(h.clusters))

	for _, d := range idx.Depths() {
		for _, id := range idx.At(d) {
			out = append(out, h.clusters[id])
		}
	}
	h.mu.RUnlock()

	return out
}

// Leaves returns every leaf cluster id, sorted.
func (h *Hierarchy) Leaves() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]string(nil), h.leaves...)
}

// LeavesUnder returns every leaf whose path contains clusterID as a whole
// segment, or whose label equals label. The same logical cluster can carry
// different generated ids across loads, so label equality counts as
// identity; distinct clusters sharing a label over-match. An empty label
// disables the label match.
//
// Before the hierarchy has loaded the result is empty, meaning "not yet known".
func (h *Hierarchy) LeavesUnder(clusterID, label string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.loaded {
		return nil
	}

	var out []string

	for _, id := range h.leaves {
		c := h.clusters[id]
		if models.PathContains(c.Path, clusterID) || (label != "" && c.Label == label) {
			out = append(out, id)
		}
	}

	return out
}

// LeavesIn returns the leaves whose centroid lies inside vp, sorted.
func (h *Hierarchy) LeavesIn(vp models.Viewport) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []string

	for _, id := range h.leaves {
		c := h.clusters[id]
		if vp.Contains(c.X, c.Y) {
			out = append(out, id)
		}
	}

	return out
}

// DepthIndex returns the current depth index. The returned value is never
// mutated; a later Build replaces it.
func (h *Hierarchy) DepthIndex() *DepthIndex {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.index
}

// LabelPoints returns one cluster-label point per cluster, ordered by depth
// then id.
func (h *Hierarchy) LabelPoints() []models.Point {
	all := h.All()
	out := make([]models.Point, 0, len(all))

	for i := range all {
		out = append(out, models.NewClusterLabelPoint(all[i]))
	}

	return out
}
