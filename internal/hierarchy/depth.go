package hierarchy

import (
	"sort"

	"github.com/persistorai/clustermap/internal/models"
)

// DepthIndex maps depth to the ordered cluster ids at that depth. It is
// immutable once built.
type DepthIndex struct {
	depths  []int
	byDepth map[int][]string
	total   int
}

// NewDepthIndex builds an index from clusters. Duplicate ids are kept once.
func NewDepthIndex(clusters []models.Cluster) *DepthIndex {
	return newDepthIndex(clusters)
}

func newDepthIndex(clusters []models.Cluster) *DepthIndex {
	idx := &DepthIndex{byDepth: make(map[int][]string)}
	seen := make(map[string]struct{}, len(clusters))

	for _, c := range clusters {
		if _, dup := seen[c.ID]; dup {
			continue
		}

		seen[c.ID] = struct{}{}

		if _, ok := idx.byDepth[c.Depth]; !ok {
			idx.depths = append(idx.depths, c.Depth)
		}

		idx.byDepth[c.Depth] = append(idx.byDepth[c.Depth], c.ID)
		idx.total++
	}

	sort.Ints(idx.depths)

	for _, ids := range idx.byDepth {
		sort.Strings(ids)
	}

	return idx
}

// Depths returns the populated depths in ascending order.
func (d *DepthIndex) Depths() []int {
	if d == nil {
		return nil
	}

	return d.depths
}

// At returns the cluster ids at depth, sorted. Callers must not modify it.
func (d *DepthIndex) At(depth int) []string {
	if d == nil {
		return nil
	}

	return d.byDepth[depth]
}

// Len returns the total number of indexed clusters.
func (d *DepthIndex) Len() int {
	if d == nil {
		return 0
	}

	return d.total
}

// MaxDepth returns the deepest populated depth, or -1 when empty.
func (d *DepthIndex) MaxDepth() int {
	if d == nil || len(d.depths) == 0 {
		return -1
	}

	return d.depths[len(d.depths)-1]
}

// Ordered returns every id by depth ascending, then id.
func (d *DepthIndex) Ordered() []string {
	out := make([]string, 0, d.Len())

	for _, depth := range d.Depths() {
		out = append(out, d.byDepth[depth]...)
	}

	return out
}
