package selection

import (
	"sort"

	"github.com/persistorai/clustermap/internal/models"
)

// Facets is a read-only snapshot of the four narrowing criteria.
type Facets struct {
	PickedPoint   *models.Point     `json:"picked_point,omitempty"`
	ClusterGroups [][]string        `json:"cluster_groups,omitempty"`
	DateRange     *models.DateRange `json:"date_range,omitempty"`
	SearchIDs     []string          `json:"search_ids,omitempty"`
	SearchActive  bool              `json:"search_active"`
}

// Active reports whether at least one facet is set.
func (f Facets) Active() bool {
	return f.PickedPoint != nil || len(f.ClusterGroups) > 0 || f.DateRange != nil || f.SearchActive
}

// facetState is the engine's mutable facet set. Callers hold the engine lock.
type facetState struct {
	picked *models.Point
	// groups are conjunctive; each group is a union of leaf cluster ids.
	groups    []map[string]struct{}
	dateRange *models.DateRange
	search    map[string]struct{}
}

func (f *facetState) active() bool {
	return f.picked != nil || len(f.groups) > 0 || f.dateRange != nil || f.search != nil
}

// onlyPointFacet reports whether no facet other than the picked point is set.
func (f *facetState) onlyPointFacet() bool {
	return len(f.groups) == 0 && f.dateRange == nil && f.search == nil
}

func (f *facetState) reset() {
	*f = facetState{}
}

// match reports whether p satisfies every active facet. Cluster-label
// points never match.
func (f *facetState) match(p *models.Point) bool {
	if p.Kind != models.KindDocument {
		return false
	}

	if f.picked != nil && p.ID != f.picked.ID {
		return false
	}

	if len(f.groups) > 0 {
		leaf := p.LeafClusterID()
		for _, g := range f.groups {
			if _, ok := g[leaf]; !ok {
				return false
			}
		}
	}

	if f.dateRange != nil && !f.dateRange.Contains(p.Date) {
		return false
	}

	if f.search != nil {
		if _, ok := f.search[p.ID]; !ok {
			return false
		}
	}

	return true
}

func (f *facetState) snapshot() Facets {
	out := Facets{SearchActive: f.search != nil}

	if f.picked != nil {
		p := *f.picked
		out.PickedPoint = &p
	}

	if f.dateRange != nil {
		r := *f.dateRange
		out.DateRange = &r
	}

	for _, g := range f.groups {
		out.ClusterGroups = append(out.ClusterGroups, sortedKeys(g))
	}

	if f.search != nil {
		out.SearchIDs = sortedKeys(f.search)
	}

	return out
}

func toSet(ids []string) map[string]struct{} {
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}

	return out
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	if len(b) < len(a) {
		a, b = b, a
	}

	out := make(map[string]struct{}, len(a))

	for id := range a {
		if _, ok := b[id]; ok {
			out[id] = struct{}{}
		}
	}

	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}

	sort.Strings(out)

	return out
}
