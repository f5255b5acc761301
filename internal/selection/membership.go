package selection

import (
	"fmt"

	"github.com/persistorai/clustermap/internal/metrics"
	"github.com/persistorai/clustermap/internal/models"
)

// Selection is an immutable set of selected point ids in store merge order.
type Selection struct {
	ids []string
	gen uint64
}

// Len returns the number of selected points.
func (s *Selection) Len() int {
	if s == nil {
		return 0
	}

	return len(s.ids)
}

// Generation increases with every replacement.
func (s *Selection) Generation() uint64 {
	if s == nil {
		return 0
	}

	return s.gen
}

// IDs returns the selected ids. The slice must not be modified.
func (s *Selection) IDs() []string {
	if s == nil {
		return nil
	}

	return s.ids[:len(s.ids):len(s.ids)]
}

// Page returns up to limit ids starting at offset.
func (s *Selection) Page(offset, limit int) []string {
	ids := s.IDs()
	if offset < 0 || offset >= len(ids) || limit <= 0 {
		return nil
	}

	return ids[offset:min(offset+limit, len(ids))]
}

// IsSelected reports whether p is in the active selection.
func (e *Engine) IsSelected(p *models.Point) bool {
	return e.IsSelectedID(p.ID)
}

// IsSelectedID reports whether id is in the active selection. The lookup
// set is rebuilt only when the selection object differs from the one it
// was built from.
func (e *Engine) IsSelectedID(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	sel := e.selection

	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()

	switch {
	case e.cacheFor != sel:
		e.rebuildLocked(sel)
	case len(e.cache) != sel.Len():
		e.staleCacheLocked(sel)
	}

	_, ok := e.cache[id]

	return ok
}

// rebuildLocked builds the lookup set for sel. Callers hold cacheMu.
func (e *Engine) rebuildLocked(sel *Selection) {
	cache := make(map[string]struct{}, sel.Len())
	for _, id := range sel.ids {
		cache[id] = struct{}{}
	}

	e.cache = cache
	e.cacheFor = sel

	metrics.MembershipRebuilds.Inc()
}

// staleCacheLocked handles a cache that disagrees with the selection it
// claims to mirror.
func (e *Engine) staleCacheLocked(sel *Selection) {
	msg := fmt.Sprintf("membership cache holds %d ids for selection generation %d of %d ids",
		len(e.cache), sel.Generation(), sel.Len())

	if e.debug {
		panic(msg)
	}

	e.log.WithField("generation", sel.Generation()).Warn(msg + ", rebuilding")
	e.rebuildLocked(sel)
}
