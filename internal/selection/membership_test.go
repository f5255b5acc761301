package selection

import (
	"reflect"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/pointstore"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func seeded(t *testing.T, debug bool) (*Engine, models.Point) {
	t.Helper()

	store := pointstore.New()
	e := New(store, quietLogger(), Options{DebugAssertions: debug})
	t.Cleanup(e.Close)

	p := models.NewDocumentPoint("1", "", 0, 0, nil, "c1")
	store.Merge([]models.Point{p, models.NewDocumentPoint("2", "", 0, 0, nil, "c2")})
	e.PickClusters([]string{"c1"}, false)

	return e, p
}

func TestMembershipCache_RebuiltOncePerSelection(t *testing.T) {
	e, p := seeded(t, true)

	if !e.IsSelected(&p) {
		t.Fatal("expected selected")
	}

	built := reflect.ValueOf(e.cache).Pointer()
	for range 10 {
		e.IsSelectedID("doc:2")
	}

	if e.cacheFor != e.selection {
		t.Fatal("cache should track the current selection")
	}

	if reflect.ValueOf(e.cache).Pointer() != built {
		t.Error("cache rebuilt without a selection change")
	}

	e.Clear()

	if e.cacheFor != nil {
		t.Error("replacing the selection must drop the cache synchronously")
	}

	if e.IsSelected(&p) {
		t.Error("cleared selection still reports membership")
	}
}

func TestMembershipCache_StalePanicsInDebug(t *testing.T) {
	e, p := seeded(t, true)
	e.IsSelected(&p)

	e.cacheMu.Lock()
	e.cache["doc:bogus"] = struct{}{}
	e.cacheMu.Unlock()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on stale cache")
		}
	}()

	e.IsSelected(&p)
}

func TestMembershipCache_StaleRebuildsInProduction(t *testing.T) {
	e, p := seeded(t, false)
	e.IsSelected(&p)

	e.cacheMu.Lock()
	e.cache["doc:bogus"] = struct{}{}
	e.cacheMu.Unlock()

	if e.IsSelectedID("doc:bogus") {
		t.Error("stale entry survived the forced rebuild")
	}

	if !e.IsSelected(&p) {
		t.Error("rebuilt cache lost a real member")
	}
}
