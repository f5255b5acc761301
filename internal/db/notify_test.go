package db

import (
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func TestChangeWatcher_Coalesces(t *testing.T) {
	var (
		mu  sync.Mutex
		got []ChangeBatch
	)

	done := make(chan struct{}, 4)
	w := NewChangeWatcher(testLogger(), nil, 20*time.Millisecond, func(b ChangeBatch) {
		mu.Lock()
		got = append(got, b)
		mu.Unlock()
		done <- struct{}{}
	})

	for range 3 {
		w.receive(&pgconn.Notification{Channel: ChangeChannel, Payload: `{"table":"cm_points","op":"INSERT"}`})
	}
	w.receive(&pgconn.Notification{Channel: ChangeChannel, Payload: `{"table":"cm_clusters","op":"INSERT"}`})
	w.receive(&pgconn.Notification{Channel: ChangeChannel, Payload: `not json`})
	w.receive(&pgconn.Notification{Channel: ChangeChannel, Payload: `{"op":"INSERT"}`})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch not delivered")
	}

	mu.Lock()
	defer mu.Unlock()

	if len(got) != 1 {
		t.Fatalf("batches = %d, want 1", len(got))
	}

	b := got[0]
	if b.Notifications != 4 || len(b.Changes) != 2 {
		t.Errorf("batch = %+v", b)
	}

	if tables := b.Tables(); len(tables) != 2 || tables[0] != "cm_clusters" || tables[1] != "cm_points" {
		t.Errorf("Tables() = %v", tables)
	}
}

func TestChangeWatcher_FlushEmpty(t *testing.T) {
	called := false
	w := NewChangeWatcher(testLogger(), nil, 0, func(ChangeBatch) { called = true })

	w.flush()

	if called {
		t.Error("empty flush delivered a batch")
	}

	if w.settle != DefaultSettle {
		t.Errorf("settle = %s, want %s", w.settle, DefaultSettle)
	}
}

func TestRetryDelay(t *testing.T) {
	d := minRetry
	for range 20 {
		d = retryDelay(d)

		if d <= 0 || d > maxRetry+maxRetry/4 {
			t.Fatalf("delay %s out of range", d)
		}
	}

	if d < maxRetry*3/4 {
		t.Errorf("delay did not approach the cap: %s", d)
	}
}
