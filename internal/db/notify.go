package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/dbpool"
)

// ChangeChannel is the channel the cm_points trigger notifies on.
const ChangeChannel = "cm_changes"

const (
	// DefaultSettle is how long the watcher waits for further notifications
	// before delivering a batch. A bulk import fires one per statement.
	DefaultSettle = 500 * time.Millisecond

	minRetry    = time.Second
	maxRetry    = 30 * time.Second
	readTimeout = 2 * time.Minute
)

// Change describes one statement-level change to the map tables.
type Change struct {
	Table string `json:"table"`
	Op    string `json:"op"`
}

// ChangeBatch is the set of distinct changes seen within one settle window.
type ChangeBatch struct {
	Changes       []Change
	Notifications int
}

// Tables returns the distinct tables in the batch, sorted.
func (cb ChangeBatch) Tables() []string {
	seen := make(map[string]bool, len(cb.Changes))
	out := make([]string, 0, len(cb.Changes))

	for _, c := range cb.Changes {
		if !seen[c.Table] {
			seen[c.Table] = true
			out = append(out, c.Table)
		}
	}

	sort.Strings(out)

	return out
}

// ChangeWatcher holds one LISTEN connection on ChangeChannel and delivers
// coalesced change batches. It reconnects with jittered backoff.
type ChangeWatcher struct {
	log    *logrus.Logger
	pool   *dbpool.Pool
	settle time.Duration
	onWake func(ChangeBatch)

	mu      sync.Mutex
	pending map[Change]int
	timer   *time.Timer
}

// NewChangeWatcher creates a ChangeWatcher. A non-positive settle uses
// DefaultSettle.
func NewChangeWatcher(log *logrus.Logger, pool *dbpool.Pool, settle time.Duration, onWake func(ChangeBatch)) *ChangeWatcher {
	if settle <= 0 {
		settle = DefaultSettle
	}

	return &ChangeWatcher{
		log:     log,
		pool:    pool,
		settle:  settle,
		onWake:  onWake,
		pending: make(map[Change]int),
	}
}

// Start checks the database is reachable and runs the watch loop in the
// background until ctx is cancelled.
func (w *ChangeWatcher) Start(ctx context.Context) error {
	if err := w.pool.Ping(ctx); err != nil {
		return fmt.Errorf("change watcher: %w", err)
	}

	go w.run(ctx)

	return nil
}

func (w *ChangeWatcher) run(ctx context.Context) {
	defer w.stopTimer()

	delay := minRetry

	for ctx.Err() == nil {
		err := w.watch(ctx)
		if ctx.Err() != nil {
			return
		}

		w.log.WithError(err).WithField("retry_in", delay).Warn("change watcher disconnected")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay = retryDelay(delay)
	}
}

// watch blocks on one connection until it fails or ctx ends.
func (w *ChangeWatcher) watch(ctx context.Context) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{ChangeChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}

	w.log.WithField("channel", ChangeChannel).Info("watching map changes")

	raw := conn.Conn()

	for {
		// Bounded waits let a half-open connection surface as an error.
		if err := raw.PgConn().Conn().SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return fmt.Errorf("setting read deadline: %w", err)
		}

		n, err := raw.WaitForNotification(ctx)
		if err == nil {
			w.receive(n)
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}

		return fmt.Errorf("waiting for notification: %w", err)
	}
}

// receive decodes a payload and adds it to the pending batch, restarting
// the settle timer.
func (w *ChangeWatcher) receive(n *pgconn.Notification) {
	var c Change
	if err := json.Unmarshal([]byte(n.Payload), &c); err != nil || c.Table == "" {
		w.log.WithFields(logrus.Fields{"pid": n.PID, "payload": n.Payload}).Warn("dropping malformed change notification")
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[c]++

	if w.timer == nil {
		w.timer = time.AfterFunc(w.settle, w.flush)
		return
	}

	w.timer.Reset(w.settle)
}

// flush delivers and resets the pending batch.
func (w *ChangeWatcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	var batch ChangeBatch
	for c, n := range w.pending {
		batch.Changes = append(batch.Changes, c)
		batch.Notifications += n
	}
	w.pending = make(map[Change]int)
	w.mu.Unlock()

	sort.Slice(batch.Changes, func(i, j int) bool {
		a, b := batch.Changes[i], batch.Changes[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}

		return a.Op < b.Op
	})

	w.onWake(batch)
}

func (w *ChangeWatcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
}

// retryDelay doubles d up to maxRetry and spreads it by ±25%.
func retryDelay(d time.Duration) time.Duration {
	d = min(d*2, maxRetry)

	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5)) //nolint:gosec // jitter only.
}
