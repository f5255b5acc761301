// Package loader fetches points and clusters from a backend and merges them
// into a session's point store and cluster hierarchy.
package loader

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/hierarchy"
	"github.com/persistorai/clustermap/internal/metrics"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/pointstore"
)

// Defaults applied by New for zero option values.
const (
	DefaultBatchSize  = 10000
	DefaultLimit      = 100000
	DefaultRetryDelay = 500 * time.Millisecond
)

// Options tune a Loader.
type Options struct {
	// InitialSize is the first window fetched by LoadInitial.
	InitialSize int
	// BatchSize is the window fetched by each LoadMore.
	BatchSize int
	// Limit caps the number of rows paged in by LoadInitial/LoadMore.
	Limit int
	// Retries is the number of extra attempts after a failed fetch.
	Retries int
	// RetryDelay is the first backoff delay; it doubles per attempt.
	RetryDelay time.Duration
}

// Result describes one completed load.
type Result struct {
	Fetched int            `json:"fetched"`
	Added   int            `json:"added"`
	Points  []models.Point `json:"-"`
	Offset  int            `json:"offset"`
	Done    bool           `json:"done"`
}

// Loader performs progressive and targeted loads. Loads are monotonic and
// all-or-nothing: a failed fetch merges nothing. Concurrent loads with the
// same key share one request.
type Loader struct {
	backend domain.Backend
	store   *pointstore.Store
	tree    *hierarchy.Hierarchy
	log     *logrus.Logger
	opts    Options
	group   singleflight.Group

	// moreMu serialises cursor-driven paging.
	moreMu sync.Mutex

	mu        sync.Mutex
	cursor    int
	exhausted bool
	clusters  map[string]struct{}
}

// New creates a Loader.
func New(backend domain.Backend, store *pointstore.Store, tree *hierarchy.Hierarchy, log *logrus.Logger, opts Options) *Loader {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	if opts.InitialSize <= 0 {
		opts.InitialSize = opts.BatchSize
	}

	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}

	if opts.Retries < 0 {
		opts.Retries = 0
	}

	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}

	return &Loader{
		backend:  backend,
		store:    store,
		tree:     tree,
		log:      log,
		opts:     opts,
		clusters: make(map[string]struct{}),
	}
}

// Options returns the effective options.
func (l *Loader) Options() Options { return l.opts }

// Cursor returns the offset of the next LoadMore window.
func (l *Loader) Cursor() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.cursor
}

// Exhausted reports whether a paging load has returned no rows. It is a
// hint: further loads are still permitted.
func (l *Loader) Exhausted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.exhausted
}

// LoadHierarchy fetches the cluster tree once, builds the hierarchy and
// merges one label point per cluster. Later calls return (0, nil).
func (l *Loader) LoadHierarchy(ctx context.Context) (int, error) {
	if l.tree.Loaded() {
		return 0, nil
	}

	val, err, _ := l.group.Do("hierarchy", func() (any, error) {
		if l.tree.Loaded() {
			return 0, nil
		}

		clusters, err := withRetry(ctx, l, metrics.ModeTree, func(ctx context.Context) ([]models.Cluster, error) {
			return l.backend.FetchClusters(ctx)
		})
		if err != nil {
			return 0, err
		}

		added := l.tree.Build(clusters)
		labels := l.store.Merge(l.tree.LabelPoints())

		l.log.WithFields(logrus.Fields{
			"clusters": added,
			"labels":   len(labels),
		}).Info("cluster hierarchy loaded")

		return added, nil
	})
	if err != nil {
		return 0, fmt.Errorf("loading hierarchy: %w", err)
	}

	n, ok := val.(int)
	if !ok {
		return 0, fmt.Errorf("loader: unexpected singleflight result type %T", val)
	}

	return n, nil
}

// LoadBatch fetches size points from offset and merges them. It does not
// move the paging cursor.
func (l *Loader) LoadBatch(ctx context.Context, offset, size int) (Result, error) {
	return l.loadBatch(ctx, offset, size, metrics.ModeBatch)
}

func (l *Loader) loadBatch(ctx context.Context, offset, size int, mode string) (Result, error) {
	if offset < 0 || size <= 0 {
		return Result{Offset: offset}, nil
	}

	key := "batch:" + strconv.Itoa(offset) + ":" + strconv.Itoa(size)

	return l.shared(key, func() (Result, error) {
		pts, err := withRetry(ctx, l, mode, func(ctx context.Context) ([]models.Point, error) {
			return l.backend.FetchPointsBatch(ctx, offset, size)
		})
		if err != nil {
			return Result{}, fmt.Errorf("loading batch at %d: %w", offset, err)
		}

		res, err := l.merge(pts, mode)
		res.Offset = offset

		return res, err
	})
}

// LoadInitial fetches the first window. It is a no-op once paging has begun.
func (l *Loader) LoadInitial(ctx context.Context) (Result, error) {
	l.moreMu.Lock()
	defer l.moreMu.Unlock()

	if l.Cursor() > 0 {
		return Result{Offset: l.Cursor()}, nil
	}

	return l.advance(ctx, min(l.opts.InitialSize, l.opts.Limit), metrics.ModeInitial)
}

// LoadMore fetches the next window at the cursor. An empty window marks the
// loader exhausted without error. Reaching the limit returns Done without
// fetching.
func (l *Loader) LoadMore(ctx context.Context) (Result, error) {
	l.moreMu.Lock()
	defer l.moreMu.Unlock()

	remaining := l.opts.Limit - l.Cursor()
	if remaining <= 0 {
		return Result{Offset: l.Cursor(), Done: true}, nil
	}

	return l.advance(ctx, min(l.opts.BatchSize, remaining), metrics.ModeBatch)
}

// advance loads the window at the cursor. Callers hold moreMu.
func (l *Loader) advance(ctx context.Context, size int, mode string) (Result, error) {
	offset := l.Cursor()

	res, err := l.loadBatch(ctx, offset, size, mode)
	if err != nil {
		return res, err
	}

	l.mu.Lock()
	l.cursor = offset + res.Fetched
	l.exhausted = res.Fetched == 0

	res.Done = l.exhausted || l.cursor >= l.opts.Limit
	l.mu.Unlock()

	if res.Fetched == 0 {
		l.log.WithField("offset", offset).Debug("no more points")
	}

	return res, nil
}

// LoadClusterPoints fetches the points of the given leaf clusters and merges
// them. The cluster set is deduplicated and order-insensitive.
func (l *Loader) LoadClusterPoints(ctx context.Context, leafIDs []string) (Result, error) {
	ids := uniqueSorted(leafIDs)
	if len(ids) == 0 {
		return Result{}, nil
	}

	return l.shared("clusters:"+strings.Join(ids, ","), func() (Result, error) {
		pts, err := withRetry(ctx, l, metrics.ModeCluster, func(ctx context.Context) ([]models.Point, error) {
			return l.backend.FetchPointsByClusterIDs(ctx, ids)
		})
		if err != nil {
			return Result{}, fmt.Errorf("loading %d clusters: %w", len(ids), err)
		}

		res, err := l.merge(pts, metrics.ModeCluster)
		if err != nil {
			return res, err
		}

		l.mu.Lock()
		for _, id := range ids {
			l.clusters[id] = struct{}{}
		}
		l.mu.Unlock()

		return res, nil
	})
}

// UnloadedClusters returns the ids that no targeted load has covered yet.
func (l *Loader) UnloadedClusters(ids []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string

	for _, id := range ids {
		if _, ok := l.clusters[id]; !ok {
			out = append(out, id)
		}
	}

	return out
}

// SearchIDs runs a backend search and returns point-store ids.
func (l *Loader) SearchIDs(ctx context.Context, query, accessor string) ([]string, error) {
	raw, err := withRetry(ctx, l, metrics.ModeSearch, func(ctx context.Context) ([]string, error) {
		return l.backend.FetchSearchResultIDs(ctx, query, accessor)
	})
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", accessor, err)
	}

	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, models.DocumentKey(id))
	}

	return ids, nil
}

// merge validates every point before merging any of them.
func (l *Loader) merge(pts []models.Point, mode string) (Result, error) {
	for i := range pts {
		if err := pts[i].Validate(); err != nil {
			metrics.LoadFailures.WithLabelValues(mode).Inc()
			return Result{}, &models.FetchError{Op: mode, Err: fmt.Errorf("point %d: %w", i, err)}
		}
	}

	added := l.store.Merge(pts)
	metrics.PointsLoaded.WithLabelValues(mode).Add(float64(len(added)))

	l.log.WithFields(logrus.Fields{
		"mode":    mode,
		"fetched": len(pts),
		"added":   len(added),
	}).Debug("points merged")

	return Result{Fetched: len(pts), Added: len(added), Points: added}, nil
}

func (l *Loader) shared(key string, fn func() (Result, error)) (Result, error) {
	val, err, _ := l.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return Result{}, err
	}

	res, ok := val.(Result)
	if !ok {
		return Result{}, fmt.Errorf("loader: unexpected singleflight result type %T", val)
	}

	return res, nil
}

// withRetry runs fetch with exponential backoff. The final failure is
// returned as a *models.FetchError.
func withRetry[T any](ctx context.Context, l *Loader, mode string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	var lastErr error

	for attempt := range l.opts.Retries + 1 {
		if err := ctx.Err(); err != nil {
			return zero, &models.FetchError{Op: mode, Err: err}
		}

		v, err := fetch(ctx)
		if err == nil {
			return v, nil
		}

		lastErr = err
		metrics.LoadFailures.WithLabelValues(mode).Inc()

		l.log.WithError(err).WithFields(logrus.Fields{
			"mode":    mode,
			"attempt": attempt + 1,
		}).Warn("backend fetch failed")

		if attempt < l.opts.Retries {
			delay := l.opts.RetryDelay * (1 << attempt) // exponential backoff
			select {
			case <-ctx.Done():
				return zero, &models.FetchError{Op: mode, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}
	}

	return zero, &models.FetchError{Op: mode, Err: lastErr}
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if id == "" {
			continue
		}

		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	sort.Strings(out)

	return out
}
