// Package service manages exploration sessions: one point store, hierarchy,
// selection engine, loader and view coordinator per connected map.
package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/hierarchy"
	"github.com/persistorai/clustermap/internal/labels"
	"github.com/persistorai/clustermap/internal/loader"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/pointstore"
	"github.com/persistorai/clustermap/internal/selection"
	"github.com/persistorai/clustermap/internal/view"
)

// SessionOptions configure the components of a new session.
type SessionOptions struct {
	Loader          loader.Options
	LabelPolicy     string
	MultiCluster    bool
	DrillZoom       float64
	DebugAssertions bool
}

// Session is one exploration of the map.
type Session struct {
	ID        string
	CreatedAt time.Time

	store  *pointstore.Store
	tree   *hierarchy.Hierarchy
	engine *selection.Engine
	loader *loader.Loader
	view   *view.Coordinator
	log    *logrus.Logger

	lastSeen atomic.Int64
	closed   atomic.Bool
}

// NewSession wires a session's components. The engine subscribes to the
// store before the coordinator does.
func NewSession(id string, backend domain.Backend, r view.Renderer, tl view.Timeline, log *logrus.Logger, opts SessionOptions) (*Session, error) {
	policy, err := labels.ByName(opts.LabelPolicy)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s := &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		store:     pointstore.New(),
		tree:      hierarchy.New(),
		log:       log,
	}

	s.engine = selection.New(s.store, log, selection.Options{DebugAssertions: opts.DebugAssertions})
	s.loader = loader.New(backend, s.store, s.tree, log, opts.Loader)
	s.view = view.New(view.Deps{
		Store:    s.store,
		Tree:     s.tree,
		Engine:   s.engine,
		Loader:   s.loader,
		Renderer: r,
		Timeline: tl,
	}, log, view.Options{
		Policy:       policy,
		MultiCluster: opts.MultiCluster,
		DrillZoom:    opts.DrillZoom,
	})

	s.Touch()

	return s, nil
}

// Start loads the cluster hierarchy and the first window of points
// concurrently, then pushes the data and fits the view.
func (s *Session) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		_, err := s.loader.LoadHierarchy(gctx)
		return err
	})

	g.Go(func() error {
		_, err := s.loader.LoadInitial(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("starting session %s: %w", s.ID, err)
	}

	s.view.Start()

	s.log.WithFields(logrus.Fields{
		"session_id": s.ID,
		"points":     s.store.Len(),
		"clusters":   s.tree.Len(),
	}).Info("session started")

	return nil
}

// Close detaches the session's subscriptions. It is safe to call twice.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.view.Close()
	s.engine.Close()
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool { return s.closed.Load() }

// Touch records activity on the session.
func (s *Session) Touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// LastSeen returns the time of the last recorded activity.
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// View returns the session's coordinator.
func (s *Session) View() *view.Coordinator { return s.view }

// Engine returns the session's selection engine.
func (s *Session) Engine() *selection.Engine { return s.engine }

// Loader returns the session's loader.
func (s *Session) Loader() *loader.Loader { return s.loader }

// Store returns the session's point store.
func (s *Session) Store() *pointstore.Store { return s.store }

// Tree returns the session's cluster hierarchy.
func (s *Session) Tree() *hierarchy.Hierarchy { return s.tree }

// Info summarises a session for listing.
type Info struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	LastSeen  time.Time     `json:"last_seen"`
	View      view.Snapshot `json:"view"`
}

// Info returns a summary of the session.
func (s *Session) Info() Info {
	return Info{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		LastSeen:  s.LastSeen().UTC(),
		View:      s.view.Snapshot(),
	}
}

// discard is a renderer that ignores every command.
type discard struct{}

func (discard) SetData([]models.Point) {}

func (discard) SetSelection([]string) {}

func (discard) SetVisibleLabels([]string) {}

func (discard) FitView() {}

func (discard) ZoomLevel() float64 { return 0 }

// discardTimeline is a timeline that ignores every command.
type discardTimeline struct{}

func (discardTimeline) SetSelection(*models.DateRange) {}
