package view

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/hierarchy"
	"github.com/persistorai/clustermap/internal/labels"
	"github.com/persistorai/clustermap/internal/loader"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/pointstore"
	"github.com/persistorai/clustermap/internal/selection"
)

// DefaultDrillZoom is the zoom level from which zooming loads the points of
// visible, not yet loaded leaf clusters.
const DefaultDrillZoom = 8

// ErrNotClusterLabel is returned when a label click carries a document point.
var ErrNotClusterLabel = errors.New("not a cluster label point")

// Options tune a Coordinator.
type Options struct {
	Policy       labels.Policy
	MultiCluster bool
	DrillZoom    float64
}

// Deps are the session components a Coordinator drives.
type Deps struct {
	Store    *pointstore.Store
	Tree     *hierarchy.Hierarchy
	Engine   *selection.Engine
	Loader   *loader.Loader
	Renderer Renderer
	Timeline Timeline
}

// Coordinator translates render-engine events into selection changes and
// pushes selection and labels to the renderer as one frame.
//
// The engine must be created before the Coordinator: store merges then
// reach the engine before the Coordinator pushes the merged data.
type Coordinator struct {
	store    *pointstore.Store
	tree     *hierarchy.Hierarchy
	engine   *selection.Engine
	loader   *loader.Loader
	renderer Renderer
	timeline Timeline
	log      *logrus.Logger

	// handlerMu serialises selection-changing handlers, including their I/O.
	handlerMu sync.Mutex

	// frameMu guards view state and makes each frame push atomic.
	frameMu   sync.Mutex
	policy    labels.Policy
	zoom      float64
	seq       uint64
	drillZoom float64

	mu       sync.Mutex
	multi    bool
	rendered int

	unsub []func()
}

// New creates a Coordinator and subscribes it to engine changes and store
// merges.
func New(deps Deps, log *logrus.Logger, opts Options) *Coordinator {
	if opts.Policy == nil {
		opts.Policy = labels.Default()
	}

	if opts.DrillZoom <= 0 {
		opts.DrillZoom = DefaultDrillZoom
	}

	c := &Coordinator{
		store:     deps.Store,
		tree:      deps.Tree,
		engine:    deps.Engine,
		loader:    deps.Loader,
		renderer:  deps.Renderer,
		timeline:  deps.Timeline,
		log:       log,
		policy:    opts.Policy,
		drillZoom: opts.DrillZoom,
		multi:     opts.MultiCluster,
	}

	c.unsub = append(c.unsub,
		c.engine.Subscribe(c.onSelectionChange),
		c.store.Subscribe(c.onMerge),
	)

	return c
}

// Close detaches the Coordinator from the engine and store.
func (c *Coordinator) Close() {
	for _, fn := range c.unsub {
		fn()
	}
}

// Start pushes the resident data, fits the view and renders the first frame.
func (c *Coordinator) Start() {
	c.renderer.SetData(c.store.All())
	c.renderer.FitView()

	c.frameMu.Lock()
	if z := c.renderer.ZoomLevel(); z > 0 && !math.IsNaN(z) {
		c.zoom = z
	}
	c.pushFrameLocked("start", c.engine.Selection())
	c.frameMu.Unlock()
}

// Resync pushes the resident data, a fit and the current frame again, for a
// renderer that attached after Start or lost messages. Merges wait for it to
// finish, so an append never lands between the snapshot and its frame.
func (c *Coordinator) Resync() {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()

	c.renderer.SetData(c.store.All())
	c.renderer.FitView()
	c.pushFrameLocked("resync", c.engine.Selection())
}

// OnPointClick handles a click on a point, or on empty canvas when p is nil.
// An empty-canvas click clears the selection. A rejected pick returns
// models.ErrPickRejected and changes nothing.
func (c *Coordinator) OnPointClick(p *models.Point) error {
	if p == nil {
		c.OnClearRequested()
		return nil
	}

	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	if err := c.engine.PickPoint(*p); err != nil {
		return fmt.Errorf("point click: %w", err)
	}

	return nil
}

// OnLabelClick selects the leaves under the clicked cluster label, loading
// their points first. In multi-cluster mode the leaves join the current
// cluster group.
func (c *Coordinator) OnLabelClick(ctx context.Context, p models.Point) error {
	if !p.IsClusterLabel() {
		return fmt.Errorf("label click on %s: %w", p.ID, ErrNotClusterLabel)
	}

	return c.selectCluster(ctx, p.SourceID, p.Title)
}

// OnClusterSelect selects a cluster by id, as a label click on it would.
func (c *Coordinator) OnClusterSelect(ctx context.Context, clusterID string) error {
	label := ""
	if cl, ok := c.tree.Get(clusterID); ok {
		label = cl.Label
	}

	return c.selectCluster(ctx, clusterID, label)
}

func (c *Coordinator) selectCluster(ctx context.Context, clusterID, label string) error {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	leaves := c.tree.LeavesUnder(clusterID, label)

	if pending := c.loader.UnloadedClusters(leaves); len(pending) > 0 {
		if _, err := c.loader.LoadClusterPoints(ctx, pending); err != nil {
			return fmt.Errorf("label click on %s: %w", clusterID, err)
		}
	}

	c.engine.PickClusters(leaves, c.MultiCluster())

	c.log.WithFields(logrus.Fields{
		"cluster": clusterID,
		"leaves":  len(leaves),
	}).Debug("cluster selected")

	return nil
}

// OnTimelineRangeSelected narrows by a date range and clears the timeline's
// own highlight.
func (c *Coordinator) OnTimelineRangeSelected(r models.DateRange) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	c.engine.PickDateRange(r)

	if c.timeline != nil {
		c.timeline.SetSelection(nil)
	}
}

// OnSearch runs a backend search and narrows by its result set. A failed
// search changes nothing.
func (c *Coordinator) OnSearch(ctx context.Context, query, accessor string) (int, error) {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	ids, err := c.loader.SearchIDs(ctx, query, accessor)
	if err != nil {
		return 0, fmt.Errorf("search: %w", err)
	}

	c.engine.ApplySearchResults(ids)

	return len(ids), nil
}

// OnClearRequested resets every facet and the timeline highlight.
func (c *Coordinator) OnClearRequested() {
	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	c.engine.Clear()

	if c.timeline != nil {
		c.timeline.SetSelection(nil)
	}
}

// OnZoomChanged recomputes labels for level and pushes a frame. From the
// drill zoom on, visible leaf clusters that were never loaded are fetched;
// their points arrive through the normal merge path. A zero or NaN level
// falls back to the renderer's reported zoom.
func (c *Coordinator) OnZoomChanged(ctx context.Context, level float64, vp *models.Viewport) error {
	if level <= 0 || math.IsNaN(level) {
		level = c.renderer.ZoomLevel()
	}

	c.frameMu.Lock()
	c.zoom = level
	drill := c.drillZoom
	c.pushFrameLocked("zoom", c.engine.Selection())
	c.frameMu.Unlock()

	if vp == nil || level < drill {
		return nil
	}

	pending := c.loader.UnloadedClusters(c.tree.LeavesIn(*vp))
	if len(pending) == 0 {
		return nil
	}

	if _, err := c.loader.LoadClusterPoints(ctx, pending); err != nil {
		return fmt.Errorf("zoom drill-down: %w", err)
	}

	return nil
}

// OnPointsFiltered records how many points the renderer reports drawing.
func (c *Coordinator) OnPointsFiltered(n int) {
	c.mu.Lock()
	c.rendered = n
	c.mu.Unlock()
}

// SetMultiClusterMode toggles whether label clicks extend the current
// cluster group instead of narrowing.
func (c *Coordinator) SetMultiClusterMode(on bool) {
	c.mu.Lock()
	c.multi = on
	c.mu.Unlock()
}

// MultiCluster reports the multi-cluster mode.
func (c *Coordinator) MultiCluster() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.multi
}

// SetLabelPolicy switches the label policy and pushes a frame.
func (c *Coordinator) SetLabelPolicy(p labels.Policy) {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()

	c.policy = p
	c.pushFrameLocked("labels", c.engine.Selection())
}

// SetHierarchicalLabels switches between the depth-band and Top-N policies.
func (c *Coordinator) SetHierarchicalLabels(on bool) {
	name := labels.NameTopN
	if on {
		name = labels.NameDepth
	}

	p, err := labels.ByName(name)
	if err != nil {
		c.log.WithError(err).Error("switching label policy")
		return
	}

	c.SetLabelPolicy(p)
}

// VisibleLabels returns the labels for the current zoom and policy.
func (c *Coordinator) VisibleLabels() []string {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()

	return c.policy.LabelsToShow(c.zoom, c.tree.DepthIndex())
}

// Snapshot returns a summary of the view state.
func (c *Coordinator) Snapshot() Snapshot {
	c.frameMu.Lock()
	zoom, policy, seq := c.zoom, c.policy.Name(), c.seq
	c.frameMu.Unlock()

	c.mu.Lock()
	multi, rendered := c.multi, c.rendered
	c.mu.Unlock()

	sel := c.engine.Selection()

	return Snapshot{
		State:          c.engine.State(),
		SelectionSize:  sel.Len(),
		Facets:         c.engine.Facets(),
		Zoom:           zoom,
		LabelPolicy:    policy,
		MultiCluster:   multi,
		RenderedPoints: rendered,
		Points:         c.store.Len(),
		Documents:      c.store.DocumentCount(),
		Clusters:       c.tree.Len(),
		Cursor:         c.loader.Cursor(),
		Exhausted:      c.loader.Exhausted(),
		FrameSeq:       seq,
	}
}

// onSelectionChange pushes a frame for every selection change except merges,
// which onMerge pushes together with the merged data.
func (c *Coordinator) onSelectionChange(ch selection.Change) {
	if ch.Reason == selection.ReasonMerge {
		return
	}

	c.frameMu.Lock()
	defer c.frameMu.Unlock()

	c.pushFrameLocked(string(ch.Reason), ch.Selection)
}

// onMerge pushes merged points, then a frame with the selection the engine
// computed for them.
func (c *Coordinator) onMerge(added []models.Point) {
	c.frameMu.Lock()
	defer c.frameMu.Unlock()

	if app, ok := c.renderer.(DataAppender); ok {
		app.AppendData(added)
	} else {
		c.renderer.SetData(c.store.All())
	}

	c.pushFrameLocked(string(selection.ReasonMerge), c.engine.Selection())
}

// pushFrameLocked sends selection and labels together. Callers hold frameMu.
func (c *Coordinator) pushFrameLocked(reason string, sel *selection.Selection) {
	c.seq++

	f := Frame{
		Seq:             c.seq,
		Reason:          reason,
		SelectionActive: c.engine.IsSelectionActive(),
		Selection:       sel.IDs(),
		Labels:          c.policy.LabelsToShow(c.zoom, c.tree.DepthIndex()),
		Zoom:            c.zoom,
		Facets:          c.engine.Facets(),
	}

	if fr, ok := c.renderer.(FrameRenderer); ok {
		fr.RenderFrame(f)
		return
	}

	c.renderer.SetSelection(f.Selection)
	c.renderer.SetVisibleLabels(f.Labels)
}
