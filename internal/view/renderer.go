// Package view coordinates render-engine events with the selection engine
// and pushes the resulting state back to the renderer.
package view

import (
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/selection"
)

// Renderer is the point-rendering and camera engine. It only receives
// commands; it never gets a handle to mutate session state.
type Renderer interface {
	SetData(points []models.Point)
	SetSelection(pointIDs []string)
	SetVisibleLabels(clusterIDs []string)
	FitView()
	ZoomLevel() float64
}

// FrameRenderer is implemented by renderers that accept a selection and its
// label set in a single call.
type FrameRenderer interface {
	RenderFrame(f Frame)
}

// DataAppender is implemented by renderers that accept merged points as a
// delta instead of the whole data set.
type DataAppender interface {
	AppendData(points []models.Point)
}

// Timeline is the date-range widget.
type Timeline interface {
	// SetSelection highlights r, or clears the highlight when r is nil.
	SetSelection(r *models.DateRange)
}

// Frame is one consistent view state: the selection and the labels that go
// with it.
type Frame struct {
	Seq             uint64           `json:"seq"`
	Reason          string           `json:"reason"`
	SelectionActive bool             `json:"selection_active"`
	Selection       []string         `json:"selection"`
	Labels          []string         `json:"labels"`
	Zoom            float64          `json:"zoom"`
	Facets          selection.Facets `json:"facets"`
}

// Snapshot summarises a session's view state.
type Snapshot struct {
	State          selection.State  `json:"state"`
	SelectionSize  int              `json:"selection_size"`
	Facets         selection.Facets `json:"facets"`
	Zoom           float64          `json:"zoom"`
	LabelPolicy    string           `json:"label_policy"`
	MultiCluster   bool             `json:"multi_cluster"`
	RenderedPoints int              `json:"rendered_points"`
	Points         int              `json:"points"`
	Documents      int              `json:"documents"`
	Clusters       int              `json:"clusters"`
	Cursor         int              `json:"cursor"`
	Exhausted      bool             `json:"exhausted"`
	FrameSeq       uint64           `json:"frame_seq"`
}
