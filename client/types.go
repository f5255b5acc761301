package client

import (
	"time"

	"github.com/persistorai/clustermap/internal/models"
)

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Facets are the narrowing criteria of a session.
type Facets struct {
	PickedPoint   *models.Point     `json:"picked_point,omitempty"`
	ClusterGroups [][]string        `json:"cluster_groups,omitempty"`
	DateRange     *models.DateRange `json:"date_range,omitempty"`
	SearchIDs     []string          `json:"search_ids,omitempty"`
	SearchActive  bool              `json:"search_active"`
}

// ViewState summarises a session's view.
type ViewState struct {
	State          string  `json:"state"`
	SelectionSize  int     `json:"selection_size"`
	Facets         Facets  `json:"facets"`
	Zoom           float64 `json:"zoom"`
	LabelPolicy    string  `json:"label_policy"`
	MultiCluster   bool    `json:"multi_cluster"`
	RenderedPoints int     `json:"rendered_points"`
	Points         int     `json:"points"`
	Documents      int     `json:"documents"`
	Clusters       int     `json:"clusters"`
	Cursor         int     `json:"cursor"`
	Exhausted      bool    `json:"exhausted"`
	FrameSeq       uint64  `json:"frame_seq"`
}

// Session describes one exploration session on a clustermap server.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
	View      ViewState `json:"view"`
}

// SearchResult is returned by a session search.
type SearchResult struct {
	Matches int       `json:"matches"`
	View    ViewState `json:"view"`
}

// LoadResult is returned by a session load-more.
type LoadResult struct {
	Fetched int       `json:"fetched"`
	Added   int       `json:"added"`
	Offset  int       `json:"offset"`
	Done    bool      `json:"done"`
	View    ViewState `json:"view"`
}

// SelectionPage is one page of a session's selected points.
type SelectionPage struct {
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
	Points []models.Point `json:"points"`
}

// ZoomRequest reports a zoom change, with the visible viewport when known.
type ZoomRequest struct {
	Level    float64          `json:"level"`
	Viewport *models.Viewport `json:"viewport,omitempty"`
}
