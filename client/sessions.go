package client

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/persistorai/clustermap/internal/models"
)

// SessionService drives exploration sessions on a clustermap server.
type SessionService struct {
	c *Client
}

// sessionListResponse wraps the session list.
type sessionListResponse struct {
	Sessions []Session `json:"sessions"`
}

func sessionPath(id, action string) string {
	p := "/api/v1/sessions/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

// Create starts a new session.
func (s *SessionService) Create(ctx context.Context) (*Session, error) {
	var resp Session
	if err := s.c.post(ctx, "/api/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns all live sessions.
func (s *SessionService) List(ctx context.Context) ([]Session, error) {
	var resp sessionListResponse
	if err := s.c.get(ctx, "/api/v1/sessions", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// Get returns one session.
func (s *SessionService) Get(ctx context.Context, id string) (*Session, error) {
	var resp Session
	if err := s.c.get(ctx, sessionPath(id, ""), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete closes a session.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	return s.c.del(ctx, sessionPath(id, ""), nil)
}

// event posts a session event and decodes the resulting view.
func (s *SessionService) event(ctx context.Context, id, action string, body any) (*ViewState, error) {
	var resp ViewState
	if err := s.c.post(ctx, sessionPath(id, action), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Click selects a point by id. An empty id is a click on empty canvas.
func (s *SessionService) Click(ctx context.Context, id, pointID string) (*ViewState, error) {
	return s.event(ctx, id, "click", map[string]string{"point_id": pointID})
}

// SelectCluster selects the leaves under a cluster, as a label click would.
func (s *SessionService) SelectCluster(ctx context.Context, id, clusterID string) (*ViewState, error) {
	return s.event(ctx, id, "label-click", map[string]string{"cluster_id": clusterID})
}

// Timeline narrows by an inclusive date range.
func (s *SessionService) Timeline(ctx context.Context, id string, from, to time.Time) (*ViewState, error) {
	return s.event(ctx, id, "timeline", models.DateRange{From: from, To: to})
}

// Zoom reports a zoom change.
func (s *SessionService) Zoom(ctx context.Context, id string, req ZoomRequest) (*ViewState, error) {
	return s.event(ctx, id, "zoom", req)
}

// Clear resets every facet.
func (s *SessionService) Clear(ctx context.Context, id string) (*ViewState, error) {
	return s.event(ctx, id, "clear", nil)
}

// SetMultiCluster toggles multi-cluster selection.
func (s *SessionService) SetMultiCluster(ctx context.Context, id string, on bool) (*ViewState, error) {
	return s.event(ctx, id, "multi-cluster", map[string]bool{"enabled": on})
}

// SetLabelPolicy switches the label policy ("topn" or "depth").
func (s *SessionService) SetLabelPolicy(ctx context.Context, id, policy string) (*ViewState, error) {
	return s.event(ctx, id, "labels", map[string]string{"policy": policy})
}

// Filtered reports how many points the renderer draws.
func (s *SessionService) Filtered(ctx context.Context, id string, count int) (*ViewState, error) {
	return s.event(ctx, id, "filtered", map[string]int{"count": count})
}

// Search narrows by a backend search.
func (s *SessionService) Search(ctx context.Context, id, query, accessor string) (*SearchResult, error) {
	var resp SearchResult
	body := map[string]string{"query": query, "accessor": accessor}
	if err := s.c.post(ctx, sessionPath(id, "search"), body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoadMore loads the next window of points.
func (s *SessionService) LoadMore(ctx context.Context, id string) (*LoadResult, error) {
	var resp LoadResult
	if err := s.c.post(ctx, sessionPath(id, "load-more"), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Selection returns a page of the selected points.
func (s *SessionService) Selection(ctx context.Context, id string, offset, limit int) (*SelectionPage, error) {
	params := url.Values{}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp SelectionPage
	if err := s.c.get(ctx, sessionPath(id, "selection"), params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
