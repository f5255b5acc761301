package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/persistorai/clustermap/internal/models"
)

// newTestServer creates a test server that routes to the given handler map.
// Keys are "METHOD /path", values are handler funcs.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(srv.URL, WithAPIKey("test-key"))
	return srv, c
}

func jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func TestHealth(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/health": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, HealthResponse{Status: "ok", Version: "0.3.0"})
		},
	})
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	if resp.Status != "ok" || resp.Version != "0.3.0" {
		t.Errorf("got %+v", resp)
	}
}

func TestFetchPointsBatch_Rows(t *testing.T) {
	var gotOffset, gotSize string
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/points": func(w http.ResponseWriter, r *http.Request) {
			gotOffset = r.URL.Query().Get("offset")
			gotSize = r.URL.Query().Get("size")
			jsonResponse(w, 200, map[string]any{"hits": []map[string]any{
				{"_id": "d1", "_source": map[string]any{"title": "One", "x": 1.5, "y": 2, "date": "2023-01-02", "cluster_path": "r/a"}},
				{"document_id": "d2", "title": "Two", "x": "3", "y": 4, "date": 1700000000, "cluster_id": "b"},
			}})
		},
	})

	pts, err := c.FetchPointsBatch(context.Background(), 20, 10)
	if err != nil {
		t.Fatalf("FetchPointsBatch error: %v", err)
	}
	if gotOffset != "20" || gotSize != "10" {
		t.Errorf("query offset=%q size=%q", gotOffset, gotSize)
	}
	if len(pts) != 2 {
		t.Fatalf("got %d points", len(pts))
	}
	if pts[0].ID != "doc:d1" || pts[0].X != 1.5 || pts[0].LeafClusterID() != "a" || pts[0].Date == nil {
		t.Errorf("first point = %+v", pts[0])
	}
	if pts[1].X != 3 || pts[1].ClusterPath != "b" || pts[1].Date.Year() != 2023 {
		t.Errorf("second point = %+v", pts[1])
	}
}

func TestFetchPointsBatch_Columnar(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/points": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]any{"columns": map[string]any{
				"document_id":  []any{"a", "b"},
				"title":        []any{"A", "B"},
				"x":            []any{0, 1},
				"y":            []any{0, 1},
				"cluster_path": []any{"r/l", "r/l"},
			}})
		},
	})

	pts, err := c.FetchPointsBatch(context.Background(), 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 || pts[1].SourceID != "b" || pts[1].Date != nil {
		t.Errorf("points = %+v", pts)
	}
}

func TestFetchPointsBatch_BadRowFailsBatch(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/points": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, []map[string]any{
				{"document_id": "ok", "x": 1, "y": 1},
				{"document_id": "bad", "x": "left", "y": 1},
			})
		},
	})

	pts, err := c.FetchPointsBatch(context.Background(), 0, 2)
	if err == nil || pts != nil {
		t.Errorf("expected whole-batch failure, got %v, %v", pts, err)
	}
}

func TestFetchPointsByClusterIDs(t *testing.T) {
	var body struct {
		ClusterIDs []string `json:"cluster_ids"`
	}
	calls := 0
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/points/by-cluster": func(w http.ResponseWriter, r *http.Request) {
			calls++
			json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
			jsonResponse(w, 200, map[string]any{"data": []map[string]any{
				{"document_id": "d9", "x": 0, "y": 0, "cluster_id": "l1"},
			}})
		},
	})

	ctx := context.Background()

	pts, err := c.FetchPointsByClusterIDs(ctx, []string{"l1", "l2"})
	if err != nil {
		t.Fatal(err)
	}
	if len(body.ClusterIDs) != 2 || len(pts) != 1 {
		t.Errorf("body=%v points=%v", body.ClusterIDs, pts)
	}

	pts, err = c.FetchPointsByClusterIDs(ctx, nil)
	if err != nil || len(pts) != 0 || calls != 1 {
		t.Errorf("empty request: points=%v err=%v calls=%d", pts, err, calls)
	}
}

func TestFetchClusters(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/clusters": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, []map[string]any{
				{"cluster_id": "r", "label": "Root", "x": 0, "y": 0, "depth": 0},
				{"cluster_id": "a", "label": "A", "x": 1, "y": 1, "depth": 1, "is_leaf": true, "path": "r/a"},
			})
		},
	})

	clusters, err := c.FetchClusters(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(clusters) != 2 || clusters[0].Path != "r" || !clusters[1].IsLeaf || clusters[1].Depth != 1 {
		t.Errorf("clusters = %+v", clusters)
	}
}

func TestFetchSearchResultIDs(t *testing.T) {
	var gotAccessor, gotQuery string
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/search/{accessor}": func(w http.ResponseWriter, r *http.Request) {
			gotAccessor = r.PathValue("accessor")
			gotQuery = r.URL.Query().Get("q")
			jsonResponse(w, 200, map[string]any{"hits": []map[string]any{{"_id": "d1"}, {"_id": "d7"}}})
		},
	})

	ctx := context.Background()

	ids, err := c.FetchSearchResultIDs(ctx, "heart failure", "")
	if err != nil {
		t.Fatal(err)
	}
	if gotAccessor != "title" || gotQuery != "heart failure" {
		t.Errorf("accessor=%q query=%q", gotAccessor, gotQuery)
	}
	if len(ids) != 2 || ids[1] != "d7" {
		t.Errorf("ids = %v", ids)
	}

	ids, err = c.FetchSearchResultIDs(ctx, "", "semantic")
	if err != nil || len(ids) != 0 || gotAccessor != "title" {
		t.Errorf("empty query must not be sent: %v, %v", ids, err)
	}
}

func TestSessions(t *testing.T) {
	view := ViewState{State: "filtering", SelectionSize: 2, LabelPolicy: "depth"}
	var clickBody map[string]string
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/sessions": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 201, Session{ID: "s1"})
		},
		"GET /api/v1/sessions": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]any{"sessions": []Session{{ID: "s1"}}})
		},
		"POST /api/v1/sessions/s1/click": func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&clickBody) //nolint:errcheck
			jsonResponse(w, 200, view)
		},
		"POST /api/v1/sessions/s1/search": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, SearchResult{Matches: 4, View: view})
		},
		"GET /api/v1/sessions/s1/selection": func(w http.ResponseWriter, r *http.Request) {
			jsonResponse(w, 200, SelectionPage{
				Total:  2,
				Offset: 0,
				Limit:  50,
				Points: []models.Point{models.NewDocumentPoint("d1", "", 0, 0, nil, "a")},
			})
		},
		"DELETE /api/v1/sessions/s1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]bool{"deleted": true})
		},
	})

	ctx := context.Background()

	s, err := c.Sessions.Create(ctx)
	if err != nil || s.ID != "s1" {
		t.Fatalf("Create = %+v, %v", s, err)
	}

	list, err := c.Sessions.List(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("List = %v, %v", list, err)
	}

	v, err := c.Sessions.Click(ctx, "s1", "doc:d1")
	if err != nil || v.State != "filtering" || clickBody["point_id"] != "doc:d1" {
		t.Errorf("Click = %+v, %v, body %v", v, err, clickBody)
	}

	sr, err := c.Sessions.Search(ctx, "s1", "heart", "title")
	if err != nil || sr.Matches != 4 {
		t.Errorf("Search = %+v, %v", sr, err)
	}

	page, err := c.Sessions.Selection(ctx, "s1", 0, 50)
	if err != nil || len(page.Points) != 1 || page.Points[0].ID != "doc:d1" {
		t.Errorf("Selection = %+v, %v", page, err)
	}

	if err := c.Sessions.Delete(ctx, "s1"); err != nil {
		t.Errorf("Delete: %v", err)
	}
}

func TestAPIError(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/sessions/missing": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 404, map[string]string{"code": "not_found", "message": "session not found"})
		},
		"GET /api/v1/clusters": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(429)
			w.Write([]byte("slow down")) //nolint:errcheck
		},
	})

	ctx := context.Background()

	_, err := c.Sessions.Get(ctx, "missing")
	if !IsNotFound(err) {
		t.Errorf("expected not found, got: %v", err)
	}

	_, err = c.FetchClusters(ctx)
	if !IsRateLimited(err) {
		t.Errorf("expected rate limited, got: %v", err)
	}

	apiErr, ok := err.(*APIError)
	if !ok || apiErr.Code != "unknown" || apiErr.Message != "slow down" {
		t.Errorf("raw body fallback: %#v", err)
	}
}

func TestIsUnauthorized(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{401, true},
		{403, true},
		{404, false},
		{500, false},
	}

	for _, tt := range tests {
		err := error(&APIError{StatusCode: tt.status})
		if got := IsUnauthorized(err); got != tt.want {
			t.Errorf("IsUnauthorized(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}

	if IsUnauthorized(nil) {
		t.Error("nil error must not be unauthorized")
	}
}

func TestAuthHeader(t *testing.T) {
	var gotAuth string
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/health": func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			jsonResponse(w, 200, HealthResponse{Status: "ok"})
		},
	})

	c.Health(context.Background()) //nolint:errcheck
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header: got %q, want %q", gotAuth, "Bearer test-key")
	}
}
