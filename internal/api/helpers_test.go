package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/api"
	"github.com/persistorai/clustermap/internal/labels"
	"github.com/persistorai/clustermap/internal/loader"
	"github.com/persistorai/clustermap/internal/models"
	"github.com/persistorai/clustermap/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)

	return l
}

func day(s string) *time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}

	return &t
}

// mapBackend serves a three-document map with two leaf clusters. Loading
// leaf L1 adds a fourth document.
type mapBackend struct {
	failSearch bool
}

func (b *mapBackend) FetchPointsBatch(_ context.Context, offset, _ int) ([]models.Point, error) {
	if offset > 0 {
		return nil, nil
	}

	return []models.Point{
		models.NewDocumentPoint("d1", "Heart", 2, 2, day("2023-01-01"), "R/L1"),
		models.NewDocumentPoint("d2", "Tumour", 9, 9, day("2023-06-01"), "R/L2"),
		models.NewDocumentPoint("d3", "Heart scan", 11, 11, day("2024-01-01"), "R/L2"),
	}, nil
}

func (b *mapBackend) FetchPointsByClusterIDs(_ context.Context, ids []string) ([]models.Point, error) {
	var out []models.Point
	for _, id := range ids {
		if id == "L1" {
			out = append(out, models.NewDocumentPoint("d4", "Valve", 1, 2, day("2023-03-01"), "R/L1"))
		}
	}

	return out, nil
}

func (b *mapBackend) FetchClusters(context.Context) ([]models.Cluster, error) {
	return []models.Cluster{
		{ID: "R", Label: "Root", X: 5, Y: 5, Depth: 0, Path: "R"},
		{ID: "L1", Label: "Cardiology", X: 1, Y: 1, Depth: 1, IsLeaf: true, Path: "R/L1"},
		{ID: "L2", Label: "Oncology", X: 10, Y: 10, Depth: 1, IsLeaf: true, Path: "R/L2"},
	}, nil
}

func (b *mapBackend) FetchSearchResultIDs(context.Context, string, string) ([]string, error) {
	if b.failSearch {
		return nil, errors.New("search index down")
	}

	return []string{"d1", "d3"}, nil
}

type testServer struct {
	router   http.Handler
	sessions *service.Manager
}

func newTestServer(t *testing.T, b *mapBackend, apiKey string) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := testLogger()
	m := service.NewManager(b, nil, log, service.ManagerOptions{
		Session: service.SessionOptions{
			Loader:      loader.Options{InitialSize: 10, BatchSize: 10, Limit: 10000},
			LabelPolicy: labels.NameDepth,
		},
	})

	return &testServer{
		sessions: m,
		router: api.NewRouter(ctx, &api.RouterDeps{
			Log:         log,
			Sessions:    m,
			CORSOrigins: []string{"http://localhost:5173"},
			Version:     "test",
			APIKey:      apiKey,
		}),
	}
}

// doRequest performs an HTTP request against the handler and returns the recorder.
func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, http.NoBody)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()

	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("invalid JSON %q: %v", w.Body.String(), err)
	}
}

func doRequestWithAuth(srv *testServer, method, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	req.Header.Set("Authorization", "Bearer "+key)

	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	return w
}
