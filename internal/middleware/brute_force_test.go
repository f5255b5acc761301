package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/middleware"
)

// defaultTestIP is the client address httptest.NewRequest assigns.
const defaultTestIP = "192.0.2.1"

func newTestGuard(t *testing.T) *middleware.BruteForceGuard {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return middleware.NewBruteForceGuard(ctx, log)
}

func TestBruteForceGuard(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		reset    bool
		blocked  bool
	}{
		{"below threshold", 4, false, false},
		{"at threshold", 5, false, true},
		{"reset before threshold", 4, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGuard(t)

			for range tt.failures {
				g.RecordFailure("10.0.0.1")
			}

			if tt.reset {
				g.Reset("10.0.0.1")
				g.RecordFailure("10.0.0.1")
			}

			if got := g.IsBlocked("10.0.0.1"); got != tt.blocked {
				t.Errorf("IsBlocked = %v, want %v", got, tt.blocked)
			}

			if g.IsBlocked("10.0.0.2") {
				t.Error("unrelated client blocked")
			}
		})
	}
}

func TestBruteForceMiddleware_PerClient(t *testing.T) {
	guard := newTestGuard(t)

	for range 5 {
		guard.RecordFailure(defaultTestIP)
	}

	r := gin.New()
	r.Use(middleware.BruteForceMiddleware(guard))
	r.GET("/api/v1/clusters", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		remote string
		want   int
	}{
		{"locked out", defaultTestIP + ":1234", http.StatusTooManyRequests},
		{"other client", "198.51.100.9:1234", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/clusters", http.NoBody)
			req.RemoteAddr = tt.remote
			r.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("got %d, want %d", w.Code, tt.want)
			}
		})
	}
}
