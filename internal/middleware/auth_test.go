package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/middleware"
)

func TestAuthMiddleware(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	tests := []struct {
		name       string
		authHeader string
		path       string
		upgrade    bool
		wantCode   int
	}{
		{"valid token", "Bearer good-key", "/test", false, http.StatusOK},
		{"missing header", "", "/test", false, http.StatusUnauthorized},
		{"invalid token", "Bearer bad-key", "/test", false, http.StatusUnauthorized},
		{"prefix of key", "Bearer good", "/test", false, http.StatusUnauthorized},
		{"no bearer prefix", "good-key", "/test", false, http.StatusUnauthorized},
		{"query token on upgrade", "", "/test?access_token=good-key", true, http.StatusOK},
		{"query token without upgrade", "", "/test?access_token=good-key", false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Use(middleware.AuthMiddleware("good-key", log))
			r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			if tt.upgrade {
				req.Header.Set("Upgrade", "websocket")
			}
			r.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("got %d, want %d", w.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthMiddleware_RecordsFailures(t *testing.T) {
	guard := newTestGuard(t)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	r := gin.New()
	r.Use(middleware.BruteForceMiddleware(guard))
	r.Use(middleware.AuthMiddleware("good-key", log, guard))
	r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(key string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
		req.RemoteAddr = "192.0.2.7:1234"
		req.Header.Set("Authorization", "Bearer "+key)
		r.ServeHTTP(w, req)
		return w.Code
	}

	for range 5 {
		if code := send("bad"); code != http.StatusUnauthorized {
			t.Fatalf("got %d, want 401", code)
		}
	}

	if code := send("good-key"); code != http.StatusTooManyRequests {
		t.Errorf("locked-out client: got %d, want 429", code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"abc123", ""},
		{"", ""},
		{"Bearer ", ""},
		{"bearer abc", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			got := middleware.ExtractBearerToken(c)
			if got != tt.want {
				t.Errorf("ExtractBearerToken(%q) = %q, want %q", tt.header, got, tt.want)
			}
		})
	}
}
