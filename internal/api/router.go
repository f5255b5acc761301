package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/clustermap/internal/domain"
	"github.com/persistorai/clustermap/internal/middleware"
	"github.com/persistorai/clustermap/internal/ws"
)

// RouterDeps holds all dependencies needed by the router.
type RouterDeps struct {
	Log         *logrus.Logger
	Hub         *ws.Hub
	Sessions    SessionManager
	Checks      map[string]Check
	CORSOrigins []string
	Version     string
	// APIKey, when set, is required as a Bearer token on session routes.
	APIKey string
	// Backend, when set, is served read-only under /points, /clusters and /search.
	Backend domain.Backend
}

// Router-level limits.
const (
	maxBodySize = 1 << 20 // 1 MB
	rateLimit   = 100     // requests per second per IP
	rateBurst   = 200     // token bucket burst size

	// Render engines report zoom and filter counts on every frame.
	sessionRateLimit = 60
	sessionRateBurst = 120
)

// setupMiddleware configures all middleware on the Gin engine.
func setupMiddleware(ctx context.Context, r *gin.Engine, deps *RouterDeps) {
	r.SetTrustedProxies(nil) //nolint:errcheck // nil always succeeds.
	r.Use(middleware.RequestID(deps.Log))
	r.Use(requestLogger(deps.Log))
	r.Use(gin.Recovery())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.MaxBodySize(maxBodySize))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     deps.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		MaxAge:           1 * time.Hour,
		AllowCredentials: false,
	}))
	r.Use(middleware.NewRateLimiter(ctx, rateLimit, rateBurst, middleware.ByClientIP).Handler())
	r.Use(middleware.NewRateLimiter(ctx, sessionRateLimit, sessionRateBurst, middleware.BySession).Handler())
	r.Use(middleware.PrometheusMiddleware())

	// Metrics endpoint (unauthenticated, like health).
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerRoutes sets up all API route handlers on the given router group.
func registerRoutes(ctx context.Context, api *gin.RouterGroup, deps *RouterDeps) {
	log := deps.Log

	health := NewHealthHandler(deps.Checks, deps.Sessions, deps.Hub, log, deps.Version)
	sessions := NewSessionHandler(deps.Sessions, log)

	// Health and readiness are unauthenticated.
	api.GET("/health", health.Liveness)
	api.GET("/ready", health.Readiness)

	if deps.APIKey != "" {
		bfGuard := middleware.NewBruteForceGuard(ctx, log)
		api.Use(middleware.BruteForceMiddleware(bfGuard))
		api.Use(middleware.AuthMiddleware(deps.APIKey, log, bfGuard))
	}

	// Session lifecycle.
	api.POST("/sessions", sessions.Create)
	api.GET("/sessions", sessions.List)
	api.GET("/sessions/:id", sessions.Get)
	api.DELETE("/sessions/:id", sessions.Delete)

	// Render-engine events.
	api.POST("/sessions/:id/click", sessions.Click)
	api.POST("/sessions/:id/label-click", sessions.LabelClick)
	api.POST("/sessions/:id/timeline", sessions.Timeline)
	api.POST("/sessions/:id/zoom", sessions.Zoom)
	api.POST("/sessions/:id/search", sessions.Search)
	api.POST("/sessions/:id/clear", sessions.Clear)
	api.POST("/sessions/:id/load-more", sessions.LoadMore)
	api.POST("/sessions/:id/multi-cluster", sessions.MultiCluster)
	api.POST("/sessions/:id/labels", sessions.Labels)
	api.POST("/sessions/:id/filtered", sessions.Filtered)

	// Reads.
	api.GET("/sessions/:id/selection", sessions.Selection)

	if deps.Backend != nil {
		data := NewDataHandler(deps.Backend, log)
		api.GET("/points", data.Points)
		api.POST("/points/by-cluster", data.ByCluster)
		api.GET("/clusters", data.Clusters)
		api.GET("/search/:accessor", data.Search)
	}

	// Render stream.
	if deps.Hub != nil {
		api.GET("/sessions/:id/ws", streamHandler(ctx, log, deps.Hub, deps.Sessions, deps.CORSOrigins))
	}
}

// NewRouter creates and configures the Gin engine with all middleware and routes.
func NewRouter(ctx context.Context, deps *RouterDeps) http.Handler {
	r := gin.New()
	setupMiddleware(ctx, r, deps)
	registerRoutes(ctx, r.Group("/api/v1"), deps)

	return r
}
