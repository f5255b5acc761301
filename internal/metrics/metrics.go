// Package metrics defines Prometheus metrics for clustermap.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Load modes used as the "mode" label.
const (
	ModeInitial = "initial"
	ModeBatch   = "batch"
	ModeCluster = "cluster"
	ModeSearch  = "search"
	ModeTree    = "hierarchy"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clustermap_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustermap_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustermap_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	PointsLoaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustermap_points_loaded_total",
			Help: "Points merged into session stores by load mode",
		},
		[]string{"mode"},
	)

	LoadFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clustermap_load_failures_total",
			Help: "Failed backend fetches by load mode",
		},
		[]string{"mode"},
	)

	SelectionSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clustermap_selection_size",
			Help:    "Size of the active selection after each recompute",
			Buckets: prometheus.ExponentialBuckets(1, 10, 8),
		},
	)

	MembershipRebuilds = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clustermap_membership_rebuilds_total",
			Help: "Membership cache rebuilds",
		},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustermap_active_sessions",
			Help: "Exploration sessions currently held in memory",
		},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustermap_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)

	PrefetchQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clustermap_prefetch_queue_depth",
			Help: "Current prefetch queue depth",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		PointsLoaded, LoadFailures,
		SelectionSize, MembershipRebuilds,
		ActiveSessions, WSConnections, PrefetchQueueDepth,
	)
}
