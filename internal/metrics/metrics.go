package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the dashboard
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts dashboard requests by method, route pattern, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records dashboard request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// UpstreamRequests counts calls to the optimization service by endpoint and status code ("0" when no response)
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "upstream_requests_total", Help: "Calls to the route optimization service."},
		[]string{"endpoint", "status"},
	)
	// UpstreamLatency tracks optimization service latency; optimize calls may run for a minute
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "upstream_request_duration_seconds", Help: "Optimization service latency in seconds.", Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 40, 60}},
		[]string{"endpoint"},
	)

	// Optimizations counts finished submissions by outcome
	Optimizations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "route_optimizations_total", Help: "Route optimization submissions by outcome."},
		[]string{"outcome"},
	)
	// CatalogLoads counts waypoint catalog loads by result (ok, unavailable)
	CatalogLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "waypoint_catalog_loads_total", Help: "Waypoint catalog loads by result."},
		[]string{"result"},
	)
	// CatalogSize is the number of waypoints in the last loaded catalog
	CatalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "waypoint_catalog_size", Help: "Waypoints in the last loaded catalog."},
	)
	// SessionInvalidations counts credentials cleared after a 401
	SessionInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "session_invalidations_total", Help: "Credentials cleared after an unauthorized response."},
	)
)

// RegisterDefault registers collectors to the dashboard registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(UpstreamRequests)
		Registry.MustRegister(UpstreamLatency)
		Registry.MustRegister(Optimizations)
		Registry.MustRegister(CatalogLoads)
		Registry.MustRegister(CatalogSize)
		Registry.MustRegister(SessionInvalidations)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
