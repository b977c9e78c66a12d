package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Report metrics
	ReportsTotal       *prometheus.CounterVec
	ReportRunsScanned  *prometheus.HistogramVec
	ReportDuration     *prometheus.HistogramVec
	AccessDeniedTotal  *prometheus.CounterVec
	IdentityRejections *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
	DBQueryDuration     *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

var (
	metrics  *Metrics
	initOnce sync.Once
)

// Init initializes all Prometheus metrics
func Init() *Metrics {
	initOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
		),

		ReportsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "analytics_reports_total",
				Help: "Total number of analytics reports composed",
			},
			[]string{"report", "outcome"},
		),
		ReportRunsScanned: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_report_runs_scanned",
				Help:    "Number of runs reduced per report",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10),
			},
			[]string{"report"},
		),
		ReportDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "analytics_report_duration_seconds",
				Help:    "Time spent composing a report, including the store query",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"report"},
		),
		AccessDeniedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "access_denied_total",
				Help: "Total number of access guard denials",
			},
			[]string{"scope"},
		),
		IdentityRejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_rejections_total",
				Help: "Total number of bearer tokens rejected",
			},
			[]string{"scheme", "reason"},
		),

		CacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),

		DBConnectionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"query_type"},
		),

		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 0.5=half-open)",
			},
			[]string{"breaker"},
		),
	}
}

// current returns the global metrics instance, initializing it on first use
func current() *Metrics {
	return Init()
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinHandler returns a Gin-compatible handler for Prometheus metrics
func GinHandler() gin.HandlerFunc {
	h := Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// MetricsMiddleware is a Gin middleware for collecting HTTP metrics
func MetricsMiddleware() gin.HandlerFunc {
	m := current()
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordReport records a composed report and the size of its input
func RecordReport(report, outcome string, runs int, duration time.Duration) {
	m := current()
	m.ReportsTotal.WithLabelValues(report, outcome).Inc()
	if outcome == "ok" {
		m.ReportRunsScanned.WithLabelValues(report).Observe(float64(runs))
	}
	m.ReportDuration.WithLabelValues(report).Observe(duration.Seconds())
}

// RecordAccessDenied records a guard denial for scope
func RecordAccessDenied(scope string) {
	current().AccessDeniedTotal.WithLabelValues(scope).Inc()
}

// RecordIdentityRejection records a rejected bearer token
func RecordIdentityRejection(scheme, reason string) {
	current().IdentityRejections.WithLabelValues(scheme, reason).Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cacheType string) {
	current().CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cacheType string) {
	current().CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBQuery records a database query duration
func RecordDBQuery(queryType string, duration time.Duration) {
	current().DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())
}

// SetDBConnections sets database connection metrics
func SetDBConnections(active, idle int) {
	current().DBConnectionsActive.Set(float64(active))
	current().DBConnectionsIdle.Set(float64(idle))
}

// SetCircuitBreakerState sets the circuit breaker state
// state: 0=closed, 1=open, 0.5=half-open
func SetCircuitBreakerState(breaker string, state float64) {
	current().CircuitBreakerState.WithLabelValues(breaker).Set(state)
}
