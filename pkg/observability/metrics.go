package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every recording method is safe to call
// on a nil *Metrics so services can run without a registry in tests.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive    prometheus.Gauge
	DBConnectionsIdle      prometheus.Gauge
	DBConnectionsWaitCount prometheus.Gauge

	// Business metrics
	InvoicesCreatedTotal     *prometheus.CounterVec
	BulkLinesSkippedTotal    *prometheus.CounterVec
	BulkRunsTotal            *prometheus.CounterVec
	PaymentsRecordedTotal    *prometheus.CounterVec
	ResidentTransitionsTotal *prometheus.CounterVec
	AuditFailuresTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iuran_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iuran_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iuran_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iuran_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		// Cache metrics
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iuran_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iuran_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "iuran_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "iuran_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
		DBConnectionsWaitCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "iuran_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
		),

		// Business metrics
		InvoicesCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iuran_invoices_created_total",
				Help: "Invoices created, by source (single or bulk)",
			},
			[]string{"source"},
		),
		BulkLinesSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iuran_bulk_lines_skipped_total",
				Help: "Bulk billing lines skipped at commit, by reason",
			},
			[]string{"reason"},
		),
		BulkRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iuran_bulk_runs_total",
				Help: "Bulk billing runs, by phase (preview or commit)",
			},
			[]string{"phase"},
		),
		PaymentsRecordedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iuran_payments_recorded_total",
				Help: "Payments recorded, by method and status",
			},
			[]string{"method", "status"},
		),
		ResidentTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iuran_resident_transitions_total",
				Help: "Resident validation status transitions",
			},
			[]string{"from", "to"},
		),
		AuditFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iuran_audit_failures_total",
				Help: "Audit entries that could not be written",
			},
			[]string{"target_type"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
		m.InvoicesCreatedTotal,
		m.BulkLinesSkippedTotal,
		m.BulkRunsTotal,
		m.PaymentsRecordedTotal,
		m.ResidentTransitionsTotal,
		m.AuditFailuresTotal,
	)

	return m
}

// InvoiceCreated counts one created invoice
func (m *Metrics) InvoiceCreated(source string) {
	if m == nil {
		return
	}
	m.InvoicesCreatedTotal.WithLabelValues(source).Inc()
}

// BulkLineSkipped counts one skipped bulk line
func (m *Metrics) BulkLineSkipped(reason string) {
	if m == nil {
		return
	}
	m.BulkLinesSkippedTotal.WithLabelValues(reason).Inc()
}

// BulkRun counts a bulk preview or commit
func (m *Metrics) BulkRun(phase string) {
	if m == nil {
		return
	}
	m.BulkRunsTotal.WithLabelValues(phase).Inc()
}

// PaymentRecorded counts one recorded payment
func (m *Metrics) PaymentRecorded(method, status string) {
	if m == nil {
		return
	}
	m.PaymentsRecordedTotal.WithLabelValues(method, status).Inc()
}

// ResidentTransition counts a validation status change
func (m *Metrics) ResidentTransition(from, to string) {
	if m == nil {
		return
	}
	m.ResidentTransitionsTotal.WithLabelValues(from, to).Inc()
}

// AuditFailure counts an audit entry that was dropped
func (m *Metrics) AuditFailure(targetType string) {
	if m == nil {
		return
	}
	m.AuditFailuresTotal.WithLabelValues(targetType).Inc()
}

// CacheHit counts a hit on the named cache
func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// CacheMiss counts a miss on the named cache
func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// UpdateDBStats copies connection pool statistics into the gauges
func (m *Metrics) UpdateDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Paths are labelled with the mux route template so IDs don't explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if metrics == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := routeTemplate(r)
			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, path).Observe(float64(r.ContentLength))
			}
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
