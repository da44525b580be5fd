package observability

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	t.Run("duplicate registration panics", func(t *testing.T) {
		assert.Panics(t, func() { NewMetrics(registry) })
	})
}

func TestMetrics_Business(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	m.InvoiceCreated("bulk")
	m.InvoiceCreated("bulk")
	m.InvoiceCreated("single")
	m.BulkLineSkipped("already_invoiced")
	m.BulkRun("commit")
	m.PaymentRecorded("cash", "paid")
	m.ResidentTransition("PENDING", "APPROVED")
	m.AuditFailure("invoice")
	m.CacheHit("tiers")
	m.CacheMiss("tiers")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.InvoicesCreatedTotal.WithLabelValues("bulk")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvoicesCreatedTotal.WithLabelValues("single")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BulkLinesSkippedTotal.WithLabelValues("already_invoiced")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BulkRunsTotal.WithLabelValues("commit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsRecordedTotal.WithLabelValues("cash", "paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResidentTransitionsTotal.WithLabelValues("PENDING", "APPROVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailuresTotal.WithLabelValues("invoice")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("tiers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("tiers")))

	expected := `
# HELP iuran_invoices_created_total Invoices created, by source (single or bulk)
# TYPE iuran_invoices_created_total counter
iuran_invoices_created_total{source="bulk"} 2
iuran_invoices_created_total{source="single"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(m.InvoicesCreatedTotal, strings.NewReader(expected)))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.InvoiceCreated("single")
		m.BulkLineSkipped("x")
		m.BulkRun("preview")
		m.PaymentRecorded("cash", "paid")
		m.ResidentTransition("a", "b")
		m.AuditFailure("invoice")
		m.CacheHit("tiers")
		m.CacheMiss("tiers")
		m.UpdateDBStats(sql.DBStats{})
	})

	h := HTTPMetricsMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	assert.NotNil(t, h)
}

func TestMetrics_UpdateDBStats(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.UpdateDBStats(sql.DBStats{InUse: 3, Idle: 2, WaitCount: 9})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.DBConnectionsActive))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DBConnectionsIdle))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.DBConnectionsWaitCount))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)

	router := mux.NewRouter()
	router.Use(HTTPMetricsMiddleware(m))
	router.HandleFunc("/invoices/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"invoice not found"}`))
	})

	for _, id := range []string{"1", "2", "3"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/invoices/"+id, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/invoices/{id}", "404")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))

	rr := httptest.NewRecorder()
	MetricsHandler(registry).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rr.Body.String(), `iuran_http_requests_total{method="GET",path="/invoices/{id}",status="404"} 3`)
}
