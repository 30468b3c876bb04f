package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestRecorder(t *testing.T) {
	m := New(DefaultConfig())

	m.ObserveOperation("deduct", "ok", 5*time.Millisecond)
	m.ObserveOperation("deduct", "ok", 5*time.Millisecond)
	m.ObserveOperation("rollback", "rejected", time.Millisecond)
	m.ObserveLots("deduct", 3)
	m.ObserveShortage("flour")

	body := scrape(t, m)
	assert.Contains(t, body, `batch_stock_operations_total{operation="deduct",outcome="ok"} 2`)
	assert.Contains(t, body, `batch_stock_operations_total{operation="rollback",outcome="rejected"} 1`)
	assert.Contains(t, body, `batch_stock_lots_touched_total{operation="deduct"} 3`)
	assert.Contains(t, body, `batch_stock_shortages_total{material_id="flour"} 1`)
	assert.Contains(t, body, `batch_stock_operation_duration_seconds_count{operation="deduct"} 2`)
}

func TestObserveShortage_UnknownMaterial(t *testing.T) {
	m := New(DefaultConfig())

	m.ObserveShortage("")
	m.ObserveShortage("")

	body := scrape(t, m)
	assert.Contains(t, body, `batch_stock_shortages_total{material_id="unknown"} 2`)
	assert.NotContains(t, body, `material_id=""`)
}

func TestMiddleware_CountsStatus(t *testing.T) {
	m := New(DefaultConfig())
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	body := scrape(t, m)
	assert.Contains(t, body, `batch_stock_http_requests_total{method="GET",status="200"} 1`)
	assert.Contains(t, body, `batch_stock_http_requests_total{method="GET",status="404"} 1`)
}

func TestNamespace(t *testing.T) {
	m := New(Config{Namespace: "kitchen"})
	m.ObserveLots("rollback", 1)

	assert.Contains(t, scrape(t, m), `kitchen_lots_touched_total{operation="rollback"} 1`)
}
