package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/transactions/{id}/receipt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/transactions/abc/receipt", nil))

	got := testutil.ToFloat64(m.RequestCount.WithLabelValues(http.MethodGet, "/transactions/{id}/receipt", "418"))
	if got != 1 {
		t.Fatalf("expected one request recorded under the route pattern, got %v", got)
	}
}

func TestNilMetricsRecordersAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTransfer("wire", "ok")
	m.ObserveTransferReview("approve")
	m.ObservePINVerification("ok")
	m.ObserveAlertPublished("debit", "ok")
	m.ObserveAlertDelivery("debit", "ok")
	m.ObserveAuditEvent("balance_add", "ok")
	m.ObservePriceRefresh("ok")
	m.SetStaleTransfers(3)
}

func TestHandlerExposesDomainCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)
	m.ObserveTransfer("internal", "ok")

	rec := httptest.NewRecorder()
	Handler(registry).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `heritage_transfers_total{kind="internal",result="ok"} 1`) {
		t.Fatalf("expected transfer counter in output, got:\n%s", rec.Body.String())
	}
}
