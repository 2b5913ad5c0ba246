package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the request and domain collectors of one process.
type Metrics struct {
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	Transfers        *prometheus.CounterVec
	TransferReviews  *prometheus.CounterVec
	PINVerifications *prometheus.CounterVec
	AlertsPublished  *prometheus.CounterVec
	AlertDeliveries  *prometheus.CounterVec
	AuditEvents      *prometheus.CounterVec
	PriceRefreshes   *prometheus.CounterVec
	StaleTransfers   prometheus.Gauge
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestCount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		Transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heritage_transfers_total",
				Help: "Transfers submitted, by kind and result.",
			},
			[]string{"kind", "result"},
		),
		TransferReviews: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heritage_transfer_reviews_total",
				Help: "Admin transfer reviews, by decision.",
			},
			[]string{"decision"},
		),
		PINVerifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heritage_pin_verifications_total",
				Help: "Transfer PIN verifications, by result.",
			},
			[]string{"result"},
		),
		AlertsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heritage_alerts_published_total",
				Help: "Customer alerts published to the broker, by kind and result.",
			},
			[]string{"kind", "result"},
		),
		AlertDeliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heritage_alert_deliveries_total",
				Help: "Customer alerts delivered by the notifier, by kind and result.",
			},
			[]string{"kind", "result"},
		),
		AuditEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heritage_admin_audit_events_total",
				Help: "Admin audit events streamed, by action and result.",
			},
			[]string{"action", "result"},
		),
		PriceRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "heritage_price_refreshes_total",
				Help: "Price feed refreshes, by result.",
			},
			[]string{"result"},
		),
		StaleTransfers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "heritage_stale_pending_transfers",
				Help: "Pending transfers older than the review threshold at the last check.",
			},
		),
	}

	registry.MustRegister(
		m.RequestCount,
		m.RequestDuration,
		m.Transfers,
		m.TransferReviews,
		m.PINVerifications,
		m.AlertsPublished,
		m.AlertDeliveries,
		m.AuditEvents,
		m.PriceRefreshes,
		m.StaleTransfers,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency labelled by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{"method": r.Method, "path": path, "status": strconv.Itoa(status)}
		m.RequestCount.With(labels).Inc()
		m.RequestDuration.With(labels).Observe(time.Since(start).Seconds())
	})
}

// The recorders below accept a nil receiver so callers without a registry can skip metrics.

func (m *Metrics) ObserveTransfer(kind, result string) {
	if m == nil {
		return
	}
	m.Transfers.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveTransferReview(decision string) {
	if m == nil {
		return
	}
	m.TransferReviews.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObservePINVerification(result string) {
	if m == nil {
		return
	}
	m.PINVerifications.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAlertPublished(kind, result string) {
	if m == nil {
		return
	}
	m.AlertsPublished.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveAlertDelivery(kind, result string) {
	if m == nil {
		return
	}
	m.AlertDeliveries.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) ObserveAuditEvent(action, result string) {
	if m == nil {
		return
	}
	m.AuditEvents.WithLabelValues(action, result).Inc()
}

func (m *Metrics) ObservePriceRefresh(result string) {
	if m == nil {
		return
	}
	m.PriceRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) SetStaleTransfers(count int) {
	if m == nil {
		return
	}
	m.StaleTransfers.Set(float64(count))
}
