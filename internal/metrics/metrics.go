// Package metrics exposes the workflow and HTTP metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forsitet/review-workflow-service/internal/domain"
)

const namespace = "review_service"

// Metrics implements service.Metrics on its own registry so tests and
// multiple instances never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
	escalations   *prometheus.CounterVec
	notifications *prometheus.CounterVec
	slaReviews    *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reviews",
			Name:      "transitions_total",
			Help:      "Review state changes by action",
		}, []string{"action"}),
		escalations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "escalations_total",
			Help:      "Escalations raised by resulting level",
		}, []string{"level"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "sent_total",
			Help:      "Notifications by kind and outcome",
		}, []string{"kind", "status"}),
		slaReviews: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "active_reviews",
			Help:      "Active reviews by SLA state at the last sweep",
		}, []string{"state"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ReviewTransition(action domain.AuditAction) {
	m.transitions.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) EscalationRaised(level int) {
	m.escalations.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (m *Metrics) NotificationSent(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.notifications.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) SLASnapshot(onTime, atRisk, overdue, escalated int) {
	m.slaReviews.WithLabelValues("on_time").Set(float64(onTime))
	m.slaReviews.WithLabelValues("at_risk").Set(float64(atRisk))
	m.slaReviews.WithLabelValues("overdue").Set(float64(overdue))
	m.slaReviews.WithLabelValues("escalated").Set(float64(escalated))
}

// Middleware records request counts and latency labelled by the matched
// chi route pattern, so path parameters do not explode cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(code)).Inc()
		m.httpDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
