// Package metrics holds the Prometheus collectors shared by the backend API and the edge gate.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chabaqa/backend/internal/telemetry/domain"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// HTTP server metrics, labelled by chi route pattern so ids do not explode cardinality.
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// AuthEvents counts auth events by type (login succeeded, 2fa failed, refresh reuse, ...).
	AuthEvents *prometheus.CounterVec
	// GateDecisions counts gate outcomes: pass, redirect_signin, redirect_home, redirect_landing, bypass.
	GateDecisions *prometheus.CounterVec
	// RateLimited counts requests rejected by the per-IP auth limiter.
	RateLimited prometheus.Counter
}

// NewMetrics creates a Metrics instance with all collectors registered on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chabaqa_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "code"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chabaqa_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		AuthEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chabaqa_auth_events_total",
				Help: "Total number of auth events by type",
			},
			[]string{"type"},
		),
		GateDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chabaqa_gate_decisions_total",
				Help: "Total number of edge gate decisions by outcome",
			},
			[]string{"outcome"},
		),
		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chabaqa_auth_rate_limited_total",
				Help: "Total number of auth requests rejected by the per-IP limiter",
			},
		),
	}
}

// NewRegistry creates a registry with Go and process collectors plus Metrics.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return reg, NewMetrics(reg)
}

// Handler returns the /metrics handler for reg.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Emit implements telemetry.EventEmitter by counting the event. A nil receiver is a no-op.
func (m *Metrics) Emit(_ context.Context, event *domain.Event) error {
	if m == nil || event == nil {
		return nil
	}
	m.AuthEvents.WithLabelValues(event.Type).Inc()
	return nil
}

// GateDecision counts one gate outcome. A nil receiver is a no-op.
func (m *Metrics) GateDecision(outcome string) {
	if m == nil {
		return
	}
	m.GateDecisions.WithLabelValues(outcome).Inc()
}

// RateLimitHit counts one rejected request. A nil receiver is a no-op.
func (m *Metrics) RateLimitHit() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

// Middleware records request count and latency. Routes not matched by chi are labelled "unmatched".
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}
