// Package metrics содержит метрики Prometheus движка подписок.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Результаты операций.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics хранит все метрики сервиса.
type Metrics struct {
	Transitions     *prometheus.CounterVec
	ProrationCharge prometheus.Counter
	AccessChecks    *prometheus.CounterVec
	Reconciled      prometheus.Counter
	EventsAudited   *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_transitions_total",
				Help: "Subscription state machine operations by result",
			},
			[]string{"operation", "result"},
		),
		ProrationCharge: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "entitlement_proration_charged_total",
				Help: "Sum of prorated amounts charged on upgrades",
			},
		),
		AccessChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_access_checks_total",
				Help: "Access gate decisions",
			},
			[]string{"decision"},
		),
		Reconciled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "entitlement_reconciled_total",
				Help: "Subscriptions moved to EXPIRED by the reconciliation sweep",
			},
		),
		EventsAudited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_events_audited_total",
				Help: "Lifecycle events recorded by the audit consumer",
			},
			[]string{"type"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "entitlement_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}

	reg.MustRegister(
		m.Transitions,
		m.ProrationCharge,
		m.AccessChecks,
		m.Reconciled,
		m.EventsAudited,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// NewNoop создаёт метрики без регистрации.
func NewNoop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Transition учитывает выполнение операции автомата состояний.
func (m *Metrics) Transition(operation string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.Transitions.WithLabelValues(operation, result).Inc()
}

// Charged добавляет сумму доплаты.
func (m *Metrics) Charged(amount decimal.Decimal) {
	f, _ := amount.Float64()
	if f > 0 {
		m.ProrationCharge.Add(f)
	}
}

// AccessCheck учитывает решение о доступе.
func (m *Metrics) AccessCheck(allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AccessChecks.WithLabelValues(decision).Inc()
}

// Audited учитывает событие, записанное в журнал аудита.
func (m *Metrics) Audited(eventType string) {
	m.EventsAudited.WithLabelValues(eventType).Inc()
}

// Middleware считает HTTP-запросы по шаблону маршрута chi.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
