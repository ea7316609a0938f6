// Package metrics exposes Prometheus instruments for the HTTP layer and the
// banking workflows. Each Metrics value owns its registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/fkhayef/villagebank/internal/domain"
)

const namespace = "villagebank"

// Metrics holds every collector
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	ledgerPostings *prometheus.CounterVec
	ledgerAmount   *prometheus.CounterVec

	requestTransitions *prometheus.CounterVec
	loansOverdue       prometheus.Counter
	payoutSchedules    prometheus.Counter
	notifications      *prometheus.CounterVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		ledgerPostings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_postings_total",
			Help:      "Balance postings by entry kind.",
		}, []string{"kind"}),
		ledgerAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_amount_total",
			Help:      "Posted amounts by entry kind.",
		}, []string{"kind"}),
		requestTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fund_request_transitions_total",
			Help:      "Fund request status transitions by target status.",
		}, []string{"status"}),
		loansOverdue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_marked_overdue_total",
			Help:      "Loans moved to OVERDUE by the sweep.",
		}),
		payoutSchedules: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_schedules_created_total",
			Help:      "Payout schedules created.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dispatched_total",
			Help:      "Notification delivery attempts by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.ledgerPostings,
		m.ledgerAmount,
		m.requestTransitions,
		m.loansOverdue,
		m.payoutSchedules,
		m.notifications,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Middleware records request counts and latency by chi route pattern
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) LedgerPosted(kind domain.EntryKind, amount decimal.Decimal) {
	m.ledgerPostings.WithLabelValues(string(kind)).Inc()
	m.ledgerAmount.WithLabelValues(string(kind)).Add(amount.InexactFloat64())
}

func (m *Metrics) FundRequestTransitioned(status domain.FundRequestStatus) {
	m.requestTransitions.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) LoansMarkedOverdue(n int) {
	m.loansOverdue.Add(float64(n))
}

func (m *Metrics) PayoutScheduleCreated() {
	m.payoutSchedules.Inc()
}

func (m *Metrics) NotificationDelivered(ok bool) {
	result := "delivered"
	if !ok {
		result = "failed"
	}
	m.notifications.WithLabelValues(result).Inc()
}
