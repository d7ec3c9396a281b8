// Package metrics exposes Prometheus counters for intake and alert dispatch.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relief-alert-service/internal/models"
)

// Metrics holds every collector the service reports.
type Metrics struct {
	BroadcastsTotal     *prometheus.CounterVec   // broadcasts by category
	OutcomesTotal       *prometheus.CounterVec   // per-device results by category and result
	BroadcastDuration   *prometheus.HistogramVec // broadcast latency by category
	ScheduledRunsTotal  *prometheus.CounterVec   // timer runs by result: ok, failed, skipped
	RateLimitDecisions  *prometheus.CounterVec   // intake decisions: allowed, rejected
	ReportsCreatedTotal *prometheus.CounterVec   // accepted reports by user risk

	registry *prometheus.Registry
}

// New registers all collectors on a fresh registry, along with the Go and
// process collectors.
func New() (*Metrics, error) {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.BroadcastsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relief_broadcasts_total",
			Help: "Total number of completed alert broadcasts by category",
		},
		[]string{"category"},
	)
	m.OutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relief_dispatch_outcomes_total",
			Help: "Per-device push results by category and result",
		},
		[]string{"category", "result"}, // result: success, failure
	)
	m.BroadcastDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relief_broadcast_duration_seconds",
			Help:    "Time taken to fan out one broadcast",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"category"},
	)
	m.ScheduledRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relief_scheduled_runs_total",
			Help: "Scheduler runs by result",
		},
		[]string{"result"}, // result: ok, failed, skipped
	)
	m.RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relief_intake_rate_limit_total",
			Help: "Help call intake rate limit decisions",
		},
		[]string{"decision"}, // decision: allowed, rejected
	)
	m.ReportsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relief_reports_created_total",
			Help: "Accepted help reports by user risk",
		},
		[]string{"user_risk"},
	)

	for _, c := range []prometheus.Collector{
		m.BroadcastsTotal,
		m.OutcomesTotal,
		m.BroadcastDuration,
		m.ScheduledRunsTotal,
		m.RateLimitDecisions,
		m.ReportsCreatedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// BroadcastFinished records one broadcast summary.
func (m *Metrics) BroadcastFinished(_ context.Context, s models.BroadcastSummary) error {
	category := string(s.Category)
	m.BroadcastsTotal.WithLabelValues(category).Inc()
	m.OutcomesTotal.WithLabelValues(category, "success").Add(float64(s.Succeeded))
	m.OutcomesTotal.WithLabelValues(category, "failure").Add(float64(s.Failed))
	m.BroadcastDuration.WithLabelValues(category).Observe(s.Duration.Seconds())
	return nil
}

func (m *Metrics) ScheduledRun(result string) {
	m.ScheduledRunsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimit(allowed bool) {
	decision := "rejected"
	if allowed {
		decision = "allowed"
	}
	m.RateLimitDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ReportCreated(risk models.UserRisk) {
	m.ReportsCreatedTotal.WithLabelValues(string(risk)).Inc()
}
