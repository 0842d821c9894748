// Package metrics exposes Prometheus instrumentation for the scheduled
// callers and the HTTP server that publishes it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Invocation outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeUpstream = "upstream_error"
	OutcomeError    = "error"
)

// Scheduler records per-caller invocation results.
type Scheduler struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	skipped     *prometheus.CounterVec
	ticks       prometheus.Counter
}

// NewScheduler registers the scheduler collectors with reg.
func NewScheduler(reg prometheus.Registerer) *Scheduler {
	factory := promauto.With(reg)
	return &Scheduler{
		invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wetwire_fargate_invocations_total",
				Help: "Total number of caller invocations by outcome",
			},
			[]string{"caller", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wetwire_fargate_invocation_duration_seconds",
				Help:    "Caller invocation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"caller"},
		),
		skipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wetwire_fargate_invocations_skipped_total",
				Help: "Invocations skipped because the previous one had not settled",
			},
			[]string{"caller"},
		),
		ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "wetwire_fargate_ticks_total",
			Help: "Total number of schedule ticks",
		}),
	}
}

// Observe records one settled invocation.
func (m *Scheduler) Observe(caller, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(caller, outcome).Inc()
	m.duration.WithLabelValues(caller).Observe(d.Seconds())
}

// Skip records an invocation skipped by the overlap policy.
func (m *Scheduler) Skip(caller string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(caller).Inc()
}

// Tick records one schedule tick.
func (m *Scheduler) Tick() {
	if m == nil {
		return
	}
	m.ticks.Inc()
}
