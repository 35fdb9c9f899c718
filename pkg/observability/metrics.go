package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors registered by NewMetrics.
type Metrics struct {
	SandboxSessions        *prometheus.CounterVec
	SandboxCleanupFailures *prometheus.CounterVec
	ToolLoopSteps          prometheus.Histogram
	ChildExecutions        *prometheus.CounterVec
	StepDuration           *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		SandboxSessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_sandbox_sessions_total",
				Help: "Sandbox session acquisitions by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		SandboxCleanupFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_sandbox_cleanup_failures_total",
				Help: "Sandbox teardowns that failed and were swallowed.",
			},
			[]string{"kind"},
		),
		ToolLoopSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_toolloop_steps",
				Help:    "Model turns used per tool loop run.",
				Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
			},
		),
		ChildExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_child_executions_total",
				Help: "Nested workflow invocations by terminal status.",
			},
			[]string{"status"},
		),
		StepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_step_duration_seconds",
				Help:    "Step invocation latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"step", "outcome"},
		),
		gatherer: reg,
	}
	reg.MustRegister(
		m.SandboxSessions,
		m.SandboxCleanupFailures,
		m.ToolLoopSteps,
		m.ChildExecutions,
		m.StepDuration,
	)
	return m
}

func (m *Metrics) SessionAcquired(kind string, err error) {
	if m == nil {
		return
	}
	m.SandboxSessions.WithLabelValues(kind, outcome(err)).Inc()
}

func (m *Metrics) CleanupFailed(kind string) {
	if m == nil {
		return
	}
	m.SandboxCleanupFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) LoopFinished(steps int) {
	if m == nil {
		return
	}
	m.ToolLoopSteps.Observe(float64(steps))
}

// ChildFinished counts a child execution by its terminal status ("success",
// "error", or "rejected" when no record was created).
func (m *Metrics) ChildFinished(status string) {
	if m == nil {
		return
	}
	m.ChildExecutions.WithLabelValues(status).Inc()
}

// ObserveStep records how long a step took.
func (m *Metrics) ObserveStep(step string, success bool, started time.Time) {
	if m == nil {
		return
	}
	label := "success"
	if !success {
		label = "failure"
	}
	m.StepDuration.WithLabelValues(step, label).Observe(time.Since(started).Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
