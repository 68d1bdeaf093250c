// Package observability exposes the loop's Prometheus counters and the otel
// tracer used for per-iteration spans.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Metrics holds the orchestrator counters.
type Metrics struct {
	LoopIterations       prometheus.Counter
	CircuitTrips         *prometheus.CounterVec
	TasksDispatched      *prometheus.CounterVec
	VerificationOutcomes *prometheus.CounterVec
}

// NewMetrics registers the counters on reg. A nil reg uses a fresh registry,
// which keeps tests isolated from the process default.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		LoopIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rev",
			Subsystem: "orchestrator",
			Name:      "loop_iterations_total",
			Help:      "Loop iterations started.",
		}),
		CircuitTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rev",
			Subsystem: "orchestrator",
			Name:      "circuit_trips_total",
			Help:      "Circuit breaker trips by breaker name.",
		}, []string{"breaker"}),
		TasksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rev",
			Subsystem: "orchestrator",
			Name:      "tasks_dispatched_total",
			Help:      "Tasks dispatched by action kind.",
		}, []string{"action"}),
		VerificationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rev",
			Subsystem: "orchestrator",
			Name:      "verification_outcomes_total",
			Help:      "Verification results by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.LoopIterations, m.CircuitTrips, m.TasksDispatched, m.VerificationOutcomes)
	return m
}

// Tracer returns the library tracer.
func Tracer() trace.Tracer {
	return otel.Tracer("rev/orchestrator")
}
