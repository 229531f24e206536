package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for phaseflow. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Classification metrics
	Classifications *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec

	// Worker dispatch metrics
	Dispatches       *prometheus.CounterVec
	DispatchDuration *prometheus.HistogramVec
	AttemptFailures  *prometheus.CounterVec

	// Phase metrics
	PhaseTransitions *prometheus.CounterVec
	PhaseDuration    *prometheus.HistogramVec

	// Escalation metrics
	Escalations *prometheus.CounterVec

	// Gate metrics
	GateResults *prometheus.CounterVec

	// Progress store metrics
	StoreWrites *prometheus.CounterVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Classifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_classifications_total",
				Help: "Total number of task classifications by complexity and risk level",
			},
			[]string{"complexity", "risk"},
		),
		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_classification_cache_lookups_total",
				Help: "Classification cache lookups",
			},
			[]string{"result"},
		),

		Dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_worker_dispatches_total",
				Help: "Total number of worker dispatches",
			},
			[]string{"role", "success"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phaseflow_worker_dispatch_duration_seconds",
				Help:    "Worker dispatch duration in seconds",
				Buckets: []float64{0.1, 0.5, 1.0, 5.0, 30.0, 60.0, 300.0, 900.0},
			},
			[]string{"role"},
		),
		AttemptFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_attempt_failures_total",
				Help: "Failed phase attempts by failure kind",
			},
			[]string{"phase", "kind"},
		),

		PhaseTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_phase_transitions_total",
				Help: "Phase status transitions",
			},
			[]string{"status"},
		),
		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phaseflow_phase_duration_seconds",
				Help:    "Wall time from dispatch to terminal status per phase",
				Buckets: []float64{1.0, 10.0, 60.0, 300.0, 900.0, 1800.0, 3600.0},
			},
			[]string{"phase"},
		),

		Escalations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_escalations_total",
				Help: "Escalations raised after retries ran out, by decision",
			},
			[]string{"decision"},
		),

		GateResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_gate_results_total",
				Help: "Validation gate evaluations",
			},
			[]string{"gate", "pass"},
		),

		StoreWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_store_writes_total",
				Help: "Progress store writes",
			},
			[]string{"op", "success"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phaseflow_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// RecordClassification counts one computed classification
func (m *Metrics) RecordClassification(complexity, risk string) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(complexity, risk).Inc()
}

// RecordCacheLookups adds classification cache hits and misses
func (m *Metrics) RecordCacheLookups(hits, misses int) {
	if m == nil {
		return
	}
	if hits > 0 {
		m.CacheLookups.WithLabelValues("hit").Add(float64(hits))
	}
	if misses > 0 {
		m.CacheLookups.WithLabelValues("miss").Add(float64(misses))
	}
}

// RecordDispatch counts a worker invocation and its duration
func (m *Metrics) RecordDispatch(role string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(role, strconv.FormatBool(success)).Inc()
	m.DispatchDuration.WithLabelValues(role).Observe(d.Seconds())
}

// RecordAttemptFailure counts a failed attempt (validation, quality, worker)
func (m *Metrics) RecordAttemptFailure(phase, kind string) {
	if m == nil {
		return
	}
	m.AttemptFailures.WithLabelValues(phase, kind).Inc()
}

// RecordPhase counts a terminal transition and its duration
func (m *Metrics) RecordPhase(phase, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(status).Inc()
	if d > 0 {
		m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
	}
}

// RecordEscalation counts an escalation by its decision
func (m *Metrics) RecordEscalation(decision string) {
	if m == nil {
		return
	}
	m.Escalations.WithLabelValues(decision).Inc()
}

// RecordGate counts a gate evaluation
func (m *Metrics) RecordGate(gate string, pass bool) {
	if m == nil {
		return
	}
	m.GateResults.WithLabelValues(gate, strconv.FormatBool(pass)).Inc()
}

// RecordStoreWrite counts a progress store write
func (m *Metrics) RecordStoreWrite(op string, success bool) {
	if m == nil {
		return
	}
	m.StoreWrites.WithLabelValues(op, strconv.FormatBool(success)).Inc()
}

// RecordError counts an error by code
func (m *Metrics) RecordError(code, component string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code, component).Inc()
}
