package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Execution outcomes used as the "outcome" label.
const (
	OutcomeSuccess             = "success"
	OutcomeUnsupportedLanguage = "unsupported_language"
	OutcomeWorkspaceNotFound   = "workspace_not_found"
	OutcomeInvalidRequest      = "invalid_request"
	OutcomeInfrastructureError = "infrastructure_error"
)

// Metrics holds the runner's Prometheus instruments.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal      *prometheus.CounterVec
	ExecutionDuration    *prometheus.HistogramVec
	RuntimeOpDuration    *prometheus.HistogramVec
	CleanupFailuresTotal prometheus.Counter
	OutputTruncatedTotal prometheus.Counter
	CollectDeadlineTotal prometheus.Counter
	ContainersInFlight   prometheus.Gauge
}

// New creates the instruments and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coderunner_executions_total",
				Help: "Total execution requests by language and outcome",
			},
			[]string{"language", "outcome"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coderunner_execution_duration_seconds",
				Help:    "Wall-clock time of one execution request",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 15.0, 30.0},
			},
			[]string{"language"},
		),

		RuntimeOpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coderunner_runtime_op_duration_seconds",
				Help:    "Time for container runtime operations",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),

		CleanupFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coderunner_cleanup_failures_total",
			Help: "Container removals that failed after a run",
		}),

		OutputTruncatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coderunner_output_truncated_total",
			Help: "Runs whose output exceeded the configured size cap",
		}),

		CollectDeadlineTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "coderunner_collect_deadline_total",
			Help: "Runs whose log collection hit the deadline before the stream ended",
		}),

		ContainersInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coderunner_containers_in_flight",
			Help: "Containers created and not yet removed",
		}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.RuntimeOpDuration,
		m.CleanupFailuresTotal,
		m.OutputTruncatedTotal,
		m.CollectDeadlineTotal,
		m.ContainersInFlight,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// ObserveExecution records one finished execution request.
func (m *Metrics) ObserveExecution(language, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionsTotal.WithLabelValues(language, outcome).Inc()
	m.ExecutionDuration.WithLabelValues(language).Observe(elapsed.Seconds())
}

// ObserveRuntimeOp records the duration of one runtime daemon call.
func (m *Metrics) ObserveRuntimeOp(operation string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RuntimeOpDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// CleanupFailed counts a failed container removal.
func (m *Metrics) CleanupFailed() {
	if m == nil {
		return
	}
	m.CleanupFailuresTotal.Inc()
}

// OutputTruncated counts a run whose output hit the size cap.
func (m *Metrics) OutputTruncated() {
	if m == nil {
		return
	}
	m.OutputTruncatedTotal.Inc()
}

// CollectDeadlineReached counts a run cut short by the collection deadline.
func (m *Metrics) CollectDeadlineReached() {
	if m == nil {
		return
	}
	m.CollectDeadlineTotal.Inc()
}

// ContainerCreated increments the in-flight gauge.
func (m *Metrics) ContainerCreated() {
	if m == nil {
		return
	}
	m.ContainersInFlight.Inc()
}

// ContainerRemoved decrements the in-flight gauge.
func (m *Metrics) ContainerRemoved() {
	if m == nil {
		return
	}
	m.ContainersInFlight.Dec()
}
