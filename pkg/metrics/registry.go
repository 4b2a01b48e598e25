// Package metrics provides Prometheus instrumentation for tokova components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for tokova components.
type Registry struct {
	// Admission
	TokensRequested *prometheus.CounterVec
	ConsumeAllowed  *prometheus.CounterVec
	ConsumeDenied   *prometheus.CounterVec
	ConsumeWaitTime *prometheus.HistogramVec
	TokensAvailable *prometheus.GaugeVec
	BucketClears    *prometheus.CounterVec

	// Refill scheduling
	TicksExecuted *prometheus.CounterVec
	TicksFailed   *prometheus.CounterVec
	TickDuration  *prometheus.HistogramVec

	// Snapshots
	SnapshotsSaved  *prometheus.CounterVec
	SnapshotsFailed *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by tokova components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	built[builtKey{reg: prometheus.DefaultRegisterer, namespace: "tokova"}] = DefaultRegistry
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	return NewRegistryWithNamespace(reg, "tokova")
}

// NewRegistryWithNamespace is NewRegistry with a custom metric namespace.
// It registers every collector and panics if reg already holds them; use
// Config.Build to share one Registry per Registerer.
func NewRegistryWithNamespace(reg prometheus.Registerer, namespace string) *Registry {
	if namespace == "" {
		namespace = "tokova"
	}
	factory := promauto.With(reg)

	return &Registry{
		TokensRequested: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bucket",
				Name:      "consume_tokens_requested_total",
				Help:      "Total number of tokens requested through Consume",
			},
			[]string{"limiter_name"},
		),

		ConsumeAllowed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bucket",
				Name:      "consume_allowed_total",
				Help:      "Total number of tokens granted",
			},
			[]string{"limiter_name"},
		),

		ConsumeDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bucket",
				Name:      "consume_denied_total",
				Help:      "Total number of tokens denied for lack of budget",
			},
			[]string{"limiter_name"},
		),

		ConsumeWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bucket",
				Name:      "consume_duration_seconds",
				Help:      "Time spent in Consume, including waiting for the guard",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"limiter_name"},
		),

		TokensAvailable: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "bucket",
				Name:      "tokens_available",
				Help:      "Number of tokens currently in the bucket",
			},
			[]string{"limiter_name"},
		),

		BucketClears: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bucket",
				Name:      "clears_total",
				Help:      "Total number of explicit bucket resets",
			},
			[]string{"limiter_name"},
		),

		TicksExecuted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "ticks_executed_total",
				Help:      "Total number of scheduled task runs",
			},
			[]string{"scheduler_name", "task"},
		),

		TicksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "ticks_failed_total",
				Help:      "Total number of scheduled task runs that returned an error or panicked",
			},
			[]string{"scheduler_name", "task"},
		),

		TickDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "tick_duration_seconds",
				Help:      "Time spent executing scheduled tasks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"scheduler_name", "task"},
		),

		SnapshotsSaved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "persistence",
				Name:      "snapshots_saved_total",
				Help:      "Total number of diagnostic snapshots written",
			},
			[]string{"limiter_name"},
		),

		SnapshotsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "persistence",
				Name:      "snapshots_failed_total",
				Help:      "Total number of diagnostic snapshots that could not be written",
			},
			[]string{"limiter_name"},
		),
	}
}
