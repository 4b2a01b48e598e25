package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Config holds configuration for metrics collection.
type Config struct {
	// Enabled controls whether metrics collection is active.
	Enabled bool

	// Registry is the Prometheus registry to use. If nil, uses prometheus.DefaultRegisterer.
	Registry prometheus.Registerer

	// Namespace overrides the default "tokova" namespace for metrics.
	Namespace string
}

// DefaultConfig returns a default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Registry:  prometheus.DefaultRegisterer,
		Namespace: "tokova",
	}
}

type builtKey struct {
	reg       prometheus.Registerer
	namespace string
}

var (
	builtMu sync.Mutex
	built   = map[builtKey]*Registry{}
)

// Build returns the Registry described by c, or nil when metrics are disabled.
// A nil Registerer selects prometheus.DefaultRegisterer. Collectors are
// registered once per Registerer and namespace; later calls return the same
// Registry, so components sharing a Registerer are told apart by their labels.
func (c Config) Build() *Registry {
	if !c.Enabled {
		return nil
	}

	key := builtKey{reg: c.Registry, namespace: c.Namespace}
	if key.reg == nil {
		key.reg = prometheus.DefaultRegisterer
	}
	if key.namespace == "" {
		key.namespace = "tokova"
	}

	builtMu.Lock()
	defer builtMu.Unlock()

	if r, ok := built[key]; ok {
		return r
	}
	r := NewRegistryWithNamespace(key.reg, key.namespace)
	built[key] = r
	return r
}

// Instrumentable is an interface for components that can be instrumented with metrics.
type Instrumentable interface {
	// EnableMetrics enables metrics collection for this component.
	EnableMetrics(config Config) error

	// DisableMetrics disables metrics collection for this component.
	DisableMetrics()

	// MetricsEnabled returns true if metrics are currently enabled.
	MetricsEnabled() bool
}
