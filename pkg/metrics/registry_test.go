package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistryWithNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistryWithNamespace(reg, "myapp")

	r.TicksExecuted.WithLabelValues("refill", "bucket").Inc()
	r.SnapshotsFailed.WithLabelValues("api").Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"myapp_scheduler_ticks_executed_total",
		"myapp_persistence_snapshots_failed_total",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered, got %v", want, names)
		}
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRegistry(reg)

	defer func() {
		if recover() == nil {
			t.Error("registering twice on one registerer should panic")
		}
	}()
	NewRegistry(reg)
}

func TestBuildDefaults(t *testing.T) {
	if got := (Config{Enabled: true}).Build(); got != DefaultRegistry {
		t.Error("nil registerer should select DefaultRegistry")
	}
	if got := DefaultConfig().Build(); got != DefaultRegistry {
		t.Error("DefaultConfig should reuse DefaultRegistry instead of registering twice")
	}

	r := Config{Enabled: true, Registry: prometheus.NewRegistry()}.Build()
	r.BucketClears.WithLabelValues("x").Inc()
	if got := testutil.ToFloat64(r.BucketClears.WithLabelValues("x")); got != 1 {
		t.Errorf("clears = %v, want 1", got)
	}

	if (Config{Enabled: false}).Build() != nil {
		t.Error("disabled config should build nothing")
	}
}

func TestBuildReusesRegistryPerRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := Config{Enabled: true, Registry: reg}

	first := cfg.Build()
	if second := cfg.Build(); second != first {
		t.Error("building twice on one registerer should return the same registry")
	}
	if other := (Config{Enabled: true, Registry: reg, Namespace: "edge"}).Build(); other == first {
		t.Error("a different namespace should get its own collectors")
	}
	if fresh := (Config{Enabled: true, Registry: prometheus.NewRegistry()}).Build(); fresh == first {
		t.Error("a different registerer should get its own collectors")
	}
}
