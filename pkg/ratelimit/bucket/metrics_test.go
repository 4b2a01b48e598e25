package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/tokova/internal/testutil"
	"github.com/vnykmshr/tokova/pkg/metrics"
)

func newMetricsLimiter(t *testing.T, limit int) (*MetricsLimiter, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	l, err := NewWithConfigAndMetrics(Config{Limit: limit, Interval: time.Hour}, "api",
		metrics.Config{Enabled: true, Registry: reg})
	testutil.AssertNoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	ml, ok := l.(*MetricsLimiter)
	if !ok {
		t.Fatalf("expected *MetricsLimiter, got %T", l)
	}
	return ml, reg
}

func TestMetricsLimiter_RecordsDecisions(t *testing.T) {
	ml, _ := newMetricsLimiter(t, 10)
	reg := ml.registry.Load()
	ctx := context.Background()

	testutil.AssertNoError(t, ml.Consume(ctx, 4))
	testutil.AssertErrorIs(t, ml.Consume(ctx, 7), ErrInsufficientTokens)

	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.TokensRequested.WithLabelValues("api")), 11.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.ConsumeAllowed.WithLabelValues("api")), 4.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.ConsumeDenied.WithLabelValues("api")), 7.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.TokensAvailable.WithLabelValues("api")), 6.0)

	testutil.AssertNoError(t, ml.ClearBucket(ctx))
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.BucketClears.WithLabelValues("api")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.TokensAvailable.WithLabelValues("api")), 0.0)
}

func TestMetricsLimiter_CancelledWaitIsNotADenial(t *testing.T) {
	ml, _ := newMetricsLimiter(t, 10)
	reg := ml.registry.Load()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	testutil.AssertErrorIs(t, ml.Consume(ctx, 1), context.Canceled)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.ConsumeDenied.WithLabelValues("api")), 0.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.ConsumeAllowed.WithLabelValues("api")), 0.0)
}

func TestMetricsLimiter_EnableDisable(t *testing.T) {
	ml, _ := newMetricsLimiter(t, 10)
	reg := ml.registry.Load()
	ctx := context.Background()

	ml.DisableMetrics()
	testutil.AssertEqual(t, ml.MetricsEnabled(), false)
	testutil.AssertNoError(t, ml.Consume(ctx, 1))
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.TokensRequested.WithLabelValues("api")), 0.0)

	fresh := prometheus.NewRegistry()
	testutil.AssertNoError(t, ml.EnableMetrics(metrics.Config{Enabled: true, Registry: fresh, Namespace: "edge"}))
	testutil.AssertEqual(t, ml.MetricsEnabled(), true)
	testutil.AssertNoError(t, ml.Consume(ctx, 2))

	testutil.AssertEqual(t, promtestutil.ToFloat64(ml.registry.Load().ConsumeAllowed.WithLabelValues("api")), 2.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(reg.ConsumeAllowed.WithLabelValues("api")), 0.0)
}

func TestMetricsLimiter_ReenableOnSameRegisterer(t *testing.T) {
	ml, reg := newMetricsLimiter(t, 10)
	before := ml.Registry()

	for i := 0; i < 2; i++ {
		ml.DisableMetrics()
		testutil.AssertNoError(t, ml.EnableMetrics(metrics.Config{Enabled: true, Registry: reg}))
	}
	if ml.Registry() != before {
		t.Error("re-enabling on the same registerer should keep its collectors")
	}

	testutil.AssertNoError(t, ml.Consume(context.Background(), 3))
	testutil.AssertEqual(t, promtestutil.ToFloat64(before.ConsumeAllowed.WithLabelValues("api")), 3.0)
}

func TestMetricsLimiter_ReenableWithDefaultConfig(t *testing.T) {
	l, err := NewWithConfigAndMetrics(Config{Limit: 10, Interval: time.Hour}, "default-reenable", metrics.DefaultConfig())
	testutil.AssertNoError(t, err)
	defer l.Close()

	ml := l.(*MetricsLimiter)
	testutil.AssertEqual(t, ml.Registry(), metrics.DefaultRegistry)

	ml.DisableMetrics()
	testutil.AssertNoError(t, ml.EnableMetrics(metrics.DefaultConfig()))
	testutil.AssertNoError(t, ml.EnableMetrics(metrics.DefaultConfig()))
	testutil.AssertEqual(t, ml.MetricsEnabled(), true)
	testutil.AssertEqual(t, ml.Registry(), metrics.DefaultRegistry)
}

func TestNewWithConfigAndMetrics_Disabled(t *testing.T) {
	l, err := NewWithConfigAndMetrics(Config{Limit: 1, Interval: time.Hour}, "off", metrics.Config{Enabled: false})
	testutil.AssertNoError(t, err)
	defer l.Close()

	if _, ok := l.(*MetricsLimiter); ok {
		t.Error("disabled metrics should return the plain limiter")
	}
}

func TestNewWithConfigAndMetrics_InvalidConfig(t *testing.T) {
	_, err := NewWithConfigAndMetrics(Config{}, "bad", metrics.Config{Enabled: true, Registry: prometheus.NewRegistry()})
	testutil.AssertError(t, err)
}

func TestNewWithMetrics_SharesRegistryWithRefill(t *testing.T) {
	l, err := NewWithMetrics(10, 5*time.Millisecond, 1, "shared")
	testutil.AssertNoError(t, err)
	defer l.Close()

	ml := l.(*MetricsLimiter)
	reg := ml.registry.Load()
	testutil.Eventually(t, func() bool {
		return promtestutil.ToFloat64(reg.TicksExecuted.WithLabelValues("shared", refillTaskID)) > 0
	}, 2*time.Second, 5*time.Millisecond)
}
