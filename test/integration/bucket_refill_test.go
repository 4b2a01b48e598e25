// Package integration contains integration tests that verify cross-package functionality.
// These tests ensure that different components work together correctly in realistic scenarios.
package integration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/tokova/internal/testutil"
	"github.com/vnykmshr/tokova/pkg/metrics"
	"github.com/vnykmshr/tokova/pkg/middleware"
	"github.com/vnykmshr/tokova/pkg/persistence"
	"github.com/vnykmshr/tokova/pkg/ratelimit/bucket"
)

// TestConsumeRacesRefill runs many consumers against a bucket whose timer
// refills it quickly. The bucket must never leave [0, limit], and the number
// of granted tokens can never exceed the starting budget plus what the timer
// added.
func TestConsumeRacesRefill(t *testing.T) {
	const (
		limit     = 50
		perTick   = 5
		interval  = 2 * time.Millisecond
		consumers = 8
	)

	reg := prometheus.NewRegistry()
	limiter, err := bucket.NewWithConfigAndMetrics(bucket.Config{
		Limit:             limit,
		Interval:          interval,
		TokensPerInterval: perTick,
	}, "race", metrics.Config{Enabled: true, Registry: reg})
	testutil.AssertNoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var granted, denied int64
	var wg sync.WaitGroup
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				err := limiter.Consume(ctx, 1)
				switch {
				case err == nil:
					atomic.AddInt64(&granted, 1)
				case errors.Is(err, bucket.ErrInsufficientTokens):
					atomic.AddInt64(&denied, 1)
				case ctx.Err() != nil:
					return
				default:
					t.Errorf("unexpected error: %v", err)
					return
				}

				n, err := limiter.TokenCount(context.Background())
				if err != nil || n < 0 || n > limit {
					t.Errorf("token count %d out of bounds (err %v)", n, err)
					return
				}
			}
		}()
	}
	wg.Wait()

	testutil.AssertNoError(t, limiter.Close())

	ticks := promtestutil.ToFloat64(metricsFor(t, limiter).TicksExecuted.WithLabelValues("race", "bucket-refill"))
	remaining, err := limiter.TokenCount(context.Background())
	testutil.AssertNoError(t, err)

	if granted == 0 || denied == 0 {
		t.Fatalf("expected both grants and denials, got %d granted, %d denied", granted, denied)
	}
	if budget := int64(limit) + int64(ticks)*perTick; granted+int64(remaining) > budget {
		t.Errorf("granted %d + remaining %d exceeds budget %d", granted, remaining, budget)
	}
}

func metricsFor(t *testing.T, l bucket.Limiter) *metrics.Registry {
	t.Helper()
	ml, ok := l.(*bucket.MetricsLimiter)
	if !ok {
		t.Fatalf("expected *bucket.MetricsLimiter, got %T", l)
	}
	return ml.Registry()
}

// TestMiddlewareWithFileSnapshots drives a limiter through HTTP until it
// denies, then revives a second limiter from the snapshot the denial wrote.
func TestMiddlewareWithFileSnapshots(t *testing.T) {
	store := persistence.NewFileStore(t.TempDir())

	limiter, err := bucket.NewWithConfig(bucket.Config{
		Limit:             30,
		Interval:          bucket.Hour,
		TokensPerInterval: 10,
		Store:             store,
	})
	testutil.AssertNoError(t, err)
	defer limiter.Close()

	handler := middleware.RateLimit(limiter, middleware.WithCost(10))(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) },
	))

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rr.Code)
	}
	testutil.AssertEqual(t, codes[2], http.StatusNoContent)
	testutil.AssertEqual(t, codes[3], http.StatusTooManyRequests)

	keys, err := store.Keys()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(keys), 1)

	snap, err := store.Load(context.Background(), persistence.Selector{Latest: true})
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, snap.Tokens, 0)

	revived, err := bucket.NewWithConfig(bucket.Config{
		Limit:            30,
		Interval:         bucket.Hour,
		IsPersistent:     true,
		ReviveFromLatest: true,
		Store:            store,
	})
	testutil.AssertNoError(t, err)
	defer revived.Close()

	n, err := revived.TokenCount(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, n, 30)
}
