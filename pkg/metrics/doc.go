// Package metrics provides Prometheus instrumentation for tokova components.
//
// # Overview
//
// The package instruments three concerns:
//   - Admission: tokens requested, granted and denied by Consume, time spent
//     in Consume, the current token count and explicit clears
//   - Refill scheduling: scheduled runs, failed runs and run duration
//   - Diagnostics: snapshots written and snapshots that could not be written
//
// # Quick Start
//
//	limiter, err := bucket.NewWithConfigAndMetrics(
//		bucket.Config{Limit: 500, Interval: 10 * time.Second, TokensPerInterval: 10},
//		"api",
//		metrics.DefaultConfig(),
//	)
//
//	http.Handle("/metrics", promhttp.Handler())
//
// # Custom Registry
//
// Use a dedicated Prometheus registry to keep tokova metrics isolated, or
// when several limiters live in one test binary:
//
//	reg := prometheus.NewRegistry()
//	cfg := metrics.Config{Enabled: true, Registry: reg}
//
// # Available Metrics
//
//   - tokova_bucket_consume_tokens_requested_total{limiter_name}
//   - tokova_bucket_consume_allowed_total{limiter_name}
//   - tokova_bucket_consume_denied_total{limiter_name}
//   - tokova_bucket_consume_duration_seconds{limiter_name}
//   - tokova_bucket_tokens_available{limiter_name}
//   - tokova_bucket_clears_total{limiter_name}
//   - tokova_scheduler_ticks_executed_total{scheduler_name,task}
//   - tokova_scheduler_ticks_failed_total{scheduler_name,task}
//   - tokova_scheduler_tick_duration_seconds{scheduler_name,task}
//   - tokova_persistence_snapshots_saved_total{limiter_name}
//   - tokova_persistence_snapshots_failed_total{limiter_name}
//
// Counters for tokens are incremented by the token amount, not by one per call.
package metrics
