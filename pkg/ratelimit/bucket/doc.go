/*
Package bucket implements a token bucket whose budget is topped up by a timer.

A bucket holds at most Limit tokens and starts full. Every Interval a refill
adds TokensPerInterval, never past the limit. Consume removes tokens or, if
there are not enough, fails without touching the bucket:

	limiter, err := bucket.New(500, 10*bucket.Second, 10)
	if err != nil {
		return err
	}
	defer limiter.Close()

	if err := limiter.Consume(ctx, 10); err != nil {
		if errors.Is(err, bucket.ErrInsufficientTokens) {
			// reject the request
		}
		return err
	}

Consume, ClearBucket, TokenCount, Snapshot and the refill tick all run under
one guard.Guard, so every operation sees and leaves a consistent bucket. The
only wait is for that guard; a context that ends during the wait returns
ctx.Err() and no decision is made.

Failures:

A failed Consume or refill writes a snapshot of the bucket to Config.Store
(when set), is logged, and comes back as an *errors.OperationError whose
cause is still reachable with errors.Is and errors.As. Snapshot writes that
fail are logged and counted, never returned.

Persistence:

With IsPersistent set, construction loads a snapshot from the store and fails
if none can be found. The bucket is then reset to full regardless of the
loaded count.

	limiter, err := bucket.NewWithConfig(bucket.Config{
		Limit:             500,
		Interval:          bucket.Second,
		TokensPerInterval: 10,
		IsPersistent:      true,
		ReviveFromLatest:  true,
	})

Metrics:

NewWithConfigAndMetrics wraps the limiter with Prometheus counters for
requested, allowed and denied tokens, a gauge of available tokens, and
refill tick and snapshot counters from the same registry.
*/
package bucket
