/*
Package tokova provides a token bucket rate limiter refilled on a timer.

A bucket holds a capped budget of tokens. Work consumes tokens; a timer adds a
fixed number back every interval. Requests the bucket cannot cover are
rejected immediately rather than queued.

Packages:

  - pkg/ratelimit/bucket: the limiter (Consume, ClearBucket, TokenCount, Snapshot)
  - pkg/ratelimit/guard: context-aware mutual exclusion for bucket state
  - pkg/scheduling/scheduler: interval and cron task runner that drives refills
  - pkg/persistence: snapshot stores backed by files, Redis or memory
  - pkg/middleware: net/http integration
  - pkg/metrics: Prometheus instrumentation

Example usage:

	import "github.com/vnykmshr/tokova/pkg/ratelimit/bucket"

	limiter, err := bucket.New(500, 10*bucket.Second, 10)
	if err != nil {
		return err
	}
	defer limiter.Close()

	if err := limiter.Consume(ctx, 10); errors.Is(err, bucket.ErrInsufficientTokens) {
		// reject
	}

The limiter is local to one process. It does not coordinate across instances.
*/
package tokova
