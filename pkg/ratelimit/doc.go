/*
Package ratelimit groups the rate limiting primitives of tokova.

  - bucket: token bucket topped up by a timer, with snapshot persistence and metrics
  - guard: single-slot, context-aware lock that serializes bucket access

A bucket is built from a guard and a scheduler:

	limiter, err := bucket.New(100, bucket.Minute, 20) // 100 tokens, +20 per minute
	if err != nil {
		return err
	}
	defer limiter.Close()

	switch err := limiter.Consume(ctx, 1); {
	case err == nil:
		// proceed
	case errors.Is(err, bucket.ErrInsufficientTokens):
		// over budget
	default:
		// ctx ended before a decision was made
	}

All limiters are safe for concurrent use.
*/
package ratelimit
