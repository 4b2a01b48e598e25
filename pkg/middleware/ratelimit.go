// Package middleware adapts a bucket.Limiter to net/http.
package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/tokova/pkg/ratelimit/bucket"
)

// Header names set by RateLimit.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderRetryAfter = "Retry-After"
)

// Options configures RateLimit.
type Options struct {
	cost       int
	logger     *zap.Logger
	retryAfter time.Duration
}

// Option customizes the middleware.
type Option func(*Options)

// WithCost sets how many tokens one request consumes (default 1).
func WithCost(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.cost = n
		}
	}
}

// WithLogger sets the logger used for denials and limiter failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRetryAfter sets the Retry-After header on denials, rounded up to whole
// seconds. Usually the refill interval.
func WithRetryAfter(d time.Duration) Option {
	return func(o *Options) {
		o.retryAfter = d
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// RateLimit consumes tokens from limiter for every request. A denied request
// gets 429 and never reaches next. A request for which no decision could be
// made, for example because the client went away while waiting, gets 503.
func RateLimit(limiter bucket.Limiter, opts ...Option) func(http.Handler) http.Handler {
	o := Options{cost: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			w.Header().Set(HeaderLimit, strconv.Itoa(limiter.Limit()))

			err := limiter.Consume(ctx, o.cost)

			switch {
			case err == nil:
				w.Header().Set(HeaderRemaining, strconv.Itoa(limiter.Available()))
				next.ServeHTTP(w, r)

			case errors.Is(err, bucket.ErrInsufficientTokens):
				w.Header().Set(HeaderRemaining, strconv.Itoa(limiter.Available()))
				if o.retryAfter > 0 {
					w.Header().Set(HeaderRetryAfter, strconv.FormatInt(durationCeilSeconds(o.retryAfter), 10))
				}
				o.logger.Debug("request rate limited",
					zap.String("path", r.URL.Path),
					zap.String("remote", r.RemoteAddr),
					zap.Int("cost", o.cost),
				)
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: http.StatusText(http.StatusTooManyRequests)})

			default:
				o.logger.Warn("rate limit decision failed",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "rate limiter unavailable"})
			}
		})
	}
}

func durationCeilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
