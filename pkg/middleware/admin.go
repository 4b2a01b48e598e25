package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/vnykmshr/tokova/pkg/ratelimit/bucket"
)

// Status is the body written by StatusHandler.
type Status struct {
	Limit      int   `json:"limit"`
	Tokens     int   `json:"tokens"`
	LastRefill int64 `json:"lastRefill"`
}

// ClearHandler empties the bucket and reports the resulting status.
func ClearHandler(limiter bucket.Limiter, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := limiter.ClearBucket(r.Context()); err != nil {
			logger.Warn("failed to clear bucket", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "rate limiter unavailable"})
			return
		}
		logger.Info("bucket cleared", zap.String("remote", r.RemoteAddr))
		writeStatus(w, r, limiter)
	})
}

// StatusHandler reports the bucket's current tokens and last reset time.
func StatusHandler(limiter bucket.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, r, limiter)
	})
}

func writeStatus(w http.ResponseWriter, r *http.Request, limiter bucket.Limiter) {
	st, err := limiter.Snapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "rate limiter unavailable"})
		return
	}

	status := Status{Limit: limiter.Limit(), Tokens: st.Tokens}
	if !st.LastRefill.IsZero() {
		status.LastRefill = st.LastRefill.UnixMilli()
	}
	writeJSON(w, http.StatusOK, status)
}
