package bucket

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vnykmshr/tokova/pkg/metrics"
	"github.com/vnykmshr/tokova/pkg/persistence"
)

// Common refill intervals.
const (
	Second = time.Second
	Minute = time.Minute
	Hour   = time.Hour
	Day    = 24 * time.Hour
)

// State is a copy of the bucket: the tokens it holds and when it was last
// reset.
type State = persistence.Bucket

// Limiter admits or rejects units of work against a capped budget of tokens
// that a timer tops up every interval.
type Limiter interface {
	// Consume removes amount tokens, or fails with an error matching
	// ErrInsufficientTokens and leaves the bucket unchanged. If ctx ends while
	// waiting for exclusive access, ctx.Err() is returned and nothing is
	// decided.
	Consume(ctx context.Context, amount int) error

	// ClearBucket empties the bucket and stamps the reset time. Refills
	// continue afterwards.
	ClearBucket(ctx context.Context) error

	// TokenCount returns the tokens currently available.
	TokenCount(ctx context.Context) (int, error)

	// Available returns the token count left by the most recent change
	// without waiting for exclusive access. It may trail a change that is
	// still in progress; use TokenCount for a serialized read.
	Available() int

	// Snapshot returns a copy of the bucket state.
	Snapshot(ctx context.Context) (State, error)

	// Limit returns the bucket capacity.
	Limit() int

	// Close stops the refill timer and waits for an in-flight refill to
	// return. It is safe to call more than once.
	Close() error
}

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds configuration options for creating a new Limiter.
type Config struct {
	// Limit is the bucket capacity. The bucket starts full.
	Limit int

	// Interval is the refill period.
	Interval time.Duration

	// TokensPerInterval is added every Interval, capped at Limit.
	// Zero disables refilling.
	TokensPerInterval int

	// IsPersistent loads a snapshot from Store on construction. The load
	// must succeed, but the bucket is still reset to full afterwards.
	IsPersistent bool

	// ReviveFromLatest selects the most recent snapshot. It takes
	// precedence over SnapshotKey.
	ReviveFromLatest bool

	// SnapshotKey selects a specific snapshot when ReviveFromLatest is false.
	SnapshotKey string

	// Name labels logs, metrics and the refill scheduler (default "default").
	Name string

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// Store receives a snapshot whenever an operation fails and serves
	// IsPersistent loads. If nil and IsPersistent is set, a FileStore in
	// persistence.DefaultDir is used; otherwise no snapshots are written.
	Store persistence.Store

	// RefillCron replaces the fixed Interval cadence with a cron schedule
	// (seconds field first, or a descriptor such as "@every 10s").
	RefillCron string

	// Logger receives failures and lifecycle events. Defaults to a no-op logger.
	Logger *zap.Logger

	// Registry records refill ticks and snapshot writes when non-nil.
	Registry *metrics.Registry

	// PersistTimeout bounds every Store call (default 5s).
	PersistTimeout time.Duration

	// OnRefillError is called after a refill tick fails. It must not call
	// Close.
	OnRefillError func(err error)
}

// DefaultPersistTimeout bounds Store calls when Config.PersistTimeout is zero.
const DefaultPersistTimeout = 5 * time.Second

// New creates a non-persistent limiter holding up to limit tokens and adding
// tokensPerInterval every interval.
func New(limit int, interval time.Duration, tokensPerInterval int) (Limiter, error) {
	return NewWithConfig(Config{
		Limit:             limit,
		Interval:          interval,
		TokensPerInterval: tokensPerInterval,
	})
}
