package bucket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	tkerrors "github.com/vnykmshr/tokova/pkg/common/errors"
	"github.com/vnykmshr/tokova/pkg/common/validation"
	"github.com/vnykmshr/tokova/pkg/metrics"
	"github.com/vnykmshr/tokova/pkg/persistence"
	"github.com/vnykmshr/tokova/pkg/ratelimit/guard"
	"github.com/vnykmshr/tokova/pkg/scheduling/scheduler"
)

const refillTaskID = "bucket-refill"

// tokenBucket implements the Limiter interface. All reads and writes of
// state go through guard, including the refill tick.
type tokenBucket struct {
	name           string
	limit          int
	perInterval    int
	clock          Clock
	store          persistence.Store
	persistTimeout time.Duration
	logger         *zap.Logger
	metrics        *metrics.Registry

	guard     *guard.Guard
	state     State
	available atomic.Int64 // state.Tokens, published after every change

	refill    operation
	sched     scheduler.Scheduler
	closeOnce sync.Once
}

// NewWithConfig creates a limiter from config. It fails with a
// *errors.ValidationError for bad numbers and with a *persistence.Error when
// IsPersistent is set and no snapshot can be loaded.
func NewWithConfig(config Config) (Limiter, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	b := &tokenBucket{
		name:           config.Name,
		limit:          config.Limit,
		perInterval:    config.TokensPerInterval,
		clock:          config.Clock,
		store:          config.Store,
		persistTimeout: config.PersistTimeout,
		logger:         config.Logger.With(zap.String("limiter", config.Name)),
		metrics:        config.Registry,
		guard:          guard.New(),
	}

	if config.IsPersistent {
		revived, err := b.revive(config.SnapshotKey, config.ReviveFromLatest)
		if err != nil {
			return nil, err
		}
		b.state = revived
	}

	// The bucket always starts full, revived or not.
	b.state = State{Tokens: config.Limit, LastRefill: b.clock.Now()}
	b.publish()

	b.refill = b.guarded("addTokens", ErrorPolicy{
		Message:   "failed to add tokens",
		LogErrors: true,
		Level:     zapcore.ErrorLevel,
		Handler: func(_ error, st State) {
			b.logger.Info("current bucket state", zap.Int("tokens", st.Tokens), zap.Time("last_refill", st.LastRefill))
		},
	}, func(ctx context.Context) error {
		return b.addTokens(ctx, b.perInterval)
	})

	if config.TokensPerInterval > 0 {
		if err := b.startRefill(config); err != nil {
			return nil, err
		}
	}

	b.logger.Debug("limiter created",
		zap.Int("limit", config.Limit),
		zap.Duration("interval", config.Interval),
		zap.Int("tokens_per_interval", config.TokensPerInterval),
	)
	return b, nil
}

func (c Config) validate() error {
	if err := validation.ValidatePositive("bucket", "limit", c.Limit); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("bucket", "interval", c.Interval); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("bucket", "tokensPerInterval", c.TokensPerInterval); err != nil {
		return err
	}
	if c.RefillCron != "" {
		if err := scheduler.ValidateCron(c.RefillCron); err != nil {
			return tkerrors.NewValidationError("bucket", "refillCron", c.RefillCron, err.Error()).
				WithHint("use six fields with seconds first, or a descriptor like @every 10s")
		}
	}
	if c.PersistTimeout < 0 {
		return tkerrors.NewValidationError("bucket", "persistTimeout", c.PersistTimeout, "cannot be negative").
			WithHint("use 0 for the default timeout")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.PersistTimeout == 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
	if c.Store == nil && c.IsPersistent {
		c.Store = persistence.NewFileStore(persistence.DefaultDir)
	}
	return c
}

func (b *tokenBucket) revive(key string, latest bool) (State, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.persistTimeout)
	defer cancel()

	st, err := b.store.Load(ctx, persistence.Selector{Key: key, Latest: latest})
	if err != nil {
		if !errors.Is(err, persistence.ErrPersistence) {
			err = &persistence.Error{Op: "load", Key: key, Err: err}
		}
		return State{}, err
	}

	b.logger.Info("loaded bucket snapshot",
		zap.String("key", key),
		zap.Bool("latest", latest),
		zap.Int("tokens", st.Tokens),
	)
	return st, nil
}

func (b *tokenBucket) startRefill(config Config) error {
	b.sched = scheduler.NewWithConfig(scheduler.Config{
		Name:    config.Name,
		Logger:  b.logger,
		Metrics: config.Registry,
		OnError: func(terr *scheduler.TaskError) {
			if config.OnRefillError != nil {
				config.OnRefillError(terr)
			}
		},
	})

	task := scheduler.TaskFunc(b.refill)

	var err error
	if config.RefillCron != "" {
		err = b.sched.ScheduleCron(refillTaskID, config.RefillCron, task)
	} else {
		err = b.sched.ScheduleRepeating(refillTaskID, task, config.Interval)
	}
	if err == nil {
		err = b.sched.Start()
	}
	if err != nil {
		<-b.sched.Stop()
		return tkerrors.NewOperationError("bucket", "startRefill", err)
	}
	return nil
}

// addTokens tops the bucket up by amount, never past the limit.
func (b *tokenBucket) addTokens(ctx context.Context, amount int) error {
	if amount <= 0 {
		return nil
	}
	return b.guard.Run(ctx, func() error {
		b.state.Tokens = min(b.state.Tokens+amount, b.limit)
		b.publish()
		return nil
	})
}

// Consume removes amount tokens from the bucket.
func (b *tokenBucket) Consume(ctx context.Context, amount int) error {
	if err := validation.ValidatePositive("bucket", "amount", amount); err != nil {
		return err
	}

	return b.guarded("Consume", ErrorPolicy{
		Message:   "failed to consume tokens",
		LogErrors: true,
		Level:     zapcore.WarnLevel,
	}, func(ctx context.Context) error {
		return b.guard.Run(ctx, func() error {
			if b.state.Tokens < amount {
				return &InsufficientTokensError{
					Requested: amount,
					Available: b.state.Tokens,
					Limit:     b.limit,
				}
			}
			b.state.Tokens -= amount
			b.publish()
			return nil
		})
	})(ctx)
}

// ClearBucket sets the bucket to zero tokens.
func (b *tokenBucket) ClearBucket(ctx context.Context) error {
	return b.guard.Run(ctx, func() error {
		b.state = State{Tokens: 0, LastRefill: b.clock.Now()}
		b.publish()
		return nil
	})
}

// TokenCount returns the number of tokens currently available.
func (b *tokenBucket) TokenCount(ctx context.Context) (int, error) {
	st, err := b.Snapshot(ctx)
	return st.Tokens, err
}

// Available returns the token count published by the last change.
func (b *tokenBucket) Available() int {
	return int(b.available.Load())
}

// publish records state.Tokens for Available. Caller must hold the guard.
func (b *tokenBucket) publish() {
	b.available.Store(int64(b.state.Tokens))
}

// Snapshot returns a copy of the bucket state.
func (b *tokenBucket) Snapshot(ctx context.Context) (State, error) {
	var st State
	err := b.guard.Run(ctx, func() error {
		st = b.state
		return nil
	})
	return st, err
}

// Limit returns the bucket capacity.
func (b *tokenBucket) Limit() int {
	return b.limit
}

// Close stops refilling. Tokens are not flushed to the store.
func (b *tokenBucket) Close() error {
	b.closeOnce.Do(func() {
		if b.sched != nil {
			<-b.sched.Stop()
		}
		b.logger.Debug("limiter closed")
	})
	return nil
}
