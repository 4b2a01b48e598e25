package bucket

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	tkerrors "github.com/vnykmshr/tokova/pkg/common/errors"
	"github.com/vnykmshr/tokova/pkg/persistence"
)

// operation is a bucket operation that can be wrapped by guarded.
type operation func(ctx context.Context) error

// ErrorPolicy controls what happens when a guarded operation fails.
type ErrorPolicy struct {
	// Message is the summary attached to the returned error.
	Message string

	// LogErrors logs every failure at Level.
	LogErrors bool
	Level     zapcore.Level

	// Handler, if set, is called with the cause and the bucket state at the
	// time of the failure.
	Handler func(err error, st State)
}

// guarded wraps fn so that any failure, including a panic, writes a snapshot
// of the bucket to the store, is logged and handed to the policy Handler, and
// comes back as an *errors.OperationError around the cause.
//
// A context error from waiting on the guard is returned unchanged: no
// decision was made, so there is nothing to record.
func (b *tokenBucket) guarded(op string, policy ErrorPolicy, fn operation) operation {
	return func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
			if err == nil {
				return
			}
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return
			}
			err = b.fail(ctx, op, policy, err)
		}()

		return fn(ctx)
	}
}

func (b *tokenBucket) fail(ctx context.Context, op string, policy ErrorPolicy, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.persistTimeout)
	defer cancel()

	st, snapErr := b.Snapshot(ctx)
	if snapErr == nil {
		b.saveSnapshot(ctx, st)
	}

	if policy.LogErrors {
		if ce := b.logger.Check(policy.Level, policy.Message); ce != nil {
			ce.Write(
				zap.String("op", op),
				zap.Int("tokens", st.Tokens),
				zap.Int("limit", b.limit),
				zap.Error(cause),
			)
		}
	}

	if policy.Handler != nil {
		policy.Handler(cause, st)
	}

	return tkerrors.NewOperationError("bucket", op, cause).
		WithContext(fmt.Sprintf("%s: tokens=%d limit=%d", policy.Message, st.Tokens, b.limit))
}

// saveSnapshot writes st under a key derived from the current time. Failures
// are logged and counted, never returned.
func (b *tokenBucket) saveSnapshot(ctx context.Context, st State) {
	if b.store == nil {
		return
	}

	key := persistence.NewKey(b.clock.Now())
	if err := b.store.Save(ctx, key, st); err != nil {
		b.logger.Error("failed to save bucket snapshot", zap.String("key", key), zap.Error(err))
		if b.metrics != nil {
			b.metrics.SnapshotsFailed.WithLabelValues(b.name).Inc()
		}
		return
	}

	b.logger.Debug("saved bucket snapshot", zap.String("key", key), zap.Int("tokens", st.Tokens))
	if b.metrics != nil {
		b.metrics.SnapshotsSaved.WithLabelValues(b.name).Inc()
	}
}
