// Package guard provides the mutual-exclusion primitive that serializes every
// read and mutation of a token bucket.
//
// A Guard is a single-slot semaphore. Acquire blocks until the slot is free
// or the context ends, and hands back a Release func that callers defer:
//
//	release, err := g.Acquire(ctx)
//	if err != nil {
//		return err // no decision was made
//	}
//	defer release()
//
// Waiters are served in the order the Go runtime queues channel senders,
// which is first-come-first-served for goroutines blocked on the same Guard.
package guard

import (
	"context"
	"sync"

	tkcontext "github.com/vnykmshr/tokova/pkg/common/context"
)

// Release gives the guard back. Calling it more than once is a no-op.
type Release func()

// Guard serializes access to shared state.
type Guard struct {
	sem chan struct{}
}

// New creates an unlocked Guard.
func New() *Guard {
	return &Guard{sem: make(chan struct{}, 1)}
}

// Acquire waits for exclusive access. It returns ctx.Err() if the context is
// done before the guard could be taken; the guard is not held in that case.
func (g *Guard) Acquire(ctx context.Context) (Release, error) {
	if tkcontext.IsCanceled(ctx) {
		return nil, ctx.Err()
	}

	select {
	case g.sem <- struct{}{}:
		return g.release(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run executes fn while holding the guard. The guard is released on every
// exit path, including a panic inside fn.
func (g *Guard) Run(ctx context.Context, fn func() error) error {
	release, err := g.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return fn()
}

// Held reports whether some caller currently holds the guard.
func (g *Guard) Held() bool {
	return len(g.sem) == 1
}

func (g *Guard) release() Release {
	var once sync.Once
	return func() {
		once.Do(func() { <-g.sem })
	}
}
