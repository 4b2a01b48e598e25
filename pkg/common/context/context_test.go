package context

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestIsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	if IsCanceled(ctx) {
		t.Fatal("fresh context reported canceled")
	}
	cancel()
	if !IsCanceled(ctx) {
		t.Fatal("canceled context not reported")
	}
}

func TestWithTimeoutOrCancel(t *testing.T) {
	ctx, cancel := WithTimeoutOrCancel(context.Background(), 10*time.Millisecond)
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("timeout context never expired")
	}

	noTimeout, cancel2 := WithTimeoutOrCancel(context.Background(), 0)
	if _, ok := noTimeout.Deadline(); ok {
		t.Error("zero timeout should not set a deadline")
	}
	cancel2()
	if !IsCanceled(noTimeout) {
		t.Error("cancel should still propagate")
	}
}

func TestIsContextError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{context.Canceled, true},
		{fmt.Errorf("acquire: %w", context.DeadlineExceeded), true},
		{fmt.Errorf("boom"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := IsContextError(tt.err); got != tt.want {
			t.Errorf("IsContextError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
