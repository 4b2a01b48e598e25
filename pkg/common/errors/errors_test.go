package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCommonErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ErrClosed", ErrClosed, "resource is closed"},
		{"ErrTimeout", ErrTimeout, "operation timed out"},
		{"ErrInvalidConfiguration", ErrInvalidConfiguration, "invalid configuration"},
		{"ErrRateLimited", ErrRateLimited, "rate limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "without hint",
			err:  NewValidationError("bucket", "limit", -1, "must be positive"),
			want: "bucket: invalid limit=-1 (must be positive)",
		},
		{
			name: "with hint",
			err:  NewValidationError("bucket", "interval", "0s", "must be positive").WithHint("use 1s or more"),
			want: "bucket: invalid interval=0s (must be positive) - use 1s or more",
		},
		{
			name: "empty string value",
			err:  NewValidationError("scheduler", "cron", "", "cannot be empty"),
			want: "scheduler: invalid cron= (cannot be empty)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidationError_WithHintChains(t *testing.T) {
	err := NewValidationError("bucket", "limit", 0, "must be positive")
	if got := err.WithHint("x"); got != err {
		t.Error("WithHint should return the same instance")
	}
	if !errors.Is(err, ErrInvalidConfiguration) {
		t.Error("ValidationError should wrap ErrInvalidConfiguration")
	}
}

func TestOperationError(t *testing.T) {
	cause := errors.New("not enough tokens")
	err := NewOperationError("bucket", "Consume", cause).
		WithContext("failed to consume tokens: tokens=400 limit=500")

	want := "bucket.Consume failed: not enough tokens (failed to consume tokens: tokens=400 limit=500)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Error("OperationError should wrap the cause")
	}

	bare := NewOperationError("persistence", "Save", cause)
	if strings.Contains(bare.Error(), "(") {
		t.Errorf("unexpected context in %q", bare.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout error", ErrTimeout, true},
		{"rate limited error", ErrRateLimited, true},
		{"closed error", ErrClosed, false},
		{"wrapped rate limited", &OperationError{Cause: fmt.Errorf("deny: %w", ErrRateLimited)}, true},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"validation error", NewValidationError("bucket", "limit", 0, "must be positive"), true},
		{"wrapped validation error", &OperationError{Cause: NewValidationError("bucket", "amount", 0, "must be positive")}, true},
		{"operation error", &OperationError{Cause: errors.New("x")}, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidationError(tt.err); got != tt.want {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.want)
			}
		})
	}
}
