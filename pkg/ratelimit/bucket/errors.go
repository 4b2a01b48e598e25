package bucket

import (
	"fmt"

	tkerrors "github.com/vnykmshr/tokova/pkg/common/errors"
)

// ErrInsufficientTokens is matched by every Consume denial.
var ErrInsufficientTokens = fmt.Errorf("not enough tokens: %w", tkerrors.ErrRateLimited)

// InsufficientTokensError reports a Consume request the bucket could not cover.
type InsufficientTokensError struct {
	Requested int
	Available int
	Limit     int
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("not enough tokens: requested %d, available %d of %d", e.Requested, e.Available, e.Limit)
}

// Unwrap returns ErrInsufficientTokens.
func (e *InsufficientTokensError) Unwrap() error {
	return ErrInsufficientTokens
}
