package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

var (
	// ErrPersistence matches every error returned by a Store.
	ErrPersistence = errors.New("persistence failure")

	// ErrNoSelector is returned by Load when neither a key nor Latest is given.
	ErrNoSelector = errors.New("a snapshot key or latest must be provided")

	// ErrSnapshotNotFound is returned when no snapshot matches the selector.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrCorruptSnapshot is returned when a snapshot cannot be decoded.
	ErrCorruptSnapshot = errors.New("snapshot is corrupt")
)

// Bucket is the persisted state of a token bucket.
type Bucket struct {
	Tokens     int
	LastRefill time.Time
}

type bucketJSON struct {
	Tokens     int   `json:"tokens"`
	LastRefill int64 `json:"lastRefill"`
}

// MarshalJSON encodes LastRefill as Unix milliseconds.
func (b Bucket) MarshalJSON() ([]byte, error) {
	var ms int64
	if !b.LastRefill.IsZero() {
		ms = b.LastRefill.UnixMilli()
	}
	return json.Marshal(bucketJSON{Tokens: b.Tokens, LastRefill: ms})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (b *Bucket) UnmarshalJSON(data []byte) error {
	var raw bucketJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Tokens < 0 {
		return fmt.Errorf("negative token count %d", raw.Tokens)
	}

	b.Tokens = raw.Tokens
	b.LastRefill = time.Time{}
	if raw.LastRefill != 0 {
		b.LastRefill = time.UnixMilli(raw.LastRefill)
	}
	return nil
}

// Selector picks the snapshot Load returns. Latest takes precedence over Key.
type Selector struct {
	Key    string
	Latest bool
}

// Store saves and loads bucket snapshots.
type Store interface {
	// Save writes b under key, replacing any snapshot with the same key.
	Save(ctx context.Context, key string, b Bucket) error

	// Load returns the snapshot picked by sel.
	Load(ctx context.Context, sel Selector) (Bucket, error)
}

var keySeq atomic.Uint64

// NewKey returns a snapshot key for t. Keys sort lexically in time order.
// Keys made for the same instant in one process differ by a sequence suffix
// that sorts in call order.
func NewKey(t time.Time) string {
	return fmt.Sprintf("%019d-%06d", t.UnixNano(), keySeq.Add(1)%1_000_000)
}

// Error describes a failed Store operation.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	key := e.Key
	if key == "" {
		key = "latest"
	}
	return fmt.Sprintf("persistence: %s %s: %v", e.Op, key, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports true for ErrPersistence so callers can match any store failure.
func (e *Error) Is(target error) bool {
	return target == ErrPersistence
}

func selectorError(sel Selector) error {
	if sel.Key == "" && !sel.Latest {
		return &Error{Op: "load", Err: ErrNoSelector}
	}
	return nil
}

func decode(op, key string, data []byte) (Bucket, error) {
	var b Bucket
	if err := json.Unmarshal(data, &b); err != nil {
		return Bucket{}, &Error{Op: op, Key: key, Err: fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)}
	}
	return b, nil
}
