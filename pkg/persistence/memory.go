package persistence

import (
	"context"
	"sort"
	"sync"

	"github.com/vnykmshr/tokova/pkg/common/validation"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Bucket
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Bucket)}
}

// Save implements Store.
func (m *MemoryStore) Save(ctx context.Context, key string, b Bucket) error {
	if err := ctx.Err(); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}
	if err := validation.ValidateNotEmpty("persistence", "key", key); err != nil {
		return &Error{Op: "save", Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[key] = b
	return nil
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, sel Selector) (Bucket, error) {
	if err := selectorError(sel); err != nil {
		return Bucket{}, err
	}
	if err := ctx.Err(); err != nil {
		return Bucket{}, &Error{Op: "load", Key: sel.Key, Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	key := sel.Key
	if sel.Latest {
		keys := m.sortedKeys()
		if len(keys) == 0 {
			return Bucket{}, &Error{Op: "load", Err: ErrSnapshotNotFound}
		}
		key = keys[len(keys)-1]
	}

	b, ok := m.snapshots[key]
	if !ok {
		return Bucket{}, &Error{Op: "load", Key: key, Err: ErrSnapshotNotFound}
	}
	return b, nil
}

// Keys returns all snapshot keys in ascending order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sortedKeys()
}

func (m *MemoryStore) sortedKeys() []string {
	keys := make([]string, 0, len(m.snapshots))
	for k := range m.snapshots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
