package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vnykmshr/tokova/pkg/common/validation"
)

// DefaultDir is where FileStore writes snapshots when no directory is given.
const DefaultDir = "tokova/persist/bucket-state"

const (
	filePrefix = "tk-"
	fileSuffix = ".json"
)

// FileStore writes each snapshot to <dir>/tk-<key>.json.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir. The directory is created
// on the first Save.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = DefaultDir
	}
	return &FileStore{dir: dir}
}

// Dir returns the snapshot directory.
func (f *FileStore) Dir() string {
	return f.dir
}

// Save implements Store. The file is written to a temporary name and renamed
// so a reader never sees a partial snapshot.
func (f *FileStore) Save(ctx context.Context, key string, b Bucket) error {
	if err := validKey(key); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}

	data, err := json.Marshal(b)
	if err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return &Error{Op: "save", Key: key, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	tmp, err := os.CreateTemp(f.dir, ".tk-*.tmp")
	if err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &Error{Op: "save", Key: key, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}

	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return &Error{Op: "save", Key: key, Err: err}
	}
	return nil
}

// Load implements Store.
func (f *FileStore) Load(ctx context.Context, sel Selector) (Bucket, error) {
	if err := selectorError(sel); err != nil {
		return Bucket{}, err
	}
	if err := ctx.Err(); err != nil {
		return Bucket{}, &Error{Op: "load", Key: sel.Key, Err: err}
	}

	key := sel.Key
	if sel.Latest {
		keys, err := f.Keys()
		if err != nil {
			return Bucket{}, err
		}
		if len(keys) == 0 {
			return Bucket{}, &Error{Op: "load", Err: ErrSnapshotNotFound}
		}
		key = keys[len(keys)-1]
	} else if err := validKey(key); err != nil {
		return Bucket{}, &Error{Op: "load", Key: key, Err: err}
	}

	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return Bucket{}, &Error{Op: "load", Key: key, Err: ErrSnapshotNotFound}
	}
	if err != nil {
		return Bucket{}, &Error{Op: "load", Key: key, Err: err}
	}

	return decode("load", key, data)
}

// Keys returns the keys of all snapshots in the directory, oldest first.
// A missing directory yields no keys.
func (f *FileStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, filePrefix+key+fileSuffix)
}

func validKey(key string) error {
	if err := validation.ValidateNotEmpty("persistence", "key", key); err != nil {
		return err
	}
	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return fmt.Errorf("key %q contains path elements", key)
	}
	return nil
}
