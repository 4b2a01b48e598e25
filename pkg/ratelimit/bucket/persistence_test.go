package bucket

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vnykmshr/tokova/internal/testutil"
	"github.com/vnykmshr/tokova/pkg/persistence"
)

func seededStore(t *testing.T) *persistence.MemoryStore {
	t.Helper()
	store := persistence.NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(1718000000, 0)
	testutil.AssertNoError(t, store.Save(ctx, persistence.NewKey(base), State{Tokens: 120, LastRefill: base}))
	testutil.AssertNoError(t, store.Save(ctx, persistence.NewKey(base.Add(time.Hour)), State{Tokens: 7, LastRefill: base.Add(time.Hour)}))
	return store
}

func TestNewWithConfig_ReviveFromLatest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	clock := testutil.NewMockClock(time.Unix(1718100000, 0))

	b := newBucket(t, Config{
		Limit:            500,
		Interval:         Second,
		IsPersistent:     true,
		ReviveFromLatest: true,
		SnapshotKey:      "ignored",
		Store:            seededStore(t),
		Clock:            clock,
		Logger:           zap.New(core),
	})

	entries := logs.FilterMessage("loaded bucket snapshot").All()
	testutil.AssertEqual(t, len(entries), 1)
	testutil.AssertEqual(t, entries[0].ContextMap()["tokens"], interface{}(int64(7)))

	// The bucket is reset to full after loading.
	st, err := b.Snapshot(context.Background())
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, st.Tokens, 500)
	testutil.AssertEqual(t, st.LastRefill, clock.Now())
}

func TestNewWithConfig_ReviveByKey(t *testing.T) {
	store := seededStore(t)
	key := persistence.NewKey(time.Unix(1718000000, 0))

	b := newBucket(t, Config{
		Limit:        50,
		Interval:     Second,
		IsPersistent: true,
		SnapshotKey:  key,
		Store:        store,
	})
	testutil.AssertEqual(t, tokens(t, b), 50)
}

func TestNewWithConfig_PersistenceFailures(t *testing.T) {
	tests := []struct {
		name   string
		cfg    Config
		target error
	}{
		{
			name:   "no selector",
			cfg:    Config{Store: seededStore(t)},
			target: persistence.ErrNoSelector,
		},
		{
			name:   "unknown key",
			cfg:    Config{Store: seededStore(t), SnapshotKey: "0000000000000000001"},
			target: persistence.ErrSnapshotNotFound,
		},
		{
			name:   "empty store",
			cfg:    Config{Store: persistence.NewMemoryStore(), ReviveFromLatest: true},
			target: persistence.ErrSnapshotNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			cfg.Limit = 10
			cfg.Interval = Second
			cfg.TokensPerInterval = 1
			cfg.IsPersistent = true

			l, err := NewWithConfig(cfg)
			if l != nil {
				t.Fatal("expected nil limiter")
			}
			testutil.AssertErrorIs(t, err, persistence.ErrPersistence)
			testutil.AssertErrorIs(t, err, tt.target)
		})
	}
}

func TestNewWithConfig_ForeignStoreErrorIsWrapped(t *testing.T) {
	_, err := NewWithConfig(Config{
		Limit:            10,
		Interval:         Second,
		IsPersistent:     true,
		ReviveFromLatest: true,
		Store:            &failingStore{},
	})

	testutil.AssertErrorIs(t, err, persistence.ErrPersistence)
	var perr *persistence.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected *persistence.Error, got %T", err)
	}
	testutil.AssertEqual(t, perr.Op, "load")
}

func TestConfig_DefaultStore(t *testing.T) {
	cfg := Config{Limit: 1, Interval: Second, IsPersistent: true}.withDefaults()
	fs, ok := cfg.Store.(*persistence.FileStore)
	if !ok {
		t.Fatalf("default store = %T, want *persistence.FileStore", cfg.Store)
	}
	testutil.AssertEqual(t, fs.Dir(), persistence.DefaultDir)

	cfg = Config{Limit: 1, Interval: Second}.withDefaults()
	if cfg.Store != nil {
		t.Error("a non-persistent bucket should not get a default store")
	}
	testutil.AssertEqual(t, cfg.PersistTimeout, DefaultPersistTimeout)
	testutil.AssertEqual(t, cfg.Name, "default")
}

func TestLimiter_FileStoreRoundTrip(t *testing.T) {
	store := persistence.NewFileStore(t.TempDir())
	first := newBucket(t, Config{Limit: 4, Interval: Second, Store: store})

	err := first.Consume(context.Background(), 5)
	testutil.AssertErrorIs(t, err, ErrInsufficientTokens)
	testutil.AssertNoError(t, first.Close())

	keys, err := store.Keys()
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(keys), 1)

	second := newBucket(t, Config{
		Limit:            4,
		Interval:         Second,
		IsPersistent:     true,
		ReviveFromLatest: true,
		Store:            store,
	})
	testutil.AssertEqual(t, tokens(t, second), 4)
}
