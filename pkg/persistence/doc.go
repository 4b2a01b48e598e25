/*
Package persistence stores point-in-time snapshots of a token bucket.

A bucket controller uses a Store in two places only: once at construction,
to hydrate from a previous snapshot, and on error paths, to record the
bucket state for diagnostics. Nothing on the hot path writes to a Store.

Snapshots are keyed by NewKey, a zero-padded Unix-nanosecond timestamp with a
per-process sequence suffix, so the lexically greatest key is always the most
recent snapshot and two saves never share a key:

	store := persistence.NewFileStore(persistence.DefaultDir)
	_ = store.Save(ctx, persistence.NewKey(time.Now()), persistence.Bucket{Tokens: 400})

	latest, err := store.Load(ctx, persistence.Selector{Latest: true})

Three implementations are provided: FileStore (one JSON file per snapshot),
RedisStore (one string key per snapshot plus a lexically sorted index) and
MemoryStore (process-local, for tests and examples).

Every failure is returned as *Error and matches ErrPersistence with errors.Is.
*/
package persistence
