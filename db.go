package tempuskv

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

/*
db.go is the public façade of this package: Db is a single value-typed
handle exposing every flat-KV, map, list, counter and scan operation;
internally it is a thin set of Tree views over one badger.DB (backendKind
records which concrete engine is live, leaving room for a second
implementation without changing any of the types
MapHandle/ListHandle/Iterator expose to callers).

Open applies functional options atop a base Config, then starts the
background reaper, unless the caller supplies their own CleanupHook.
*/

type backendKind int

const (
	backendBadger backendKind = iota
)

// Db is the persistent, embedded store: a single handle from which flat
// KV operations, MapHandle/ListHandle and the counter service
// are reached.
type Db struct {
	kind backendKind
	bdb  *badger.DB

	cfg Config
	log *zap.Logger

	kv       *Tree
	kvttl    *Tree
	counters *Tree
	meta     *Tree
	entries  *Tree

	Counters *CounterService

	cache *hotCache

	handles *handleRegistry

	openedAt time.Time

	stopReaper chan struct{}
	reaperWG   sync.WaitGroup
	closeOnce  sync.Once
}

// Open constructs and returns a configured Db, applying opts atop cfg,
// then invokes the configured CleanupHook (defaulting to StartReaper).
func Open(cfg Config, opts ...Option) (*Db, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	bopts := badger.DefaultOptions(cfg.Path).WithLogger(newBadgerLogger(cfg.Logger))
	if cfg.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	bopts = tuneForMode(bopts, cfg)

	bdb, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "tempuskv: open")
	}

	db := &Db{
		kind:       backendBadger,
		bdb:        bdb,
		cfg:        cfg,
		log:        cfg.Logger,
		kv:         newTree(bdb, nil),
		kvttl:      newTree(bdb, nil),
		counters:   newTree(bdb, nil),
		meta:       newTree(bdb, nil),
		entries:    newTree(bdb, nil),
		handles:    newHandleRegistry(),
		openedAt:   time.Now(),
		stopReaper: make(chan struct{}),
	}
	db.Counters = &CounterService{db: db}
	if cfg.HotCacheEntries > 0 {
		db.cache = newHotCache(cfg.HotCacheEntries)
	}

	hook := cfg.CleanupHook
	if hook == nil {
		hook = func(d *Db) { d.StartReaper() }
	}
	hook(db)

	return db, nil
}

// tuneForMode applies the memory/IO tuning nicktill-tinyobs's badger
// wrapper uses, scaled by Config.CacheCapacity, and selects Badger's
// memtable and compactor counts according to Config.Mode.
func tuneForMode(opts badger.Options, cfg Config) badger.Options {
	memTableSize := cfg.CacheCapacity / 3
	if memTableSize < 16<<20 {
		memTableSize = 16 << 20
	}
	blockCache := memTableSize / 2
	indexCache := memTableSize / 4

	opts = opts.
		WithMemTableSize(memTableSize).
		WithBlockCacheSize(blockCache).
		WithIndexCacheSize(indexCache).
		WithValueLogFileSize(64 << 20)

	switch cfg.Mode {
	case ModeHighThroughput:
		opts = opts.WithNumMemtables(5).WithNumCompactors(4)
	default: // ModeLowSpace
		opts = opts.WithNumMemtables(2).WithNumCompactors(2)
	}
	return opts
}

// Close stops the background reaper and closes the underlying engine.
// Safe to call more than once.
func (db *Db) Close() error {
	var err error
	db.closeOnce.Do(func() {
		close(db.stopReaper)
		db.reaperWG.Wait()
		err = db.bdb.Close()
	})
	return err
}

// --- flat KV ---

// Insert stores val at key in the flat namespace.
func (db *Db) Insert(key, val []byte) error {
	if err := db.kv.Put(encodeKVKey(key), val); err != nil {
		return err
	}
	db.invalidateCache(key)
	return nil
}

// Get returns the value at key, or (nil, false) if absent or expired.
// The key's TTL record is always read from Badger first; a hit in the
// hot-key cache (if enabled) then skips only the read of the value.
func (db *Db) Get(key []byte) ([]byte, bool, error) {
	if expired, err := db.kvExpired(key); err != nil || expired {
		return nil, false, err
	}
	if db.cache != nil {
		if val, found := db.cache.Get(string(key)); found {
			return val, true, nil
		}
	}
	val, found, err := db.kv.Get(encodeKVKey(key))
	if err != nil || !found {
		return val, found, err
	}
	if db.cache != nil {
		db.cache.Set(string(key), val, db.cfg.HotCacheTTL)
	}
	return val, found, nil
}

// Remove deletes key and any TTL record associated with it.
func (db *Db) Remove(key []byte) error {
	if err := db.kv.Delete(encodeKVKey(key)); err != nil {
		return err
	}
	if err := db.kvttl.Delete(encodeKVTTLKey(key)); err != nil {
		return err
	}
	db.invalidateCache(key)
	return nil
}

// ContainsKey reports whether key is present and unexpired.
func (db *Db) ContainsKey(key []byte) (bool, error) {
	_, ok, err := db.Get(key)
	return ok, err
}

// BatchInsert stores every pair atomically.
func (db *Db) BatchInsert(pairs [][2][]byte) error {
	ops := make([]Op, 0, len(pairs))
	for _, kv := range pairs {
		ops = append(ops, Op{Key: encodeKVKey(kv[0]), Value: kv[1]})
	}
	if err := db.kv.Batch(ops); err != nil {
		return err
	}
	for _, kv := range pairs {
		db.invalidateCache(kv[0])
	}
	return nil
}

// BatchRemove deletes every key atomically.
func (db *Db) BatchRemove(keys [][]byte) error {
	ops := make([]Op, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, Op{Key: encodeKVKey(k), Del: true})
	}
	if err := db.kv.Batch(ops); err != nil {
		return err
	}
	for _, k := range keys {
		db.invalidateCache(k)
	}
	return nil
}

func (db *Db) invalidateCache(key []byte) {
	if db.cache != nil {
		db.cache.Delete(string(key))
	}
}

func (db *Db) kvExpired(key []byte) (bool, error) {
	raw, found, err := db.kvttl.Get(encodeKVTTLKey(key))
	if err != nil || !found {
		return false, err
	}
	return isExpired(getInt64(raw), nowMillis()), nil
}

// ExpireAt sets key's absolute millisecond expiry in the flat namespace,
// returning whether key existed at call time.
func (db *Db) ExpireAt(key []byte, at int64) (bool, error) {
	_, found, err := db.kv.Get(encodeKVKey(key))
	if err != nil || !found {
		return false, err
	}
	if err := db.kvttl.Put(encodeKVTTLKey(key), putInt64(at)); err != nil {
		return false, err
	}
	db.invalidateCache(key)
	return true, nil
}

// Expire sets key's expiry rel milliseconds from now.
func (db *Db) Expire(key []byte, relMs int64) (bool, error) {
	return db.ExpireAt(key, expireAtFor(msDuration(relMs)))
}

// TTL returns key's remaining milliseconds to live, or nil if it has no
// expiry set or does not exist.
func (db *Db) TTL(key []byte) (*int64, error) {
	_, found, err := db.kv.Get(encodeKVKey(key))
	if err != nil || !found {
		return nil, err
	}
	raw, found, err := db.kvttl.Get(encodeKVTTLKey(key))
	if err != nil || !found {
		return nil, err
	}
	return ttlRemaining(getInt64(raw), nowMillis()), nil
}

// --- counter convenience wrappers ---

func (db *Db) CounterIncr(key []byte, delta int64) error { return db.Counters.Incr(key, delta) }
func (db *Db) CounterDecr(key []byte, delta int64) error { return db.Counters.Decr(key, delta) }
func (db *Db) CounterGet(key []byte) (int64, bool, error) { return db.Counters.Get(key) }
func (db *Db) CounterSet(key []byte, val int64) error     { return db.Counters.Set(key, val) }

// --- list/map removal at the Db level ---

func (db *Db) ListRemove(name string) error {
	h := &ListHandle{db: db, name: []byte(name)}
	return h.drop()
}

func (db *Db) ListExists(name string) (bool, error) {
	meta, ok, err := db.readListMeta([]byte(name))
	if err != nil || !ok {
		return false, err
	}
	return !isExpired(meta.expireAt, nowMillis()), nil
}

// --- scan ---

// Scan streams every flat-KV user key matching the glob pattern.
func (db *Db) Scan(ctx context.Context, pattern []byte) *ScanIterator {
	return db.newScanIterator(ctx, pattern)
}

// --- collection name iteration ---

// Maps streams every map name currently tracked by metadata (expired
// names included — lazy invalidation applies to entry reads, not to this
// structural listing, matching the reaper's own scan in reaper.go).
func (db *Db) Maps(ctx context.Context) *Iterator {
	return db.meta.ScanPrefix(ctx, mapMetaPrefix())
}

// Lists streams every list name currently tracked by metadata.
func (db *Db) Lists(ctx context.Context) *Iterator {
	return db.meta.ScanPrefix(ctx, listMetaPrefix())
}

// --- info ---

// Info reports engine statistics as a JSON-shaped document: tree count,
// approximate size, cache statistics, uptime and active-handle count.
func (db *Db) Info() map[string]any {
	lsm, vlog := db.bdb.Size()
	info := map[string]any{
		"engine":            "badger",
		"trees":             5,
		"lsm_size_bytes":    lsm,
		"vlog_size_bytes":   vlog,
		"size_bytes":        lsm + vlog,
		"uptime_seconds":    time.Since(db.openedAt).Seconds(),
		"active_handles":    db.handles.count(),
		"mode":              string(db.cfg.Mode),
		"cache_capacity":    db.cfg.CacheCapacity,
		"flush_interval_ms": db.cfg.FlushIntervalMs,
	}
	if db.cache != nil {
		info["hot_cache"] = db.cache.Stats()
	}
	return info
}

// DBSize returns the total on-disk size in bytes (LSM plus value log).
func (db *Db) DBSize() (int64, error) {
	lsm, vlog := db.bdb.Size()
	return lsm + vlog, nil
}

func (db *Db) String() string {
	return fmt.Sprintf("Db(path=%s, mode=%s)", db.cfg.Path, db.cfg.Mode)
}
