package tempuskv

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

/*
list.go implements the named list collection: an append-mostly ordered
sequence stored as entries keyed by a monotonically increasing index,
with push/pop-front/index/limit/iterate operations under a per-list lock.

Reads never take the per-list lock and tolerate transient inconsistency
between metadata and entries. Push, Pushs, PushLimit, Pop and Clear go
through handleRegistry.lockFor, so they are serialized with each other on
the same name; ExpireAt and drop (used by Db.ListRemove and the reaper)
do not take the lock.
*/

type listMeta struct {
	head     uint64
	tail     uint64
	expireAt int64
}

func encodeListMeta(m listMeta) []byte {
	return join(putUint64(m.head), putUint64(m.tail), putInt64(m.expireAt))
}

func decodeListMeta(b []byte) (listMeta, bool) {
	if len(b) < 24 {
		return listMeta{}, false
	}
	return listMeta{
		head:     getUint64(b[:8]),
		tail:     getUint64(b[8:16]),
		expireAt: getInt64(b[16:24]),
	}, true
}

// ListHandle is a cheap, shared reference to a named list.
type ListHandle struct {
	db   *Db
	name []byte
}

// List opens (creating if absent) the named list. expireAt, if non-nil,
// is the list's absolute millisecond expiry.
func (db *Db) List(name string, expireAt *int64) (*ListHandle, error) {
	h := &ListHandle{db: db, name: []byte(name)}
	meta, ok, err := db.readListMeta(h.name)
	if err != nil {
		return nil, err
	}
	if !ok {
		meta = listMeta{}
		if expireAt != nil {
			meta.expireAt = *expireAt
		}
		if err := db.meta.Put(encodeListMetaKey(h.name), encodeListMeta(meta)); err != nil {
			return nil, err
		}
	}
	db.handles.acquire("list:" + name)
	return h, nil
}

// Close releases this handle's reference in the active-handle registry.
func (l *ListHandle) Close() {
	l.db.handles.release("list:" + string(l.name))
}

func (db *Db) readListMeta(name []byte) (listMeta, bool, error) {
	raw, found, err := db.meta.Get(encodeListMetaKey(name))
	if err != nil {
		return listMeta{}, false, err
	}
	if !found {
		return listMeta{}, false, nil
	}
	meta, ok := decodeListMeta(raw)
	if !ok {
		return listMeta{}, false, errors.Wrap(ErrCorruption, "list metadata")
	}
	if meta.tail < meta.head {
		return listMeta{}, false, errors.Wrap(ErrCorruption, "list metadata: tail < head")
	}
	return meta, true, nil
}

func (l *ListHandle) exists() (bool, listMeta, error) {
	meta, ok, err := l.db.readListMeta(l.name)
	if err != nil || !ok {
		return false, meta, err
	}
	if isExpired(meta.expireAt, nowMillis()) {
		return false, meta, nil
	}
	return true, meta, nil
}

func (l *ListHandle) lock() *sync.Mutex {
	return l.db.handles.lockFor("list:" + string(l.name))
}

func (l *ListHandle) drop() error {
	if err := l.deleteAllEntries(); err != nil {
		return err
	}
	return l.db.meta.Delete(encodeListMetaKey(l.name))
}

func (l *ListHandle) deleteAllEntries() error {
	ctx := context.Background()
	prefix := listEntryPrefix(l.name)
	it := l.db.entries.ScanPrefix(ctx, prefix)
	defer it.Close()
	var ops []Op
	for it.Next(ctx) {
		k, _ := it.Item()
		ops = append(ops, Op{Key: join(prefix, k), Del: true})
	}
	if err := it.Err(); err != nil {
		return err
	}
	return l.db.entries.Batch(ops)
}

// Push appends val at the tail, writing the entry and advancing tail in
// one atomic batch.
func (l *ListHandle) Push(val []byte) error {
	return l.Pushs([][]byte{val})
}

// Pushs appends every value in vs, advancing tail by len(vs) in one
// atomic batch.
func (l *ListHandle) Pushs(vs [][]byte) error {
	if len(vs) == 0 {
		return nil
	}
	mu := l.lock()
	mu.Lock()
	defer mu.Unlock()

	meta, ok, err := l.exists()
	if err != nil {
		return err
	}
	if !ok {
		meta = listMeta{}
	}

	ops := make([]Op, 0, len(vs)+1)
	idx := meta.tail
	for _, v := range vs {
		ops = append(ops, Op{Key: encodeListEntryKey(l.name, idx), Value: v})
		idx++
	}
	meta.tail = idx
	ops = append(ops, Op{Key: encodeListMetaKey(l.name), Value: encodeListMeta(meta)})
	return l.db.entries.Batch(ops)
}

// PushLimit pushes val. If the list is at or above limit and
// popFrontIfLimited is true, the front element is popped in the same
// batch and returned; otherwise nil is returned. If the list is at or
// above limit and popFrontIfLimited is false, nothing is written and val
// is returned unchanged.
func (l *ListHandle) PushLimit(val []byte, limit uint64, popFrontIfLimited bool) ([]byte, error) {
	mu := l.lock()
	mu.Lock()
	defer mu.Unlock()

	meta, ok, err := l.exists()
	if err != nil {
		return nil, err
	}
	if !ok {
		meta = listMeta{}
	}
	length := meta.tail - meta.head

	if length >= limit {
		if !popFrontIfLimited {
			return val, nil
		}
		var popped []byte
		var poppedOK bool
		if length > 0 {
			popped, poppedOK, err = l.readEntry(meta.head)
			if err != nil {
				return nil, err
			}
		}
		ops := []Op{}
		if poppedOK {
			ops = append(ops, Op{Key: encodeListEntryKey(l.name, meta.head), Del: true})
			meta.head++
		}
		ops = append(ops, Op{Key: encodeListEntryKey(l.name, meta.tail), Value: val})
		meta.tail++
		ops = append(ops, Op{Key: encodeListMetaKey(l.name), Value: encodeListMeta(meta)})
		if err := l.db.entries.Batch(ops); err != nil {
			return nil, err
		}
		if poppedOK {
			return popped, nil
		}
		return nil, nil
	}

	ops := []Op{
		{Key: encodeListEntryKey(l.name, meta.tail), Value: val},
	}
	meta.tail++
	ops = append(ops, Op{Key: encodeListMetaKey(l.name), Value: encodeListMeta(meta)})
	return nil, l.db.entries.Batch(ops)
}

func (l *ListHandle) readEntry(idx uint64) ([]byte, bool, error) {
	return l.db.entries.Get(encodeListEntryKey(l.name, idx))
}

// Pop removes and returns the front element, or (nil, false) if the list
// is empty, leaving head/tail unchanged.
func (l *ListHandle) Pop() ([]byte, bool, error) {
	mu := l.lock()
	mu.Lock()
	defer mu.Unlock()

	meta, ok, err := l.exists()
	if err != nil || !ok || meta.head >= meta.tail {
		return nil, false, err
	}
	val, found, err := l.readEntry(meta.head)
	if err != nil {
		return nil, false, err
	}
	if !found {
		// Metadata says an entry should exist but it is missing;
		// advance past the gap rather than getting stuck.
		meta.head++
		return nil, false, l.db.meta.Put(encodeListMetaKey(l.name), encodeListMeta(meta))
	}
	meta.head++
	ops := []Op{
		{Key: encodeListEntryKey(l.name, meta.head-1), Del: true},
		{Key: encodeListMetaKey(l.name), Value: encodeListMeta(meta)},
	}
	if err := l.db.entries.Batch(ops); err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// GetIndex returns the element at logical offset i from the head,
// without taking the per-list lock.
func (l *ListHandle) GetIndex(i uint64) ([]byte, bool, error) {
	ok, meta, err := l.exists()
	if err != nil || !ok {
		return nil, false, err
	}
	idx := meta.head + i
	if idx >= meta.tail {
		return nil, false, nil
	}
	return l.readEntry(idx)
}

// Len returns tail - head.
func (l *ListHandle) Len() (uint64, error) {
	ok, meta, err := l.exists()
	if err != nil || !ok {
		return 0, err
	}
	return meta.tail - meta.head, nil
}

// IsEmpty reports whether the list is logically absent or has no entries.
func (l *ListHandle) IsEmpty() (bool, error) {
	n, err := l.Len()
	return n == 0, err
}

// All decodes and returns every element in push order.
func (l *ListHandle) All(ctx context.Context) ([][]byte, error) {
	it := l.Iter(ctx)
	defer it.Close()
	var out [][]byte
	for it.Next(ctx) {
		_, v := it.Item()
		out = append(out, v)
	}
	return out, it.Err()
}

// Iter streams every element in the list's [head, tail) range, in order.
func (l *ListHandle) Iter(ctx context.Context) *Iterator {
	ok, meta, err := l.exists()
	if err != nil || !ok {
		it := newIterator(ctx, l.db.bdb, listEntryPrefix(l.name), listEntryPrefix(l.name))
		it.err = err
		it.done = true
		return it
	}
	return l.db.entries.Range(ctx, encodeListEntryKey(l.name, meta.head), encodeListEntryKey(l.name, meta.tail))
}

// Clear removes every entry and resets head/tail to zero, keeping the
// list's existence marker (and expiry) intact.
func (l *ListHandle) Clear() error {
	mu := l.lock()
	mu.Lock()
	defer mu.Unlock()

	if err := l.deleteAllEntries(); err != nil {
		return err
	}
	existing, ok, err := l.db.readListMeta(l.name)
	if err != nil {
		return err
	}
	meta := listMeta{}
	if ok {
		meta.expireAt = existing.expireAt
	}
	return l.db.meta.Put(encodeListMetaKey(l.name), encodeListMeta(meta))
}

// ExpireAt sets the list's absolute millisecond expiry, returning whether
// the list existed at call time.
func (l *ListHandle) ExpireAt(at int64) (bool, error) {
	meta, ok, err := l.db.readListMeta(l.name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	meta.expireAt = at
	return true, l.db.meta.Put(encodeListMetaKey(l.name), encodeListMeta(meta))
}

// Expire sets the list's expiry rel milliseconds from now.
func (l *ListHandle) Expire(relMs int64) (bool, error) {
	return l.ExpireAt(expireAtFor(msDuration(relMs)))
}

// TTL returns the list's remaining milliseconds to live, or nil if it
// never expires or does not exist.
func (l *ListHandle) TTL() (*int64, error) {
	meta, ok, err := l.db.readListMeta(l.name)
	if err != nil || !ok {
		return nil, err
	}
	return ttlRemaining(meta.expireAt, nowMillis()), nil
}
