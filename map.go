package tempuskv

import (
	"context"

	"github.com/pkg/errors"
)

/*
map.go implements the named map collection: a content prefix plus a
metadata record (existence, optional expiry, optional element count),
with insert/get/remove/clear/iterate/prefix-iterate and TTL operations.

Insert and Remove fold the entry write, the existence-marker write (on
first insert) and the optional length-counter update into one []Op slice
submitted through a single Tree.Batch, so a crash between them can never
leave a map's metadata, entries and length out of sync with each other.
*/

type mapMeta struct {
	createdAt int64
	expireAt  int64
}

func encodeMapMeta(m mapMeta) []byte {
	return join(putInt64(m.createdAt), putInt64(m.expireAt))
}

func decodeMapMeta(b []byte) (mapMeta, bool) {
	if len(b) < 16 {
		return mapMeta{}, false
	}
	return mapMeta{createdAt: getInt64(b[:8]), expireAt: getInt64(b[8:16])}, true
}

// MapHandle is a cheap, shared reference to a named map: it carries the
// map's name and a back-reference to the owning Db, and owns no storage
// of its own.
type MapHandle struct {
	db   *Db
	name []byte
}

// Map opens (creating if absent) the named map. expireAt, if non-nil, is
// the map's absolute millisecond expiry; pass nil for no expiry.
func (db *Db) Map(name string, expireAt *int64) (*MapHandle, error) {
	h := &MapHandle{db: db, name: []byte(name)}
	meta, ok, err := db.readMapMeta(h.name)
	if err != nil {
		return nil, err
	}
	if !ok {
		m := mapMeta{createdAt: nowMillis()}
		if expireAt != nil {
			m.expireAt = *expireAt
		}
		if err := db.meta.Put(encodeMapMetaKey(h.name), encodeMapMeta(m)); err != nil {
			return nil, err
		}
	}
	db.handles.acquire("map:" + name)
	return h, nil
}

// Close releases this handle's reference in the active-handle registry.
func (m *MapHandle) Close() {
	m.db.handles.release("map:" + string(m.name))
}

func (db *Db) readMapMeta(name []byte) (mapMeta, bool, error) {
	raw, found, err := db.meta.Get(encodeMapMetaKey(name))
	if err != nil {
		return mapMeta{}, false, err
	}
	if !found {
		return mapMeta{}, false, nil
	}
	meta, ok := decodeMapMeta(raw)
	if !ok {
		return mapMeta{}, false, errors.Wrap(ErrCorruption, "map metadata")
	}
	return meta, true, nil
}

// exists reports whether the map is logically present: its metadata
// record exists and has not expired.
func (m *MapHandle) exists() (bool, mapMeta, error) {
	meta, ok, err := m.db.readMapMeta(m.name)
	if err != nil || !ok {
		return false, meta, err
	}
	if isExpired(meta.expireAt, nowMillis()) {
		return false, meta, nil
	}
	return true, meta, nil
}

// MapExists reports whether name is a logically-present map.
func (db *Db) MapExists(name string) (bool, error) {
	ok, _, err := db.readMapMeta([]byte(name))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	meta, _, _ := db.readMapMeta([]byte(name))
	return !isExpired(meta.expireAt, nowMillis()), nil
}

// MapRemove deletes a named map outright (content, length counter and
// metadata), equivalent to opening it and calling Clear plus dropping the
// metadata record.
func (db *Db) MapRemove(name string) error {
	h := &MapHandle{db: db, name: []byte(name)}
	return h.drop()
}

func (m *MapHandle) drop() error {
	if err := m.deleteAllEntries(mapEntryPrefix(m.name)); err != nil {
		return err
	}
	return m.db.meta.Batch([]Op{
		{Key: encodeMapMetaKey(m.name), Del: true},
		{Key: encodeMapLenKey(m.name), Del: true},
	})
}

func (m *MapHandle) deleteAllEntries(prefix []byte) error {
	ctx := context.Background()
	it := m.db.entries.ScanPrefix(ctx, prefix)
	defer it.Close()
	var ops []Op
	for it.Next(ctx) {
		k, _ := it.Item()
		ops = append(ops, Op{Key: join(prefix, k), Del: true})
	}
	if err := it.Err(); err != nil {
		return err
	}
	return m.db.entries.Batch(ops)
}

// readLen returns the map's current length-counter value (0 if unset).
func (m *MapHandle) readLen() (int64, error) {
	raw, found, err := m.db.meta.Get(encodeMapLenKey(m.name))
	if err != nil || !found {
		return 0, err
	}
	return getInt64(raw), nil
}

// Insert stores val under key, creating the map's existence marker on
// first write and bumping the optional length counter, all in one atomic
// batch.
func (m *MapHandle) Insert(key, val []byte) error {
	ok, _, err := m.exists()
	if err != nil {
		return err
	}
	entryKey := join(mapEntryPrefix(m.name), key)
	_, hadEntry, err := m.db.entries.Get(entryKey)
	if err != nil {
		return err
	}

	ops := []Op{{Key: entryKey, Value: val}}
	if !ok {
		meta := mapMeta{createdAt: nowMillis()}
		ops = append(ops, Op{Key: encodeMapMetaKey(m.name), Value: encodeMapMeta(meta)})
	}
	if m.db.cfg.MapLenEnabled && !hadEntry {
		cur, err := m.readLen()
		if err != nil {
			return err
		}
		ops = append(ops, Op{Key: encodeMapLenKey(m.name), Value: putInt64(cur + 1)})
	}
	return m.db.entries.Batch(ops)
}

// Get returns the value for key, or (nil, false) if the map is logically
// absent or does not contain key.
func (m *MapHandle) Get(key []byte) ([]byte, bool, error) {
	ok, _, err := m.exists()
	if err != nil || !ok {
		return nil, false, err
	}
	return m.db.entries.Get(join(mapEntryPrefix(m.name), key))
}

// Contains reports whether key is present (and the map is not logically absent).
func (m *MapHandle) Contains(key []byte) (bool, error) {
	_, ok, err := m.Get(key)
	return ok, err
}

// Remove deletes key if present, decrementing the optional length counter
// in the same atomic batch.
func (m *MapHandle) Remove(key []byte) error {
	entryKey := join(mapEntryPrefix(m.name), key)
	_, found, err := m.db.entries.Get(entryKey)
	if err != nil || !found {
		return err
	}
	ops := []Op{{Key: entryKey, Del: true}}
	if m.db.cfg.MapLenEnabled {
		cur, err := m.readLen()
		if err != nil {
			return err
		}
		next := cur - 1
		if next < 0 {
			next = 0
		}
		ops = append(ops, Op{Key: encodeMapLenKey(m.name), Value: putInt64(next)})
	}
	return m.db.entries.Batch(ops)
}

// RemoveAndFetch deletes key and returns its prior value, if any.
func (m *MapHandle) RemoveAndFetch(key []byte) ([]byte, bool, error) {
	val, found, err := m.Get(key)
	if err != nil || !found {
		return nil, false, err
	}
	return val, true, m.Remove(key)
}

// BatchInsert writes every pair in one atomic batch.
func (m *MapHandle) BatchInsert(pairs [][2][]byte) error {
	if len(pairs) == 0 {
		return nil
	}
	ok, _, err := m.exists()
	if err != nil {
		return err
	}
	ops := make([]Op, 0, len(pairs))
	added := int64(0)
	for _, kv := range pairs {
		entryKey := join(mapEntryPrefix(m.name), kv[0])
		if m.db.cfg.MapLenEnabled {
			_, had, err := m.db.entries.Get(entryKey)
			if err != nil {
				return err
			}
			if !had {
				added++
			}
		}
		ops = append(ops, Op{Key: entryKey, Value: kv[1]})
	}
	if !ok {
		meta := mapMeta{createdAt: nowMillis()}
		ops = append(ops, Op{Key: encodeMapMetaKey(m.name), Value: encodeMapMeta(meta)})
	}
	if m.db.cfg.MapLenEnabled && added != 0 {
		cur, err := m.readLen()
		if err != nil {
			return err
		}
		ops = append(ops, Op{Key: encodeMapLenKey(m.name), Value: putInt64(cur + added)})
	}
	return m.db.entries.Batch(ops)
}

// BatchRemove deletes every key in one atomic batch.
func (m *MapHandle) BatchRemove(keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	ops := make([]Op, 0, len(keys))
	removed := int64(0)
	for _, k := range keys {
		entryKey := join(mapEntryPrefix(m.name), k)
		if m.db.cfg.MapLenEnabled {
			_, had, err := m.db.entries.Get(entryKey)
			if err != nil {
				return err
			}
			if had {
				removed++
			}
		}
		ops = append(ops, Op{Key: entryKey, Del: true})
	}
	if m.db.cfg.MapLenEnabled && removed != 0 {
		cur, err := m.readLen()
		if err != nil {
			return err
		}
		next := cur - removed
		if next < 0 {
			next = 0
		}
		ops = append(ops, Op{Key: encodeMapLenKey(m.name), Value: putInt64(next)})
	}
	return m.db.entries.Batch(ops)
}

// RemoveWithPrefix deletes every entry whose sub-key begins with prefix.
func (m *MapHandle) RemoveWithPrefix(prefix []byte) error {
	return m.deleteAllEntries(join(mapEntryPrefix(m.name), prefix))
}

// Clear removes every entry plus the length counter, keeping the map's
// existence marker (and expiry) intact.
func (m *MapHandle) Clear() error {
	if err := m.deleteAllEntries(mapEntryPrefix(m.name)); err != nil {
		return err
	}
	return m.db.meta.Delete(encodeMapLenKey(m.name))
}

// IsEmpty reports whether the map is logically absent or has no entries.
func (m *MapHandle) IsEmpty() (bool, error) {
	ok, _, err := m.exists()
	if err != nil || !ok {
		return true, err
	}
	ctx := context.Background()
	it := m.db.entries.ScanPrefix(ctx, mapEntryPrefix(m.name))
	defer it.Close()
	return !it.Next(ctx), it.Err()
}

// Len returns the map's element count. ok is false if the optional length
// capability is disabled.
func (m *MapHandle) Len() (n uint64, ok bool, err error) {
	if !m.db.cfg.MapLenEnabled {
		return 0, false, nil
	}
	present, _, err := m.exists()
	if err != nil || !present {
		return 0, true, err
	}
	raw, found, err := m.db.meta.Get(encodeMapLenKey(m.name))
	if err != nil {
		return 0, true, err
	}
	if !found {
		return 0, true, nil
	}
	return uint64(getInt64(raw)), true, nil
}

// Iter streams every (sub-key, value) pair in the map.
func (m *MapHandle) Iter(ctx context.Context) *Iterator {
	return m.PrefixIter(ctx, nil)
}

// KeyIter streams every sub-key in the map (values are still fetched and
// can be ignored by the caller; see Iter for a combined view).
func (m *MapHandle) KeyIter(ctx context.Context) *Iterator {
	return m.Iter(ctx)
}

// PrefixIter streams every (sub-key, value) pair whose sub-key begins
// with prefix; yielded keys are whole sub-keys, prefix included. A
// logically absent map yields nothing.
func (m *MapHandle) PrefixIter(ctx context.Context, prefix []byte) *Iterator {
	entryPrefix := mapEntryPrefix(m.name)
	ok, _, err := m.exists()
	if err != nil || !ok {
		it := newIterator(ctx, m.db.bdb, entryPrefix, entryPrefix)
		it.err = err
		it.done = true
		return it
	}
	it := m.db.entries.ScanPrefix(ctx, join(entryPrefix, prefix))
	it.prefix = m.db.entries.full(entryPrefix)
	return it
}

// ExpireAt sets the map's absolute millisecond expiry, returning whether
// the map existed at call time, even if it had already expired.
func (m *MapHandle) ExpireAt(at int64) (bool, error) {
	meta, ok, err := m.db.readMapMeta(m.name)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	meta.expireAt = at
	return true, m.db.meta.Put(encodeMapMetaKey(m.name), encodeMapMeta(meta))
}

// Expire sets the map's expiry rel from now.
func (m *MapHandle) Expire(rel int64) (bool, error) {
	return m.ExpireAt(expireAtFor(msDuration(rel)))
}

// TTL returns the map's remaining milliseconds to live, or nil if it
// never expires or does not exist.
func (m *MapHandle) TTL() (*int64, error) {
	meta, ok, err := m.db.readMapMeta(m.name)
	if err != nil || !ok {
		return nil, err
	}
	return ttlRemaining(meta.expireAt, nowMillis()), nil
}
