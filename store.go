package tempuskv

import (
	"bytes"
	"context"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

/*
store.go is a thin ordered-store adapter over the underlying engine
(BadgerDB), exposing get/put/remove/cas, prefix iteration, range iteration
and atomic batches.

Everything above this file talks to a Tree, never to *badger.DB directly,
so the underlying engine could be swapped without touching the key codec,
the map/list/counter logic, or the TTL manager.

TREES

Badger has a single flat keyspace, not a named-tree primitive. A Tree
here is a namespace-scoped *view* over one shared *badger.DB: opening the
same name twice yields two equally-valid, equally-cheap Tree values that
address the same logical namespace, so callers can open one wherever it's
convenient rather than threading a shared value through.
*/

// Op is one write in an atomic Batch: a Delete when Del is true,
// otherwise a Put of Value.
type Op struct {
	Key   []byte
	Value []byte
	Del   bool
}

// Tree is a namespace-scoped view over the shared engine handle.
type Tree struct {
	db     *badger.DB
	prefix []byte
}

func newTree(db *badger.DB, prefix []byte) *Tree {
	return &Tree{db: db, prefix: prefix}
}

func (t *Tree) full(key []byte) []byte {
	return join(t.prefix, key)
}

// Get returns the value for key, or (nil, false) if absent.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	var val []byte
	found := false
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(t.full(key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		val, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "tempuskv: get")
	}
	return val, found, nil
}

// Put unconditionally stores value at key.
func (t *Tree) Put(key, value []byte) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Set(t.full(key), value)
	})
	return errors.Wrap(err, "tempuskv: put")
}

// Delete removes key if present; absent keys are a no-op.
func (t *Tree) Delete(key []byte) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(t.full(key))
	})
	return errors.Wrap(err, "tempuskv: delete")
}

var errCASMismatch = errors.New("tempuskv: cas mismatch")

// CAS atomically replaces old with new at key, succeeding only if the
// current value equals old (old == nil means "key must be absent"). It
// makes exactly one attempt; retry policy belongs to callers (the
// counter service retries a bounded number of times on both a mismatch
// and badger.ErrConflict).
func (t *Tree) CAS(key, old, new []byte) (bool, error) {
	fullKey := t.full(key)
	err := t.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(fullKey)
		var cur []byte
		switch {
		case err == badger.ErrKeyNotFound:
			cur = nil
		case err != nil:
			return err
		default:
			cur, err = item.ValueCopy(nil)
			if err != nil {
				return err
			}
		}
		if !bytes.Equal(cur, old) {
			return errCASMismatch
		}
		if new == nil {
			return txn.Delete(fullKey)
		}
		return txn.Set(fullKey, new)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errCASMismatch):
		return false, nil
	case errors.Is(err, badger.ErrConflict):
		return false, nil
	default:
		return false, errors.Wrap(err, "tempuskv: cas")
	}
}

// Batch applies every op atomically: either all commit or none do.
func (t *Tree) Batch(ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	err := t.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			fullKey := t.full(op.Key)
			if op.Del {
				if err := txn.Delete(fullKey); err != nil {
					return err
				}
				continue
			}
			if err := txn.Set(fullKey, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrap(err, "tempuskv: batch")
}

// ScanPrefix streams every (key, value) pair whose key, stripped of the
// tree's own namespace prefix, begins with subPrefix. Keys yielded by the
// returned Iterator are relative to subPrefix itself, not merely to the
// tree's (usually empty) prefix, so callers built on a fully-namespaced
// subPrefix (a map or list's own key prefix) get back bare sub-keys.
func (t *Tree) ScanPrefix(ctx context.Context, subPrefix []byte) *Iterator {
	full := t.full(subPrefix)
	return newIterator(ctx, t.db, full, full)
}

// Range streams every (key, value) pair in [start, end) of the tree's own
// sub-keyspace (end exclusive), keys stripped of the tree's prefix.
func (t *Tree) Range(ctx context.Context, start, end []byte) *Iterator {
	it := newIterator(ctx, t.db, t.full(start), t.prefix)
	it.upperBound = t.full(end)
	return it
}
