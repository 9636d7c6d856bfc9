package tempuskv

import (
	"bytes"
	"context"

	"github.com/dgraph-io/badger/v4"
)

/*
iterator.go implements lazy, cooperative iteration over a key range: each
Next call may suspend at a context cancellation point, checked every N
steps rather than on every single item to keep the check itself cheap.

The Iterator reads through a single read-only Badger transaction, opened
on the first Next call and held until the iterator is exhausted or
closed. It therefore sees the keyspace as of that first Next: keys
written or removed after it are not reflected in the iteration.
*/

const iteratorCancelCheckEvery = 256

// Iterator is a pull-style, cooperative iterator over a key range.
type Iterator struct {
	ctx    context.Context
	db     *badger.DB
	prefix []byte // namespace prefix stripped from every yielded key

	start      []byte // full (namespaced) start key, inclusive
	upperBound []byte // full (namespaced) end key, exclusive; nil = prefix-bounded

	txn    *badger.Txn
	it     *badger.Iterator
	opened bool

	key, val []byte
	err      error
	steps    int
	done     bool
}

func newIterator(ctx context.Context, db *badger.DB, start, prefix []byte) *Iterator {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Iterator{ctx: ctx, db: db, prefix: prefix, start: start}
}

func (it *Iterator) open() {
	if it.opened {
		return
	}
	it.opened = true
	it.txn = it.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	if it.upperBound == nil {
		opts.Prefix = it.start
	}
	it.it = it.txn.NewIterator(opts)
	it.it.Seek(it.start)
}

// Next advances the iterator, returning false when exhausted, the
// context is cancelled, or an error occurred (check Err in that case).
func (it *Iterator) Next(ctx context.Context) bool {
	if it.done {
		return false
	}
	if ctx == nil {
		ctx = it.ctx
	}
	it.open()

	it.steps++
	if it.steps%iteratorCancelCheckEvery == 0 {
		select {
		case <-ctx.Done():
			it.err = ctx.Err()
			it.close()
			return false
		default:
		}
	}

	if !it.it.Valid() {
		it.close()
		return false
	}
	item := it.it.Item()
	fullKey := item.KeyCopy(nil)
	if it.upperBound != nil && bytes.Compare(fullKey, it.upperBound) >= 0 {
		it.close()
		return false
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		it.err = err
		it.close()
		return false
	}
	it.key = fullKey[len(it.prefix):]
	it.val = val
	it.it.Next()
	return true
}

// Item returns the current (namespace-stripped key, value) pair.
func (it *Iterator) Item() ([]byte, []byte) {
	return it.key, it.val
}

// Err returns the first error encountered, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Close releases the underlying transaction. Safe to call multiple times.
func (it *Iterator) Close() {
	it.close()
}

func (it *Iterator) close() {
	it.done = true
	if it.it != nil {
		it.it.Close()
		it.it = nil
	}
	if it.txn != nil {
		it.txn.Discard()
		it.txn = nil
	}
}
