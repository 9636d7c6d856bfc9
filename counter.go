package tempuskv

import (
	"math"

	"github.com/pkg/errors"
)

/*
counter.go implements the counter service: incr/decr/get/set on a signed
64-bit integer, using compare-and-swap rather than a mutex to stay
lock-free across threads.

OVERFLOW POLICY

This package **saturates** at math.MaxInt64/math.MinInt64 rather than
wrapping or erroring, so a runaway increment loop degrades to a clamped
value instead of silently wrapping to a surprising sign or aborting a
caller that doesn't expect an error from an otherwise lock-free counter.

RETRY BUDGET

100 attempts, chosen to be large enough that foreseeable contention does
not surface ErrConflictRetryExhausted under normal load.
*/

const counterRetryBudget = 100

// CounterService exposes the counter operations over a Tree.
type CounterService struct {
	db *Db
}

// tree returns the Tree the public counter API is stored in.
func (c *CounterService) tree() *Tree {
	return c.db.counters
}

// Get returns the counter's value, or (0, false) if it has never been set.
func (c *CounterService) Get(key []byte) (int64, bool, error) {
	raw, found, err := c.tree().Get(encodeCounterKey(key))
	if err != nil || !found {
		return 0, false, err
	}
	return getInt64(raw), true, nil
}

// Set unconditionally stores val, regardless of the counter's prior state.
func (c *CounterService) Set(key []byte, val int64) error {
	return c.tree().Put(encodeCounterKey(key), putInt64(val))
}

// Incr adds delta to the counter, initializing an absent counter to 0
// first, saturating on overflow, via a bounded compare-and-swap retry loop.
func (c *CounterService) Incr(key []byte, delta int64) error {
	return c.incrRaw(c.tree(), encodeCounterKey(key), delta)
}

// Decr is equivalent to Incr(key, -delta).
func (c *CounterService) Decr(key []byte, delta int64) error {
	return c.Incr(key, -delta)
}

// incrRaw implements the CAS retry loop over an arbitrary Tree and fully
// namespaced key. Incr uses it for the public ctr@ counters; the map_len@
// length counters in map.go are written inside the map's own batches
// instead and do not go through this loop.
func (c *CounterService) incrRaw(tree *Tree, fullKey []byte, delta int64) error {
	for attempt := 0; attempt < counterRetryBudget; attempt++ {
		old, found, err := tree.Get(fullKey)
		if err != nil {
			return err
		}
		var cur int64
		if found {
			cur = getInt64(old)
		}
		next := saturatingAdd(cur, delta)

		var oldBytes []byte
		if found {
			oldBytes = old
		}
		ok, err := tree.CAS(fullKey, oldBytes, putInt64(next))
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return errors.WithStack(ErrConflictRetryExhausted)
}

func saturatingAdd(a, b int64) int64 {
	sum := a + b
	// Overflow occurs iff both operands share the sign of a yet the
	// result's sign differs from it.
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		if b > 0 {
			return math.MaxInt64
		}
		return math.MinInt64
	}
	return sum
}
