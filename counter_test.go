package tempuskv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAlgebra(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.CounterIncr([]byte("k"), 5))
	require.NoError(t, db.CounterIncr([]byte("k"), 7))
	v, ok, err := db.CounterGet([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 12, v)

	require.NoError(t, db.CounterDecr([]byte("k"), 3))
	v, _, _ = db.CounterGet([]byte("k"))
	assert.EqualValues(t, 9, v)

	require.NoError(t, db.CounterSet([]byte("k"), 100))
	v, _, _ = db.CounterGet([]byte("k"))
	assert.EqualValues(t, 100, v)
}

// TestCounterMixedIncrDecrSetSequence exercises a mix of incr, decr (with
// both positive and negative deltas) and an intervening Set, and checks
// that an untouched counter key still reads as absent.
func TestCounterMixedIncrDecrSetSequence(t *testing.T) {
	db := newTestDB(t)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, db.Remove([]byte(k)))
	}

	require.NoError(t, db.CounterIncr([]byte("a"), 3))
	require.NoError(t, db.CounterIncr([]byte("b"), -3))
	require.NoError(t, db.CounterIncr([]byte("c"), 10))
	require.NoError(t, db.CounterDecr([]byte("c"), 2))
	require.NoError(t, db.CounterDecr([]byte("c"), -3))
	require.NoError(t, db.CounterSet([]byte("c"), 100))
	require.NoError(t, db.CounterIncr([]byte("c"), 10))

	a, _, _ := db.CounterGet([]byte("a"))
	b, _, _ := db.CounterGet([]byte("b"))
	c, _, _ := db.CounterGet([]byte("c"))
	_, dOK, _ := db.CounterGet([]byte("d"))

	assert.EqualValues(t, 3, a)
	assert.EqualValues(t, -3, b)
	assert.EqualValues(t, 110, c)
	assert.False(t, dOK)
}

func TestCounterAbsentInitializesToZero(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CounterIncr([]byte("new"), 5))
	v, ok, err := db.CounterGet([]byte("new"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 5, v)
}

func TestCounterOverflowSaturates(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.CounterSet([]byte("k"), math.MaxInt64-1))
	require.NoError(t, db.CounterIncr([]byte("k"), 100))
	v, _, _ := db.CounterGet([]byte("k"))
	assert.EqualValues(t, int64(math.MaxInt64), v)

	require.NoError(t, db.CounterSet([]byte("k2"), math.MinInt64+1))
	require.NoError(t, db.CounterDecr([]byte("k2"), 100))
	v2, _, _ := db.CounterGet([]byte("k2"))
	assert.EqualValues(t, int64(math.MinInt64), v2)
}

func TestSaturatingAdd(t *testing.T) {
	assert.EqualValues(t, 7, saturatingAdd(3, 4))
	assert.EqualValues(t, math.MaxInt64, saturatingAdd(math.MaxInt64, 1))
	assert.EqualValues(t, math.MinInt64, saturatingAdd(math.MinInt64, -1))
}

func BenchmarkCounterIncr(b *testing.B) {
	db, err := Open(Config{InMemory: true}, WithCleanupHook(func(*Db) {}))
	if err != nil {
		b.Fatalf("open: %v", err)
	}
	defer db.Close()

	key := []byte("bench")
	for i := 0; i < b.N; i++ {
		_ = db.CounterIncr(key, 1)
	}
}
