package tempuskv

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsExpired(t *testing.T) {
	now := int64(1_000_000)
	assert.False(t, isExpired(0, now), "0 means no expiry")
	assert.False(t, isExpired(now+1, now))
	assert.True(t, isExpired(now, now))
	assert.True(t, isExpired(now-1, now))
}

func TestTTLRemaining(t *testing.T) {
	now := int64(1_000_000)
	assert.Nil(t, ttlRemaining(0, now))
	remaining := ttlRemaining(now+500, now)
	require.NotNil(t, remaining)
	assert.EqualValues(t, 500, *remaining)
}

// TestKVExpiresAndBecomesInvisibleAfterTTLElapses checks that a flat-KV
// entry with a relative TTL stays readable until the TTL elapses, then
// reads as absent via lazy invalidation alone.
func TestKVExpiresAndBecomesInvisibleAfterTTLElapses(t *testing.T) {
	db := newTestDB(t)

	require.NoError(t, db.Insert([]byte("k"), []byte("v")))
	ok, err := db.Expire([]byte("k"), 150)
	require.NoError(t, err)
	require.True(t, ok)

	v, found, err := db.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("v"), v)

	waitPastMillis(170)

	_, found, err = db.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, found, "key must be lazily invisible once its TTL has elapsed")
}

func TestListTTLExpiresWithoutReaper(t *testing.T) {
	db := newTestDB(t)
	l, err := db.List("ephemeral", nil)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Push([]byte("x")))
	ok, err := l.Expire(50)
	require.NoError(t, err)
	require.True(t, ok)

	waitPastMillis(70)

	n, err := l.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "an expired list reads as logically empty even before the reaper runs")
}

func TestExpireReturnsWhetherKeyExisted(t *testing.T) {
	db := newTestDB(t)

	ok, err := db.Expire([]byte("absent"), 1000)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, db.Insert([]byte("present"), []byte("v")))
	ok, err = db.Expire([]byte("present"), 1000)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReaperReclaimsExpiredMap(t *testing.T) {
	db := newTestDB(t)

	expireAt := nowMillis() + 20
	m, err := db.Map("doomed", &expireAt)
	require.NoError(t, err)
	require.NoError(t, m.Insert([]byte("a"), []byte("1")))
	m.Close()

	waitPastMillis(40)

	reaped, err := db.sweepOnce(context.Background(), 200)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reaped, 1)

	ok, err := db.MapExists("doomed")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestReaperBoundedPerTick checks that a single sweepOnce call never
// reaps more than the given limit, even when more records are expired.
func TestReaperBoundedPerTick(t *testing.T) {
	db := newTestDB(t)

	const total = 10
	const limit = 4
	expireAt := nowMillis() + 10
	for i := 0; i < total; i++ {
		m, err := db.Map(fmt.Sprintf("m_%d", i), &expireAt)
		require.NoError(t, err)
		m.Close()
	}

	waitPastMillis(30)

	reaped, err := db.sweepOnce(context.Background(), limit)
	require.NoError(t, err)
	assert.LessOrEqual(t, reaped, limit)
}
