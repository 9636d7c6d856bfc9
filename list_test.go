package tempuskv

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFIFO(t *testing.T) {
	db := newTestDB(t)
	l, err := db.List("queue", nil)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Push([]byte{byte(i)}))
	}

	for i := 0; i < 5; i++ {
		v, ok, err := l.Pop()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte{byte(i)}, v)
	}

	_, ok, err := l.Pop()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListLengthIdentity(t *testing.T) {
	db := newTestDB(t)
	l, err := db.List("queue", nil)
	require.NoError(t, err)
	defer l.Close()

	pushes, pops := 0, 0
	for i := 0; i < 30; i++ {
		require.NoError(t, l.Push([]byte{byte(i)}))
		pushes++
		if i%3 == 0 {
			_, _, err := l.Pop()
			require.NoError(t, err)
			pops++
		}
	}

	n, err := l.Len()
	require.NoError(t, err)
	assert.EqualValues(t, pushes-pops, n)
}

// TestListPushLimitEvictsOldestWhenFull checks that PushLimit drops the
// oldest element once the list reaches its bound, keeping only the most
// recent limit elements in order.
func TestListPushLimitEvictsOldestWhenFull(t *testing.T) {
	db := newTestDB(t)
	l, err := db.List("limited", nil)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 20; i++ {
		_, err := l.PushLimit([]byte{byte(i)}, 5, true)
		require.NoError(t, err)
	}

	n, err := l.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	ctx := context.Background()
	all, err := l.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, v := range all {
		assert.Equal(t, []byte{byte(15 + i)}, v)
	}
}

func TestListClearResetsHeadTail(t *testing.T) {
	db := newTestDB(t)
	l, err := db.List("q", nil)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Push([]byte{byte(i)}))
	}
	require.NoError(t, l.Clear())

	n, err := l.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	require.NoError(t, l.Push([]byte("fresh")))
	v, ok, err := l.GetIndex(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("fresh"), v)
}

func TestListGetIndex(t *testing.T) {
	db := newTestDB(t)
	l, err := db.List("q", nil)
	require.NoError(t, err)
	defer l.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Push([]byte(fmt.Sprintf("v%d", i))))
	}

	v, ok, err := l.GetIndex(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	_, ok, err = l.GetIndex(10)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestListConcurrentPushPop stress-tests the per-list lock under
// concurrent pushers followed by sequential drain.
func TestListConcurrentPushPop(t *testing.T) {
	db := newTestDB(t)
	l, err := db.List("stress", nil)
	require.NoError(t, err)
	defer l.Close()

	var wg sync.WaitGroup
	const n = 100
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = l.Push([]byte{byte(i)})
		}(i)
	}
	wg.Wait()

	length, err := l.Len()
	require.NoError(t, err)
	assert.EqualValues(t, n, length)

	popped := 0
	for {
		_, ok, err := l.Pop()
		require.NoError(t, err)
		if !ok {
			break
		}
		popped++
	}
	assert.Equal(t, n, popped)
}

func TestListIsolationFromMap(t *testing.T) {
	db := newTestDB(t)
	l, err := db.List("shared-name", nil)
	require.NoError(t, err)
	defer l.Close()
	m, err := db.Map("shared-name", nil)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, l.Push([]byte("x")))
	require.NoError(t, m.Insert([]byte("x"), []byte("y")))

	n, err := l.Len()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, ok, err := m.Get([]byte("x"))
	require.NoError(t, err)
	assert.True(t, ok)
}
