package syncttlmap

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapSave(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	ttl := 50 * time.Millisecond

	mMap := New[string](ttl).WithClock(clock)
	assert.Equal(t, ttl, mMap.TTL)

	_, ok := mMap.Load("notExistingKey")
	assert.False(t, ok)

	mMap.Store("hello", "world")
	val, ok := mMap.Load("hello")
	assert.True(t, ok)
	assert.Equal(t, "world", val)
	assert.Equal(t, 1, mMap.Len())

	now = now.Add(200 * time.Millisecond)
	_, ok = mMap.Load("hello")
	assert.False(t, ok)
	assert.Equal(t, 0, mMap.Len())
	assert.Equal(t, 1, mMap.Purge())
	assert.Equal(t, 0, mMap.Purge())
}

func TestMapNoTTL(t *testing.T) {
	mMap := New[int](0)
	mMap.Store("a", 1)
	mMap.Delete("a")
	_, ok := mMap.Load("a")
	assert.False(t, ok)
	mMap.Delete("missing")
}

func TestMapUpdate(t *testing.T) {
	mMap := New[int](time.Minute)

	require.NoError(t, mMap.Update("k", func(old int, ok bool) (int, bool, error) {
		assert.False(t, ok)
		return 10, true, nil
	}))

	boom := errors.New("boom")
	err := mMap.Update("k", func(old int, ok bool) (int, bool, error) {
		assert.True(t, ok)
		assert.Equal(t, 10, old)
		return 0, false, boom
	})
	assert.ErrorIs(t, err, boom)
	val, ok := mMap.Load("k")
	assert.True(t, ok)
	assert.Equal(t, 10, val)

	err = mMap.Update("absent", func(int, bool) (int, bool, error) { return 0, false, boom })
	assert.ErrorIs(t, err, boom)
	_, ok = mMap.Load("absent")
	assert.False(t, ok)

	require.NoError(t, mMap.Update("k", func(int, bool) (int, bool, error) { return 0, false, nil }))
	_, ok = mMap.Load("k")
	assert.False(t, ok)
}

func TestMapConcurrentUpdates(t *testing.T) {
	const workers = 50
	const increments = 100
	mMap := New[int](time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < increments; j++ {
				_ = mMap.Update("counter", func(old int, _ bool) (int, bool, error) {
					return old + 1, true, nil
				})
				if j%10 == 0 {
					mMap.Range(func(string, int) bool { return true })
				}
			}
		}()
	}
	wg.Wait()

	val, ok := mMap.Load("counter")
	require.True(t, ok)
	assert.Equal(t, workers*increments, val)
}

func TestMapRange(t *testing.T) {
	mMap := New[string](0)
	mMap.Store("a", "1")
	mMap.Store("b", "2")
	got := map[string]string{}
	mMap.Range(func(k, v string) bool {
		got[k] = v
		return true
	})
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
}
