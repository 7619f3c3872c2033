package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/distill/pkg/queue"
)

func TestPutGet(t *testing.T) {
	q := queue.New[int](4)

	assert.True(t, q.Put(42, 10*time.Millisecond))
	val, ok, stop := q.Get(10 * time.Millisecond)
	assert.True(t, ok)
	assert.False(t, stop)
	assert.Equal(t, 42, val)
}

func TestPutTimesOutWhenFull(t *testing.T) {
	q := queue.New[string](1)
	require.True(t, q.Put("first", 10*time.Millisecond))

	start := time.Now()
	assert.False(t, q.Put("second", 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestGetTimesOutWhenEmpty(t *testing.T) {
	q := queue.New[int](1)

	_, ok, stop := q.Get(10 * time.Millisecond)
	assert.False(t, ok)
	assert.False(t, stop)
}

func TestFIFOOrder(t *testing.T) {
	q := queue.New[int](8)
	for i := 0; i < 5; i++ {
		require.True(t, q.Put(i, time.Millisecond))
	}
	for i := 0; i < 5; i++ {
		val, ok, _ := q.Get(time.Millisecond)
		require.True(t, ok)
		assert.Equal(t, i, val)
	}
}

func TestStopSentinelDistinguishable(t *testing.T) {
	q := queue.New[int](4)
	require.True(t, q.Put(0, time.Millisecond))
	require.True(t, q.PutStop(time.Millisecond))

	val, ok, stop := q.Get(time.Millisecond)
	require.True(t, ok)
	assert.False(t, stop)
	assert.Equal(t, 0, val)

	_, ok, stop = q.Get(time.Millisecond)
	assert.False(t, ok)
	assert.True(t, stop)
}

func TestMultipleSentinelsForConcurrentConsumers(t *testing.T) {
	q := queue.New[int](8)
	for i := 0; i < 3; i++ {
		require.True(t, q.PutStop(time.Millisecond))
	}

	done := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		go func() {
			_, _, stop := q.Get(100 * time.Millisecond)
			done <- stop
		}()
	}
	for i := 0; i < 3; i++ {
		assert.True(t, <-done)
	}
}

func TestLenAndCap(t *testing.T) {
	q := queue.New[int](4)
	assert.Equal(t, 4, q.Cap())
	assert.Equal(t, 0, q.Len())
	q.Put(1, time.Millisecond)
	assert.Equal(t, 1, q.Len())
}
