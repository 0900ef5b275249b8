package queue_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsworker/jsworker/internal/queue"
)

func TestFIFOOrdering(t *testing.T) {
	q := queue.New(0)
	for i := 0; i < 5; i++ {
		require.Equal(t, queue.OK, q.Enqueue(i))
	}
	for i := 0; i < 5; i++ {
		item, ok := q.Dequeue()
		require.True(t, ok)
		assert.Equal(t, i, item)
	}
}

func TestDequeueEmptyTimesOut(t *testing.T) {
	q := queue.New(0).WithWaits(0, 10*time.Millisecond)
	start := time.Now()
	item, ok := q.Dequeue()
	assert.False(t, ok)
	assert.Nil(t, item)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestEnqueueFullTimesOut(t *testing.T) {
	q := queue.New(1).WithWaits(20*time.Millisecond, 0)
	require.Equal(t, queue.OK, q.Enqueue("a"))

	start := time.Now()
	outcome := q.Enqueue("b")
	assert.Equal(t, queue.Full, outcome)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestEnqueueUnblocksOnDequeue(t *testing.T) {
	q := queue.New(1).WithWaits(200*time.Millisecond, 0)
	require.Equal(t, queue.OK, q.Enqueue("a"))

	var wg sync.WaitGroup
	wg.Add(1)
	var outcome queue.Outcome
	go func() {
		defer wg.Done()
		outcome = q.Enqueue("b")
	}()

	time.Sleep(5 * time.Millisecond)
	item, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", item)

	wg.Wait()
	assert.Equal(t, queue.OK, outcome)
}

func TestTryStealOneLeavesOneBehind(t *testing.T) {
	q := queue.New(0)
	require.Equal(t, queue.OK, q.Enqueue(1))

	_, ok := q.TryStealOne()
	assert.False(t, ok, "must not steal the last item")

	require.Equal(t, queue.OK, q.Enqueue(2))
	item, ok := q.TryStealOne()
	assert.True(t, ok)
	assert.Equal(t, 1, item)
	assert.Equal(t, 1, q.Len())
}

func TestCloseDrainsAndReleases(t *testing.T) {
	q := queue.New(0)
	require.Equal(t, queue.OK, q.Enqueue("a"))
	require.Equal(t, queue.OK, q.Enqueue("b"))

	var released []queue.Item
	q.Close(func(item queue.Item) {
		released = append(released, item)
	})

	assert.Equal(t, []queue.Item{"a", "b"}, released)
	assert.Equal(t, queue.ClosedOutcome, q.Enqueue("c"))
	_, ok := q.Dequeue()
	assert.False(t, ok)
}
