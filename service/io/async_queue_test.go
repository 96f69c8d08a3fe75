package io

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncQueueFIFO(t *testing.T) {
	queue := NewAsyncQueue[string]()

	assert.True(t, queue.Put("a"))
	assert.True(t, queue.Put("b"))
	assert.True(t, queue.Put("c"))
	assert.Equal(t, 3, queue.Pending())
	assert.Equal(t, []string{"a", "b", "c"}, queue.Items())

	ctx := context.Background()
	for _, expected := range []string{"a", "b", "c"} {
		item, err := queue.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, expected, item)
	}
	assert.Equal(t, 0, queue.Pending())
}

func TestAsyncQueueDeduplicates(t *testing.T) {
	queue := NewAsyncQueue[string]()

	assert.True(t, queue.Put("a"))
	assert.False(t, queue.Put("a"))
	assert.Equal(t, 1, queue.Pending())
}

func TestAsyncQueueGetWaitsForPut(t *testing.T) {
	queue := NewAsyncQueue[int]()

	result := make(chan int, 1)
	go func() {
		item, err := queue.Get(context.Background())
		if err == nil {
			result <- item
		}
	}()

	time.Sleep(20 * time.Millisecond)
	queue.Put(42)

	select {
	case item := <-result:
		assert.Equal(t, 42, item)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken up")
	}
	assert.Equal(t, 0, queue.Pending())
}

func TestAsyncQueueFrontKeepsItem(t *testing.T) {
	queue := NewAsyncQueue[string]()
	queue.Put("a")

	item, err := queue.Front(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", item)
	assert.True(t, queue.Has("a"))

	head, ok := queue.TryFront()
	assert.True(t, ok)
	assert.Equal(t, "a", head)
}

func TestAsyncQueueGetCanceled(t *testing.T) {
	queue := NewAsyncQueue[string]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := queue.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAsyncQueueRemove(t *testing.T) {
	queue := NewAsyncQueue[string]()
	queue.Put("a")
	queue.Put("b")
	queue.Put("c")

	assert.True(t, queue.Remove("b"))
	assert.False(t, queue.Remove("b"))
	assert.False(t, queue.Has("b"))
	assert.Equal(t, []string{"a", "c"}, queue.Items())

	// removed items can be queued again, at the tail
	assert.True(t, queue.Put("b"))
	assert.Equal(t, []string{"a", "c", "b"}, queue.Items())
}
