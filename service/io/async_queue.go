package io

import (
	"container/list"
	"context"
	"sync"
)

// AsyncQueue is a FIFO queue with set semantics: an item already queued is not added twice.
// Consumers park in Get or Front until a producer puts an item.
type AsyncQueue[T comparable] struct {
	items  *list.List
	index  map[T]*list.Element
	waitCh chan struct{} // closed and replaced on every Put
	mutex  sync.Mutex
}

// NewAsyncQueue creates a new AsyncQueue
func NewAsyncQueue[T comparable]() *AsyncQueue[T] {
	return &AsyncQueue[T]{
		items:  list.New(),
		index:  map[T]*list.Element{},
		waitCh: make(chan struct{}),
	}
}

// Put appends the item at the tail and wakes parked consumers.
// Returns false if the item is already queued.
func (queue *AsyncQueue[T]) Put(item T) bool {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	if _, ok := queue.index[item]; ok {
		return false
	}

	queue.index[item] = queue.items.PushBack(item)

	close(queue.waitCh)
	queue.waitCh = make(chan struct{})
	return true
}

// Get pops the head item, waiting until one is available or ctx ends
func (queue *AsyncQueue[T]) Get(ctx context.Context) (T, error) {
	return queue.wait(ctx, true)
}

// Front returns the head item without removing it, waiting until one is available or ctx ends
func (queue *AsyncQueue[T]) Front(ctx context.Context) (T, error) {
	return queue.wait(ctx, false)
}

func (queue *AsyncQueue[T]) wait(ctx context.Context, pop bool) (T, error) {
	for {
		queue.mutex.Lock()
		if head := queue.items.Front(); head != nil {
			item := head.Value.(T)
			if pop {
				queue.items.Remove(head)
				delete(queue.index, item)
			}
			queue.mutex.Unlock()
			return item, nil
		}
		waitCh := queue.waitCh
		queue.mutex.Unlock()

		select {
		case <-waitCh:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// TryFront returns the head item without waiting
func (queue *AsyncQueue[T]) TryFront() (T, bool) {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	if head := queue.items.Front(); head != nil {
		return head.Value.(T), true
	}

	var zero T
	return zero, false
}

// Remove removes the item wherever it is in the queue
func (queue *AsyncQueue[T]) Remove(item T) bool {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	elem, ok := queue.index[item]
	if !ok {
		return false
	}

	queue.items.Remove(elem)
	delete(queue.index, item)
	return true
}

// Has checks if the item is queued
func (queue *AsyncQueue[T]) Has(item T) bool {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	_, ok := queue.index[item]
	return ok
}

// Pending returns the number of queued items
func (queue *AsyncQueue[T]) Pending() int {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	return queue.items.Len()
}

// Items returns queued items in FIFO order
func (queue *AsyncQueue[T]) Items() []T {
	queue.mutex.Lock()
	defer queue.mutex.Unlock()

	items := make([]T, 0, queue.items.Len())
	for elem := queue.items.Front(); elem != nil; elem = elem.Next() {
		items = append(items, elem.Value.(T))
	}
	return items
}
