package io

import (
	"context"
	"math"

	"github.com/hashicorp/golang-lru/simplelru"
)

// SizeFunc computes the size of a value in caller-defined units (e.g., KiB)
type SizeFunc[V any] func(value V) float64

// EvictFunc is called when the cache drops a value on its own, by eviction, overwrite or purge.
// Values removed through Remove are handed back to the caller instead.
type EvictFunc[K comparable, V any] func(key K, value V)

type lruEntry[V any] struct {
	value V
	size  float64
}

// LRUCache is a size-bounded LRU cache.
// The budget is expressed in the units returned by sizeOf, not in number of entries.
type LRUCache[K comparable, V any] struct {
	maxSize  float64
	sizeOf   SizeFunc[V]
	onEvict  EvictFunc[K, V]
	lru      *simplelru.LRU
	size     float64
	removing bool
	lock     chan struct{} // 1-slot semaphore, lets GetAsync give up on context end
}

// NewLRUCache creates a new LRUCache holding at most maxSize units
func NewLRUCache[K comparable, V any](maxSize float64, sizeOf SizeFunc[V], onEvict EvictFunc[K, V]) (*LRUCache[K, V], error) {
	cache := &LRUCache[K, V]{
		maxSize: maxSize,
		sizeOf:  sizeOf,
		onEvict: onEvict,
		lock:    make(chan struct{}, 1),
	}

	// entry count is unbounded, size budget is enforced on top
	lru, err := simplelru.NewLRU(int(^uint(0)>>1), cache.onRemoved)
	if err != nil {
		return nil, err
	}

	cache.lru = lru
	return cache, nil
}

func (cache *LRUCache[K, V]) acquire() {
	cache.lock <- struct{}{}
}

func (cache *LRUCache[K, V]) acquireContext(ctx context.Context) error {
	select {
	case cache.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cache *LRUCache[K, V]) release() {
	<-cache.lock
}

// onRemoved is called by simplelru with the lock held
func (cache *LRUCache[K, V]) onRemoved(key interface{}, value interface{}) {
	entry, ok := value.(*lruEntry[V])
	if !ok {
		return
	}

	cache.size -= entry.size
	if cache.size < 0 {
		cache.size = 0
	}

	if !cache.removing && cache.onEvict != nil {
		cache.onEvict(key.(K), entry.value)
	}
}

// MaxSize returns the size budget
func (cache *LRUCache[K, V]) MaxSize() float64 {
	return cache.maxSize
}

// Size returns the sum of sizes of all entries
func (cache *LRUCache[K, V]) Size() float64 {
	cache.acquire()
	defer cache.release()

	return cache.size
}

// Len returns the number of entries
func (cache *LRUCache[K, V]) Len() int {
	cache.acquire()
	defer cache.release()

	return cache.lru.Len()
}

// Get returns the value and marks it most recently used
func (cache *LRUCache[K, V]) Get(key K) (V, bool) {
	cache.acquire()
	defer cache.release()

	return cache.getLocked(key)
}

// GetAsync is Get that waits for the lock cooperatively, it returns ctx.Err() if ctx ends first
func (cache *LRUCache[K, V]) GetAsync(ctx context.Context, key K) (V, bool, error) {
	if err := cache.acquireContext(ctx); err != nil {
		var zero V
		return zero, false, err
	}
	defer cache.release()

	value, ok := cache.getLocked(key)
	return value, ok, nil
}

func (cache *LRUCache[K, V]) getLocked(key K) (V, bool) {
	if value, ok := cache.lru.Get(key); ok {
		return value.(*lruEntry[V]).value, true
	}

	var zero V
	return zero, false
}

// Peek returns the value without updating recency
func (cache *LRUCache[K, V]) Peek(key K) (V, bool) {
	cache.acquire()
	defer cache.release()

	if value, ok := cache.lru.Peek(key); ok {
		return value.(*lruEntry[V]).value, true
	}

	var zero V
	return zero, false
}

// Contains checks if the key exists, without updating recency
func (cache *LRUCache[K, V]) Contains(key K) bool {
	cache.acquire()
	defer cache.release()

	return cache.lru.Contains(key)
}

// Set inserts or updates the value and marks it most recently used.
// Least recently used entries are evicted until the new value fits.
// A value larger than the whole budget, or with a negative or NaN size, is rejected and false is returned.
func (cache *LRUCache[K, V]) Set(key K, value V) bool {
	size := cache.sizeOf(value)
	if size < 0 || math.IsNaN(size) || size > cache.maxSize {
		return false
	}

	cache.acquire()
	defer cache.release()

	if old, ok := cache.lru.Peek(key); ok {
		oldEntry := old.(*lruEntry[V])

		// drop the old entry quietly, it is handed to onEvict below
		cache.removing = true
		cache.lru.Remove(key)
		cache.removing = false

		if cache.onEvict != nil {
			cache.onEvict(key, oldEntry.value)
		}
	}

	for cache.size+size > cache.maxSize {
		if _, _, ok := cache.lru.RemoveOldest(); !ok {
			break
		}
	}

	cache.lru.Add(key, &lruEntry[V]{
		value: value,
		size:  size,
	})
	cache.size += size
	return true
}

// Remove removes the key and returns its value. The value is not passed to onEvict.
func (cache *LRUCache[K, V]) Remove(key K) (V, bool) {
	cache.acquire()
	defer cache.release()

	old, ok := cache.lru.Peek(key)
	if !ok {
		var zero V
		return zero, false
	}

	cache.removing = true
	cache.lru.Remove(key)
	cache.removing = false

	return old.(*lruEntry[V]).value, true
}

// Keys returns keys from the most recently used to the least recently used
func (cache *LRUCache[K, V]) Keys() []K {
	cache.acquire()
	defer cache.release()

	lruKeys := cache.lru.Keys() // oldest first
	keys := make([]K, 0, len(lruKeys))
	for i := len(lruKeys) - 1; i >= 0; i-- {
		keys = append(keys, lruKeys[i].(K))
	}
	return keys
}

// Purge drops all entries, each passed to onEvict
func (cache *LRUCache[K, V]) Purge() {
	cache.acquire()
	defer cache.release()

	cache.lru.Purge()
	cache.size = 0
}
