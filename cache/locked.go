package cache

import (
	"context"
	"sync"

	"github.com/IvanBrykalov/lrucache/internal/singleflight"
	"github.com/IvanBrykalov/lrucache/internal/util"
)

// Stats is a point-in-time copy of a Locked cache's counters.
type Stats struct {
	Hits   uint64
	Misses uint64
	Loads  uint64 // Loader invocations made by GetOrLoad
}

// Locked guards an LRU with a mutex so it can be shared by goroutines.
// Callbacks (Weigher, OnDispose, the ForEach fn) run under the lock; keep
// them lightweight and never call back into the same cache from them.
type Locked[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu  sync.Mutex
	lru *LRU[K, V]

	loader func(ctx context.Context, k K) (V, error)
	sf     singleflight.Group[K, V]

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_      util.CacheLinePad
	hits   util.PaddedAtomicUint64
	misses util.PaddedAtomicUint64
	loads  util.PaddedAtomicUint64
}

// NewLocked constructs a mutex-guarded cache with the provided Options.
func NewLocked[K comparable, V any](opt Options[K, V]) *Locked[K, V] {
	return &Locked[K, V]{lru: New(opt), loader: opt.Loader}
}

// Set inserts or updates k→v. See LRU.Set.
func (l *Locked[K, V]) Set(k K, v V) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Set(k, v)
}

// Get returns the value for k and promotes it. See LRU.Get.
func (l *Locked[K, V]) Get(k K) (V, bool) {
	l.mu.Lock()
	v, ok := l.lru.Get(k)
	l.mu.Unlock()
	l.count(ok)
	return v, ok
}

// Peek returns the value for k without promoting it.
func (l *Locked[K, V]) Peek(k K) (V, bool) {
	l.mu.Lock()
	v, ok := l.lru.Peek(k)
	l.mu.Unlock()
	l.count(ok)
	return v, ok
}

// Has reports whether k is present and not expired.
func (l *Locked[K, V]) Has(k K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Has(k)
}

// Del removes k if present.
func (l *Locked[K, V]) Del(k K) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Del(k)
}

// Pop removes and returns the least recently used entry.
func (l *Locked[K, V]) Pop() (K, V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Pop()
}

// ForEach visits entries from most to least recently used under the lock.
func (l *Locked[K, V]) ForEach(fn func(k K, v V)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lru.ForEach(fn)
}

// Keys returns a snapshot of the keys, most recently used first.
func (l *Locked[K, V]) Keys() []K {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Keys()
}

// Values returns a snapshot of the values, most recently used first.
func (l *Locked[K, V]) Values() []V {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Values()
}

// Reset disposes every entry and empties the cache.
func (l *Locked[K, V]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lru.Reset()
}

// Len returns the number of resident entries.
func (l *Locked[K, V]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Len()
}

// Weight returns the total weight of resident entries.
func (l *Locked[K, V]) Weight() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.Weight()
}

// MaxWeight returns the current weight limit.
func (l *Locked[K, V]) MaxWeight() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lru.MaxWeight()
}

// SetMaxWeight changes the weight limit. See LRU.SetMaxWeight.
func (l *Locked[K, V]) SetMaxWeight(n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lru.SetMaxWeight(n)
}

// SetWeigher replaces the weight function. See LRU.SetWeigher.
func (l *Locked[K, V]) SetWeigher(fn func(V) int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lru.SetWeigher(fn)
}

// GetOrLoad returns the value for k; on miss it loads via Options.Loader,
// coalescing concurrent loads for the same key. A loaded value that is too
// heavy to store is returned to every waiting caller but not cached, and
// OnDispose is not called for it: the caller owns it.
// If no Loader is configured, returns ErrNoLoader.
func (l *Locked[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	// fast path
	if v, ok := l.Get(k); ok {
		return v, nil
	}
	if l.loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	return l.sf.Do(ctx, k, func() (V, error) {
		// double-check after flight join
		l.mu.Lock()
		v, ok := l.lru.Peek(k)
		l.mu.Unlock()
		if ok {
			return v, nil
		}
		l.loads.Add(1)
		v, err := l.loader(ctx, k)
		if err == nil {
			l.mu.Lock()
			l.lru.set(k, v, false)
			l.mu.Unlock()
		}
		return v, err
	})
}

// Stats returns the hit/miss/load counters.
func (l *Locked[K, V]) Stats() Stats {
	return Stats{
		Hits:   l.hits.Load(),
		Misses: l.misses.Load(),
		Loads:  l.loads.Load(),
	}
}

func (l *Locked[K, V]) count(hit bool) {
	if hit {
		l.hits.Add(1)
	} else {
		l.misses.Add(1)
	}
}
