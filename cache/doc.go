// Package cache provides a generic, in-memory, weight-bounded LRU cache with
// optional lazy TTL and a disposal hook that sees every removed value.
//
// Design
//
//   - Capacity: every entry has a weight computed once by Options.Weigher
//     (1 per entry by default, so weight == item count). After every mutating
//     call the total weight is at most MaxWeight; least recently used entries
//     are evicted until it is. A value heavier than MaxWeight on its own is
//     rejected: Set returns false and the value goes straight to OnDispose.
//
//   - Recency: instead of a linked list, the cache keeps a ledger that hands
//     out strictly increasing positions and maps position → entry sparsely.
//     A touch re-pushes the entry at a fresh position and leaves a hole; the
//     least-recent cursor skips holes as they appear. All operations are O(1)
//     amortized.
//
//   - TTL: with Options.MaxAge set, an entry older than MaxAge (measured from
//     its last Set) is disposed when it is next accessed by Get, Peek, Has,
//     ForEach/All or Set. Nothing runs in the background, so Len may count
//     entries that are already logically expired. Options.Stale lets a read
//     of an expired entry return its value one last time.
//
//   - Disposal: explicit Del, Pop, capacity eviction, expiry, Reset, overwrite
//     of an existing key and rejection all go through the same path, which
//     calls Options.OnDispose(k, v, reason) before releasing the entry.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Dispose/Size signals.
//     By default NoopMetrics is used; see package metrics/prom for Prometheus.
//
// Basic usage
//
//	c := cache.New[string, []byte](cache.Options[string, []byte]{
//	    MaxWeight: 1 << 20,
//	    Weigher:   func(v []byte) int64 { return int64(len(v)) },
//	})
//	c.Set("a", []byte("1"))
//	if v, ok := c.Get("a"); ok {
//	    _ = v // use value
//	}
//	c.Del("a")
//
// With TTL
//
//	c := cache.New[string, string](cache.Options[string, string]{
//	    MaxWeight: 1024,
//	    MaxAge:    200 * time.Millisecond,
//	})
//	c.Set("tmp", "v")
//	time.Sleep(300 * time.Millisecond)
//	_, ok := c.Get("tmp") // ok == false (expired and disposed)
//
// Thread-safety
//
// LRU is single-writer: it does no locking and its callbacks must not call
// back into it. Use Locked for a mutex-guarded cache (which also offers
// GetOrLoad with coalesced loads), or Sharded to spread keys over several
// Locked caches.
package cache
