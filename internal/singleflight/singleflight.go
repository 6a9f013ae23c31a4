// Package singleflight coalesces concurrent loads of the same cache key.
package singleflight

import (
	"context"
	"sync"
)

// Group runs at most one load per key at a time. Callers arriving while a
// load is in flight wait for its result instead of starting their own.
//
// The first caller for a key is the leader and runs fn. Followers wait on
// the call's done channel; the result is published before done is closed.
// A follower whose ctx is cancelled returns ctx.Err() without affecting the
// leader. The zero value is ready to use.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done  chan struct{} // closed when val/err are published
	val   V
	err   error
	panic any
}

// Do runs fn once for key among concurrent callers and hands every caller
// the same result. If fn panics, the leader re-panics and followers receive
// the panic value as well.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (V, error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()

		select {
		case <-c.done:
			if c.panic != nil {
				panic(c.panic)
			}
			return c.val, c.err
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	g.run(key, c, fn)
	if c.panic != nil {
		panic(c.panic)
	}
	return c.val, c.err
}

// run executes fn, publishes the outcome and drops the in-flight marker.
func (g *Group[K, V]) run(key K, c *call[V], fn func() (V, error)) {
	defer func() {
		if r := recover(); r != nil {
			c.panic = r
		}
		g.mu.Lock()
		delete(g.m, key)
		g.mu.Unlock()
		close(c.done)
	}()
	c.val, c.err = fn()
}
