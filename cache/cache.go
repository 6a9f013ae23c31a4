package cache

import (
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/IvanBrykalov/lrucache/internal/ledger"
)

// ErrNoLoader is returned by GetOrLoad when no Loader was configured in Options.
var ErrNoLoader = errors.New("cache: no Loader provided")

// LRU is a weight-bounded least-recently-used cache with optional lazy TTL.
//
// LRU is NOT safe for concurrent use: it performs no locking, and the
// Weigher and OnDispose callbacks must not call back into it. Wrap it in
// Locked (or use Sharded) when several goroutines share a cache.
type LRU[K comparable, V any] struct {
	idx map[K]*entry[K, V]
	led *ledger.Ledger[*entry[K, V]]

	weight    int64 // sum of live entry weights
	maxWeight int64
	weigh     func(V) int64

	opt Options[K, V]
}

// New constructs an LRU with the provided Options.
// Construction never fails: invalid values are normalized (see Options).
func New[K comparable, V any](opt Options[K, V]) *LRU[K, V] {
	opt.normalize()
	c := &LRU[K, V]{
		maxWeight: opt.MaxWeight,
		weigh:     opt.Weigher,
		opt:       opt,
	}
	if c.weigh == nil {
		c.weigh = unitWeight[V]
	}
	c.idx = make(map[K]*entry[K, V])
	c.led = ledger.New[*entry[K, V]](0)
	return c
}

// Set inserts or overwrites k→v and makes it the most recently used entry.
// It returns false if v alone weighs more than MaxWeight; v is then handed
// to OnDispose and the cache is left as it was.
func (c *LRU[K, V]) Set(k K, v V) bool {
	return c.set(k, v, true)
}

// set implements Set. With disposeRejected false an oversized v is refused
// without calling OnDispose, leaving it owned by the caller.
func (c *LRU[K, V]) set(k K, v V, disposeRejected bool) bool {
	now := c.now()
	w := c.weightOf(v)
	if w > c.maxWeight {
		c.opt.Logger.Debug("cache: value rejected",
			slog.Any("key", k), slog.Int64("weight", w), slog.Int64("max_weight", c.maxWeight))
		if disposeRejected {
			c.notify(k, v, DisposeRejected)
		}
		return false
	}

	if e, ok := c.idx[k]; ok {
		if c.expired(e, now) {
			c.dispose(e, DisposeTTL)
		} else {
			// Overwrite in place: one disposal, index entry kept.
			c.notify(e.key, e.val, DisposeOverwrite)
			c.weight -= e.weight
			c.touch(e) // MRU, so makeRoom never picks it
			c.makeRoom(w)
			c.weight += w
			e.val = v
			e.weight = w
			e.born = c.stamp(now)
			c.reportSize()
			return true
		}
	}

	c.makeRoom(w)
	e := &entry[K, V]{key: k, val: v, weight: w, born: c.stamp(now)}
	e.pos = c.led.Push(e)
	c.idx[k] = e
	c.weight += w
	c.reportSize()
	return true
}

// Get returns the value for k and a presence flag, and marks k as most
// recently used. An expired entry is disposed; with Stale its value is
// still returned, once.
func (c *LRU[K, V]) Get(k K) (V, bool) {
	return c.read(k, true)
}

// Peek is Get without the recency update.
func (c *LRU[K, V]) Peek(k K) (V, bool) {
	return c.read(k, false)
}

func (c *LRU[K, V]) read(k K, use bool) (V, bool) {
	e, ok := c.idx[k]
	if !ok {
		c.opt.Metrics.Miss()
		var zero V
		return zero, false
	}
	if c.expired(e, c.now()) {
		c.dispose(e, DisposeTTL)
		c.reportSize()
		c.opt.Metrics.Miss()
		if c.opt.Stale {
			return e.val, true
		}
		var zero V
		return zero, false
	}
	if use {
		c.touch(e)
	}
	c.opt.Metrics.Hit()
	return e.val, true
}

// Has reports whether k is present and not expired. It never changes
// recency; an expired entry is disposed regardless of Stale.
func (c *LRU[K, V]) Has(k K) bool {
	e, ok := c.idx[k]
	if !ok {
		return false
	}
	if c.expired(e, c.now()) {
		c.dispose(e, DisposeTTL)
		c.reportSize()
		return false
	}
	return true
}

// Del removes k if present and reports whether it did.
func (c *LRU[K, V]) Del(k K) bool {
	e, ok := c.idx[k]
	if !ok {
		return false
	}
	c.dispose(e, DisposeDelete)
	c.reportSize()
	return true
}

// Pop removes and returns the least recently used entry.
// ok is false when the cache is empty. Expiry is not checked.
func (c *LRU[K, V]) Pop() (k K, v V, ok bool) {
	e, _, ok := c.led.Oldest()
	if !ok {
		return k, v, false
	}
	c.dispose(e, DisposePop)
	c.reportSize()
	return e.key, e.val, true
}

// All returns an iterator over live entries from most to least recently
// used. Entries found expired on the way are disposed and skipped, or
// yielded one last time with Stale. Recency is not updated.
// The loop body must not modify the cache.
func (c *LRU[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		now := c.now()
		disposed := false
		c.led.Descend(func(_ uint64, e *entry[K, V]) bool {
			if c.expired(e, now) {
				c.dispose(e, DisposeTTL)
				disposed = true
				if !c.opt.Stale {
					return true
				}
			}
			return yield(e.key, e.val)
		})
		if disposed {
			c.reportSize()
		}
	}
}

// ForEach calls fn for every entry from most to least recently used,
// with the same expiry handling as All.
func (c *LRU[K, V]) ForEach(fn func(k K, v V)) {
	for k, v := range c.All() {
		fn(k, v)
	}
}

// Keys returns a snapshot of the keys, most recently used first.
// Expiry is not checked.
func (c *LRU[K, V]) Keys() []K {
	out := make([]K, 0, c.led.Len())
	c.led.Descend(func(_ uint64, e *entry[K, V]) bool {
		out = append(out, e.key)
		return true
	})
	return out
}

// Values returns a snapshot of the values, most recently used first.
// Expiry is not checked.
func (c *LRU[K, V]) Values() []V {
	out := make([]V, 0, c.led.Len())
	c.led.Descend(func(_ uint64, e *entry[K, V]) bool {
		out = append(out, e.val)
		return true
	})
	return out
}

// Reset disposes every entry (least recently used first) and empties the
// cache. MaxWeight and the Weigher are kept.
func (c *LRU[K, V]) Reset() {
	c.led.Ascend(func(_ uint64, e *entry[K, V]) bool {
		c.notify(e.key, e.val, DisposeReset)
		return true
	})
	c.idx = make(map[K]*entry[K, V])
	c.led.Reset()
	c.weight = 0
	c.reportSize()
}

// Len returns the number of entries, including expired ones not yet observed.
func (c *LRU[K, V]) Len() int { return len(c.idx) }

// Weight returns the total weight of all entries.
func (c *LRU[K, V]) Weight() int64 { return c.weight }

// MaxWeight returns the current weight limit (Unbounded if none).
func (c *LRU[K, V]) MaxWeight() int64 { return c.maxWeight }

// SetMaxWeight changes the weight limit, evicting least recently used
// entries until the total fits. n <= 0 means Unbounded.
func (c *LRU[K, V]) SetMaxWeight(n int64) {
	c.maxWeight = normMaxWeight(n)
	c.opt.Logger.Debug("cache: max weight changed",
		slog.Int64("max_weight", c.maxWeight), slog.Int64("weight", c.weight))
	c.trim()
	c.reportSize()
}

// SetWeigher replaces the weight function, recomputes every entry's weight
// and the total, then evicts until the total fits. nil means unit weight.
func (c *LRU[K, V]) SetWeigher(fn func(V) int64) {
	if fn == nil {
		fn = unitWeight[V]
	}
	c.weigh = fn
	for _, e := range c.idx {
		e.weight = c.weightOf(e.val)
	}

	// Survivors are the longest most-recent run whose weights fit; summing
	// from the MRU end keeps the total within MaxWeight, so it cannot overflow.
	var total int64
	var victims []*entry[K, V]
	c.led.Descend(func(_ uint64, e *entry[K, V]) bool {
		if victims != nil || e.weight > c.maxWeight-total {
			victims = append(victims, e)
			return true
		}
		total += e.weight
		return true
	})
	c.weight = total
	for i := len(victims) - 1; i >= 0; i-- { // least recently used first
		e := victims[i]
		c.notify(e.key, e.val, DisposeCapacity)
		c.unlink(e)
	}
	c.opt.Logger.Debug("cache: weigher changed",
		slog.Int64("weight", c.weight), slog.Int("entries", len(c.idx)),
		slog.Int("evicted", len(victims)))
	c.reportSize()
}

// Dump returns a copy of the key index (key → value) for debugging.
// It carries no compatibility promise.
func (c *LRU[K, V]) Dump() map[K]V {
	out := make(map[K]V, len(c.idx))
	for k, e := range c.idx {
		out[k] = e.val
	}
	return out
}

// DumpLRU returns a copy of the recency ledger (position → key) for
// debugging. It carries no compatibility promise.
func (c *LRU[K, V]) DumpLRU() map[uint64]K {
	snap := c.led.Snapshot()
	out := make(map[uint64]K, len(snap))
	for p, e := range snap {
		out[p] = e.key
	}
	return out
}

// -------------------- internals --------------------

// touch moves e to the most recent position.
func (c *LRU[K, V]) touch(e *entry[K, V]) {
	if pos, ok := c.led.Touch(e.pos); ok {
		e.pos = pos
	}
}

// dispose is the single removal path: hook first, then accounting,
// then index and ledger.
func (c *LRU[K, V]) dispose(e *entry[K, V], reason DisposeReason) {
	c.notify(e.key, e.val, reason)
	c.weight -= e.weight
	c.unlink(e)
}

// unlink drops e from the index and the ledger. Accounting is the caller's.
func (c *LRU[K, V]) unlink(e *entry[K, V]) {
	delete(c.idx, e.key)
	c.led.Remove(e.pos)
}

// makeRoom evicts least recently used entries until w more fits under
// MaxWeight. The comparison never forms weight+w, which may overflow.
// Callers guarantee w <= maxWeight.
func (c *LRU[K, V]) makeRoom(w int64) {
	for c.weight > c.maxWeight-w {
		e, _, ok := c.led.Oldest()
		if !ok {
			break
		}
		c.dispose(e, DisposeCapacity)
	}
}

// notify invokes OnDispose and records the reason.
func (c *LRU[K, V]) notify(k K, v V, reason DisposeReason) {
	c.opt.Metrics.Dispose(reason)
	if cb := c.opt.OnDispose; cb != nil {
		cb(k, v, reason)
	}
}

// trim evicts least recently used entries while over the weight limit.
func (c *LRU[K, V]) trim() {
	for c.weight > c.maxWeight {
		e, _, ok := c.led.Oldest()
		if !ok {
			break
		}
		c.dispose(e, DisposeCapacity)
	}
}

func (c *LRU[K, V]) reportSize() {
	c.opt.Metrics.Size(len(c.idx), c.weight)
}

// weightOf runs the weigher, clamping negatives to 0.
func (c *LRU[K, V]) weightOf(v V) int64 {
	w := c.weigh(v)
	if w < 0 {
		return 0
	}
	return w
}

func (c *LRU[K, V]) expired(e *entry[K, V], now int64) bool {
	if c.opt.MaxAge <= 0 {
		return false
	}
	return now-e.born > int64(c.opt.MaxAge)
}

// stamp returns the birth timestamp for an entry written at now.
func (c *LRU[K, V]) stamp(now int64) int64 {
	if c.opt.MaxAge <= 0 {
		return 0
	}
	return now
}

// now reads the clock once; callers pass the result down so an operation
// compares every entry against the same instant.
func (c *LRU[K, V]) now() int64 {
	if c.opt.MaxAge <= 0 {
		return 0
	}
	if c.opt.Clock != nil {
		return c.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}
