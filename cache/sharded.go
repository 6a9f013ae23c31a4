package cache

import (
	"context"
	"math"
	"math/bits"
	"sync"

	"github.com/IvanBrykalov/lrucache/internal/util"
)

// Sharded spreads keys over several Locked caches to reduce lock contention.
//
// Recency and weight are tracked per shard: eviction picks the least
// recently used entry of the shard being written. MaxWeight is split so the
// shard budgets add up to exactly MaxWeight (the first MaxWeight%shards
// shards get one unit more), hence a value heavier than its shard's budget
// is rejected even if it is below MaxWeight. Metrics.Size receives totals
// across all shards.
type Sharded[K comparable, V any] struct {
	shards []*Locked[K, V]
	hash   func(K) uint64
}

// NewSharded constructs a sharded cache. shards <= 0 picks a default based on
// GOMAXPROCS; any count is rounded up to a power of two, then halved while
// it exceeds a bounded MaxWeight so that every shard can hold something.
func NewSharded[K comparable, V any](opt Options[K, V], shards int) *Sharded[K, V] {
	if shards <= 0 {
		shards = util.ReasonableShardCount()
	} else {
		shards = int(util.NextPow2(uint64(shards)))
	}
	mw := normMaxWeight(opt.MaxWeight)
	for shards > 1 && int64(shards) > mw {
		shards /= 2
	}

	var totals *sizeTotals
	if opt.Metrics != nil {
		totals = &sizeTotals{m: opt.Metrics}
	}

	s := &Sharded[K, V]{
		shards: make([]*Locked[K, V], shards),
		hash:   util.Hasher[K](),
	}
	base, rem := mw/int64(shards), mw%int64(shards)
	for i := range s.shards {
		per := opt
		if mw != Unbounded {
			per.MaxWeight = base
			if int64(i) < rem {
				per.MaxWeight++
			}
		}
		if totals != nil {
			per.Metrics = &shardSizer{Metrics: opt.Metrics, totals: totals}
		}
		s.shards[i] = NewLocked(per)
	}
	return s
}

// Set inserts or updates k→v in k's shard.
func (s *Sharded[K, V]) Set(k K, v V) bool { return s.shard(k).Set(k, v) }

// Get returns the value for k and promotes it within its shard.
func (s *Sharded[K, V]) Get(k K) (V, bool) { return s.shard(k).Get(k) }

// Peek returns the value for k without promoting it.
func (s *Sharded[K, V]) Peek(k K) (V, bool) { return s.shard(k).Peek(k) }

// Has reports whether k is present and not expired.
func (s *Sharded[K, V]) Has(k K) bool { return s.shard(k).Has(k) }

// Del removes k if present.
func (s *Sharded[K, V]) Del(k K) bool { return s.shard(k).Del(k) }

// GetOrLoad is Locked.GetOrLoad on k's shard.
func (s *Sharded[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	return s.shard(k).GetOrLoad(ctx, k)
}

// Reset resets every shard in turn.
func (s *Sharded[K, V]) Reset() {
	for _, sh := range s.shards {
		sh.Reset()
	}
}

// Len returns the total number of resident entries across all shards.
func (s *Sharded[K, V]) Len() int {
	total := 0
	for _, sh := range s.shards {
		total += sh.Len()
	}
	return total
}

// Weight returns the total weight across all shards, saturating at
// Unbounded.
func (s *Sharded[K, V]) Weight() int64 {
	var total int64
	for _, sh := range s.shards {
		w := sh.Weight()
		if w > Unbounded-total {
			return Unbounded
		}
		total += w
	}
	return total
}

// Shards returns the number of shards.
func (s *Sharded[K, V]) Shards() int { return len(s.shards) }

// Stats sums the counters of all shards.
func (s *Sharded[K, V]) Stats() Stats {
	var st Stats
	for _, sh := range s.shards {
		x := sh.Stats()
		st.Hits += x.Hits
		st.Misses += x.Misses
		st.Loads += x.Loads
	}
	return st
}

// shard picks a shard by hashing the key; len(s.shards) is a power of two.
func (s *Sharded[K, V]) shard(k K) *Locked[K, V] {
	return s.shards[util.ShardIndex(s.hash(k), len(s.shards))]
}

// sizeTotals folds per-shard Size reports into cache-wide figures.
// The weight sum is kept in 128 bits: unbounded shards may each hold up to
// math.MaxInt64.
type sizeTotals struct {
	mu      sync.Mutex
	m       Metrics
	entries int
	hi, lo  uint64
}

func (t *sizeTotals) add(de int, dw int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries += de
	var ext, carry uint64
	if dw < 0 {
		ext = math.MaxUint64
	}
	t.lo, carry = bits.Add64(t.lo, uint64(dw), 0)
	t.hi, _ = bits.Add64(t.hi, ext, carry)

	w := int64(math.MaxInt64)
	if t.hi == 0 && t.lo <= math.MaxInt64 {
		w = int64(t.lo)
	}
	t.m.Size(t.entries, w)
}

// shardSizer is one shard's Metrics: everything passes through except Size,
// which is turned into a delta against the shard's previous report.
// Size is called under the shard's lock, so entries/weight need no locking.
type shardSizer struct {
	Metrics
	totals  *sizeTotals
	entries int
	weight  int64
}

func (m *shardSizer) Size(entries int, weight int64) {
	de, dw := entries-m.entries, weight-m.weight
	m.entries, m.weight = entries, weight
	m.totals.add(de, dw)
}
