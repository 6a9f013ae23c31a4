package cache

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// Singleflight test: concurrent GetOrLoad calls for the same key
// should trigger the Loader at most once; subsequent calls are cache hits.
func TestLocked_GetOrLoad_Singleflight(t *testing.T) {
	var calls int64

	c := NewLocked[string, string](Options[string, string]{
		MaxWeight: 64,
		Loader: func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(5 * time.Millisecond) // simulate I/O
			return "v:" + k, nil
		},
	})

	const N = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < N; i++ {
		g.Go(func() error {
			v, err := c.GetOrLoad(ctx, "k")
			if err != nil {
				return err
			}
			if v != "v:k" {
				return fmt.Errorf("got %q", v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("loader must run exactly once, got %d", got)
	}
	if st := c.Stats(); st.Loads != 1 {
		t.Fatalf("Stats.Loads = %d, want 1", st.Loads)
	}

	if v, err := c.GetOrLoad(context.Background(), "k"); err != nil || v != "v:k" {
		t.Fatalf("second GetOrLoad failed: v=%q err=%v", v, err)
	}
}

func TestLocked_GetOrLoad_Errors(t *testing.T) {
	t.Parallel()

	c := NewLocked[string, int](Options[string, int]{})
	if _, err := c.GetOrLoad(context.Background(), "k"); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("want ErrNoLoader, got %v", err)
	}

	boom := errors.New("boom")
	c = NewLocked[string, int](Options[string, int]{
		Loader: func(context.Context, string) (int, error) { return 0, boom },
	})
	if _, err := c.GetOrLoad(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("want loader error, got %v", err)
	}
	if c.Has("k") {
		t.Fatal("failed load must not be cached")
	}
}

// Locked mirrors the engine's semantics and counts hits/misses.
func TestLocked_Basic(t *testing.T) {
	t.Parallel()

	var disposed []string
	c := NewLocked[string, int](Options[string, int]{
		MaxWeight: 2,
		OnDispose: func(k string, _ int, _ DisposeReason) { disposed = append(disposed, k) },
	})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3) // evicts b
	if _, ok := c.Peek("b"); ok {
		t.Fatal("b must be evicted")
	}
	if st := c.Stats(); st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if got := c.Keys(); len(got) != 2 || got[0] != "c" || got[1] != "a" {
		t.Fatalf("keys = %v", got)
	}
	if got := c.Values(); len(got) != 2 || got[0] != 3 {
		t.Fatalf("values = %v", got)
	}
	n := 0
	c.ForEach(func(string, int) { n++ })
	if n != 2 {
		t.Fatalf("ForEach visited %d", n)
	}
	if k, _, ok := c.Pop(); !ok || k != "a" {
		t.Fatalf("Pop = %q", k)
	}
	c.SetWeigher(func(v int) int64 { return int64(v) }) // c weighs 3 > 2
	if c.Len() != 0 || c.Weight() != 0 {
		t.Fatalf("Len=%d Weight=%d", c.Len(), c.Weight())
	}
	c.SetMaxWeight(0)
	if c.MaxWeight() != Unbounded {
		t.Fatal("max must be unbounded")
	}
	c.Set("d", 4)
	c.Del("d")
	c.Reset()
	if want := []string{"b", "a", "c", "d"}; fmt.Sprint(disposed) != fmt.Sprint(want) {
		t.Fatalf("disposed %v, want %v", disposed, want)
	}
}

func TestSharded_Basic(t *testing.T) {
	t.Parallel()

	s := NewSharded[int, int](Options[int, int]{MaxWeight: 1000}, 3)
	if s.Shards() != 4 {
		t.Fatalf("shards = %d, want 4", s.Shards())
	}
	for i := 0; i < 100; i++ {
		if !s.Set(i, i) {
			t.Fatalf("Set %d failed", i)
		}
	}
	if s.Len() != 100 || s.Weight() != 100 {
		t.Fatalf("Len=%d Weight=%d", s.Len(), s.Weight())
	}
	if v, ok := s.Get(42); !ok || v != 42 {
		t.Fatalf("Get 42 = %d,%v", v, ok)
	}
	if _, ok := s.Peek(7); !ok || !s.Has(7) {
		t.Fatal("7 must be present")
	}
	if !s.Del(7) || s.Has(7) {
		t.Fatal("Del 7")
	}
	if st := s.Stats(); st.Hits != 2 {
		t.Fatalf("hits = %d", st.Hits)
	}
	s.Reset()
	if s.Len() != 0 {
		t.Fatal("Reset must empty all shards")
	}
}

// Shard budgets add up to exactly MaxWeight.
func TestSharded_SplitsMaxWeight(t *testing.T) {
	t.Parallel()

	s := NewSharded[int, int](Options[int, int]{MaxWeight: 10}, 4)
	var budgets []int64
	var sum int64
	for _, sh := range s.shards {
		budgets = append(budgets, sh.MaxWeight())
		sum += sh.MaxWeight()
	}
	if fmt.Sprint(budgets) != "[3 3 2 2]" || sum != 10 {
		t.Fatalf("per-shard budgets = %v (sum %d), want [3 3 2 2]", budgets, sum)
	}
	for i := 0; i < 1000; i++ {
		s.Set(i, i)
	}
	if s.Weight() > 10 || s.Len() > 10 {
		t.Fatalf("Weight=%d Len=%d above MaxWeight 10", s.Weight(), s.Len())
	}

	// Fewer weight units than shards: the shard count shrinks instead of
	// leaving shards with nothing to hold.
	small := NewSharded[int, int](Options[int, int]{MaxWeight: 3}, 4)
	if small.Shards() != 2 {
		t.Fatalf("shards = %d, want 2", small.Shards())
	}
	for i := 0; i < 100; i++ {
		small.Set(i, i)
	}
	if small.Weight() > 3 {
		t.Fatalf("Weight=%d above MaxWeight 3", small.Weight())
	}

	u := NewSharded[int, int](Options[int, int]{}, 2)
	for _, sh := range u.shards {
		if sh.MaxWeight() != Unbounded {
			t.Fatal("unbounded max must stay unbounded per shard")
		}
	}
}

// sizeLog records the latest Size report.
type sizeLog struct {
	NoopMetrics
	mu      sync.Mutex
	entries int
	weight  int64
	reasons []DisposeReason
}

func (m *sizeLog) Size(entries int, weight int64) {
	m.mu.Lock()
	m.entries, m.weight = entries, weight
	m.mu.Unlock()
}

func (m *sizeLog) Dispose(r DisposeReason) {
	m.mu.Lock()
	m.reasons = append(m.reasons, r)
	m.mu.Unlock()
}

func (m *sizeLog) last() (int, int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries, m.weight
}

// Size reports of a sharded cache cover all shards, not the last writer.
func TestSharded_SizeTotals(t *testing.T) {
	t.Parallel()

	m := &sizeLog{}
	s := NewSharded[int, int](Options[int, int]{Metrics: m}, 8)
	for i := 0; i < 100; i++ {
		s.Set(i, i)
	}
	if e, w := m.last(); e != 100 || w != 100 {
		t.Fatalf("Size = (%d, %d), want (100, 100)", e, w)
	}
	s.Del(5)
	if e, w := m.last(); e != 99 || w != 99 {
		t.Fatalf("after Del: Size = (%d, %d), want (99, 99)", e, w)
	}
	if len(m.reasons) != 1 || m.reasons[0] != DisposeDelete {
		t.Fatalf("disposals = %v, want [delete]", m.reasons)
	}
	s.Reset()
	if e, w := m.last(); e != 0 || w != 0 {
		t.Fatalf("after Reset: Size = (%d, %d)", e, w)
	}

	// Concurrent writers: the final report matches the cache.
	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				s.Set(w*1000+i, i)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if e, wt := m.last(); e != s.Len() || wt != s.Weight() {
		t.Fatalf("Size = (%d, %d), cache has (%d, %d)", e, wt, s.Len(), s.Weight())
	}
}

// Unbounded shards may each hold MaxInt64; totals saturate instead of wrapping.
func TestSharded_WeightSaturates(t *testing.T) {
	t.Parallel()

	m := &sizeLog{}
	s := NewSharded[int, int64](Options[int, int64]{
		Weigher: func(v int64) int64 { return v },
		Metrics: m,
	}, 2)
	// one key per shard
	var keys []int
	seen := map[*Locked[int, int64]]bool{}
	for k := 0; len(keys) < 2; k++ {
		if sh := s.shard(k); !seen[sh] {
			seen[sh] = true
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		if !s.Set(k, math.MaxInt64) {
			t.Fatalf("Set %d rejected", k)
		}
	}
	if s.Weight() != Unbounded {
		t.Fatalf("Weight = %d, want saturation at %d", s.Weight(), int64(Unbounded))
	}
	if _, w := m.last(); w != Unbounded {
		t.Fatalf("reported weight = %d, want %d", w, int64(Unbounded))
	}
	s.Del(keys[0])
	if _, w := m.last(); w != math.MaxInt64 {
		t.Fatalf("after Del: reported weight = %d", w)
	}
	s.Del(keys[1])
	if e, w := m.last(); e != 0 || w != 0 {
		t.Fatalf("empty: Size = (%d, %d)", e, w)
	}
}

// A loaded value too heavy to cache goes back to the caller without
// passing through OnDispose.
func TestLocked_GetOrLoad_Oversized(t *testing.T) {
	t.Parallel()

	var disposed []string
	c := NewLocked[string, string](Options[string, string]{
		MaxWeight: 2,
		Weigher:   func(v string) int64 { return int64(len(v)) },
		OnDispose: func(k, _ string, _ DisposeReason) { disposed = append(disposed, k) },
		Loader:    func(context.Context, string) (string, error) { return "toolong", nil },
	})
	v, err := c.GetOrLoad(context.Background(), "k")
	if err != nil || v != "toolong" {
		t.Fatalf("GetOrLoad = %q, %v", v, err)
	}
	if len(disposed) != 0 {
		t.Fatalf("OnDispose ran for %v", disposed)
	}
	if c.Has("k") || c.Len() != 0 {
		t.Fatal("oversized value must not be cached")
	}

	// Plain Set still hands the rejected value to the hook.
	if c.Set("x", "toolong") || len(disposed) != 1 {
		t.Fatalf("Set accepted oversized value or skipped hook: %v", disposed)
	}
}
