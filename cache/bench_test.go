package cache

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
)

// benchmarkMix exercises a read/write mix against a warm single-writer cache.
func benchmarkMix(b *testing.B, readsPct int) {
	c := New[int, int](Options[int, int]{MaxWeight: 100_000})

	for i := 0; i < 50_000; i++ {
		c.Set(i, 1)
	}

	b.ReportAllocs()
	b.ResetTimer()

	r := rand.New(rand.NewSource(1))
	keyMask := (1 << 17) - 1 // larger than capacity to force evictions
	for i := 0; i < b.N; i++ {
		k := r.Int() & keyMask
		if r.Intn(100) < readsPct {
			c.Get(k)
		} else {
			c.Set(k, 1)
		}
	}
}

func BenchmarkLRU_90r10w(b *testing.B) { benchmarkMix(b, 90) }
func BenchmarkLRU_50r50w(b *testing.B) { benchmarkMix(b, 50) }

// benchmarkSharded is the same workload on the sharded cache with parallel
// workers (RunParallel spawns GOMAXPROCS goroutines) and string keys.
func benchmarkSharded(b *testing.B, readsPct int) {
	c := NewSharded[string, string](Options[string, string]{MaxWeight: 100_000}, 0)

	for i := 0; i < 50_000; i++ {
		c.Set("k:"+strconv.Itoa(i), "v")
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				c.Get(k)
			} else {
				c.Set(k, "v")
			}
			i++
		}
	})
}

func BenchmarkSharded_90r10w(b *testing.B) { benchmarkSharded(b, 90) }
func BenchmarkSharded_50r50w(b *testing.B) { benchmarkSharded(b, 50) }
