package util

import (
	"math/bits"
	"runtime"
)

// maxShards bounds the automatic shard count.
const maxShards = 256

// IsPowerOfTwo reports whether x is a power of two (> 0).
func IsPowerOfTwo(x uint64) bool { return bits.OnesCount64(x) == 1 }

// NextPow2 returns the smallest power of two >= x (1 for x == 0).
// Values above 1<<63 are clamped to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	if x > 1<<63 {
		return 1 << 63
	}
	return 1 << bits.Len64(x-1)
}

// ReasonableShardCount picks a default shard count from CPU parallelism:
// nextPow2(2*GOMAXPROCS), clamped to [1..256].
func ReasonableShardCount() int {
	p := runtime.GOMAXPROCS(0)
	if p < 1 {
		p = 1
	}
	return int(min(NextPow2(uint64(p*2)), maxShards))
}

// ShardIndex maps a 64-bit hash to a shard index. Power-of-two counts take
// the mask path; other counts fall back to modulo.
func ShardIndex(hash uint64, shards int) int {
	if shards <= 1 {
		return 0
	}
	if IsPowerOfTwo(uint64(shards)) {
		return int(hash & uint64(shards-1))
	}
	return int(hash % uint64(shards))
}
