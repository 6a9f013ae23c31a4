package cache

import (
	"context"
	"log/slog"
	"math"
	"time"
)

// DisposeReason explains why a value was handed to the disposal hook.
type DisposeReason int

const (
	// DisposeDelete — removed by an explicit Del.
	DisposeDelete DisposeReason = iota
	// DisposePop — removed by Pop as the least recently used entry.
	DisposePop
	// DisposeCapacity — evicted to bring the total weight under MaxWeight.
	DisposeCapacity
	// DisposeTTL — expired (lazy, observed on access).
	DisposeTTL
	// DisposeReset — dropped by Reset.
	DisposeReset
	// DisposeOverwrite — old value replaced by Set on an existing key.
	DisposeOverwrite
	// DisposeRejected — new value heavier than MaxWeight; never stored.
	DisposeRejected
)

// String returns a stable lowercase name, suitable as a metric label.
func (r DisposeReason) String() string {
	switch r {
	case DisposeDelete:
		return "delete"
	case DisposePop:
		return "pop"
	case DisposeCapacity:
		return "capacity"
	case DisposeTTL:
		return "ttl"
	case DisposeReset:
		return "reset"
	case DisposeOverwrite:
		return "overwrite"
	case DisposeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Dispose(reason DisposeReason)
	Size(entries int, weight int64)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Unbounded is the MaxWeight used when none (or a non-positive one) is set.
const Unbounded int64 = math.MaxInt64

// Options configures the cache behavior. Zero values are safe;
// defaults are applied in New():
//   - MaxWeight <= 0 => Unbounded
//   - nil Weigher    => every entry weighs 1 (weight == item count)
//   - MaxAge <= 0    => TTL disabled
//   - nil Metrics    => NoopMetrics
//   - nil Logger     => records are discarded
type Options[K comparable, V any] struct {
	// MaxWeight is the total weight limit. Adjustable later via SetMaxWeight.
	MaxWeight int64

	// Weigher computes an entry's weight once, at insertion or overwrite.
	// Negative results are treated as 0. Adjustable later via SetWeigher.
	Weigher func(v V) int64

	// MaxAge enables TTL: an entry older than MaxAge (measured from its last
	// Set) is disposed the next time it is accessed. Reads do not refresh age.
	MaxAge time.Duration

	// Stale makes a read of an expired entry return its value once
	// (the entry is still disposed).
	Stale bool

	// OnDispose is called for every removal, whatever the cause, before the
	// entry is released. It runs synchronously and must not call back into
	// the cache.
	OnDispose func(k K, v V, reason DisposeReason)

	// Loader fetches a value on miss. Used by Locked/Sharded GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	// Observability
	Metrics Metrics
	Logger  *slog.Logger

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}

// normalize applies the documented defaults in place.
func (o *Options[K, V]) normalize() {
	o.MaxWeight = normMaxWeight(o.MaxWeight)
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	if o.MaxAge < 0 {
		o.MaxAge = 0
	}
}

func normMaxWeight(n int64) int64 {
	if n <= 0 {
		return Unbounded
	}
	return n
}

// unitWeight is the default weigher.
func unitWeight[V any](V) int64 { return 1 }
