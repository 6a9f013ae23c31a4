package cache

// Cache is the key/value surface shared by LRU, Locked and Sharded.
//
// Typical complexity for operations is amortized O(1): a map lookup plus a
// constant amount of ledger work (and, for Set, O(1) per evicted entry).
type Cache[K comparable, V any] interface {
	// Set inserts or updates k→v and marks it most recently used.
	// Returns false if v alone weighs more than the max weight.
	Set(k K, v V) bool

	// Get returns the value for k and a presence flag.
	// On hit, the entry becomes most recently used.
	Get(k K) (V, bool)

	// Peek is Get without the recency update.
	Peek(k K) (V, bool)

	// Has reports whether k is present and not expired.
	Has(k K) bool

	// Del removes k if present and returns true on success.
	Del(k K) bool

	// Reset disposes every entry and empties the cache.
	Reset()

	// Len returns the number of resident entries.
	Len() int

	// Weight returns the total weight of resident entries.
	Weight() int64
}

var (
	_ Cache[string, int] = (*LRU[string, int])(nil)
	_ Cache[string, int] = (*Locked[string, int])(nil)
	_ Cache[string, int] = (*Sharded[string, int])(nil)
)
