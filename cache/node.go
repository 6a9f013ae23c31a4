package cache

// entry is the unit of storage. The engine owns it: the key index points to
// it and the recency ledger stores it at pos.
type entry[K comparable, V any] struct {
	key K
	val V

	// Weight computed by the Weigher at insertion/overwrite.
	// Recomputed only when the Weigher itself is replaced.
	weight int64

	// Current ledger position; reassigned on every touch.
	pos uint64

	// UnixNano of the last Set. Zero when TTL is disabled.
	born int64
}
