// Package ledger implements the recency order used by the cache engine.
//
// A Ledger hands out strictly increasing positions from a logical clock and
// stores values in a sparse map keyed by position. Two cursors bound the
// occupied range:
//
//   - mru is the next position to hand out;
//   - lru is the lowest position that may still be occupied.
//
// Touching a value means removing it from its old position and pushing it
// again, which leaves a hole behind. Holes at the lru cursor are skipped as
// soon as they appear, so Oldest is O(1). Each position is passed by the lru
// cursor at most once over the ledger's lifetime, so the skipping is amortized
// O(1) per operation.
//
// A Ledger is not safe for concurrent use.
package ledger

// Ledger is a sparse, position-indexed recency order.
// The zero value is ready to use.
type Ledger[T any] struct {
	slots map[uint64]T
	lru   uint64 // lowest possibly occupied position
	mru   uint64 // next position to hand out
}

// New returns an empty ledger with room for hint values.
func New[T any](hint int) *Ledger[T] {
	if hint < 0 {
		hint = 0
	}
	return &Ledger[T]{slots: make(map[uint64]T, hint)}
}

// Push stores v at the most recent position and returns that position.
func (l *Ledger[T]) Push(v T) uint64 {
	if l.slots == nil {
		l.slots = make(map[uint64]T)
	}
	pos := l.mru
	l.mru++
	l.slots[pos] = v
	return pos
}

// Remove frees pos. Removing a free position is a no-op.
// If pos was the least recent one, the lru cursor moves forward over
// consecutive holes until it reaches an occupied slot or meets mru.
func (l *Ledger[T]) Remove(pos uint64) {
	if _, ok := l.slots[pos]; !ok {
		return
	}
	delete(l.slots, pos)
	l.skipHoles()
}

// Touch moves the value at pos to the most recent position and returns the
// new position. ok is false (and nothing changes) if pos is free.
func (l *Ledger[T]) Touch(pos uint64) (npos uint64, ok bool) {
	v, ok := l.slots[pos]
	if !ok {
		return pos, false
	}
	delete(l.slots, pos)
	l.skipHoles()
	return l.Push(v), true
}

func (l *Ledger[T]) skipHoles() {
	for l.lru < l.mru {
		if _, ok := l.slots[l.lru]; ok {
			return
		}
		l.lru++
	}
}

// Oldest returns the least recent value and its position.
func (l *Ledger[T]) Oldest() (v T, pos uint64, ok bool) {
	if l.lru >= l.mru {
		return v, 0, false
	}
	v, ok = l.slots[l.lru]
	return v, l.lru, ok
}

// At returns the value stored at pos.
func (l *Ledger[T]) At(pos uint64) (T, bool) {
	v, ok := l.slots[pos]
	return v, ok
}

// Len returns the number of occupied positions.
func (l *Ledger[T]) Len() int { return len(l.slots) }

// Cursors returns the lru and mru cursors.
func (l *Ledger[T]) Cursors() (lru, mru uint64) { return l.lru, l.mru }

// Descend calls fn for every occupied position from most to least recent
// until fn returns false. fn may Remove the position it was called with,
// but must not otherwise modify the ledger.
func (l *Ledger[T]) Descend(fn func(pos uint64, v T) bool) {
	left := len(l.slots)
	for pos := l.mru; pos > l.lru && left > 0; {
		pos--
		v, ok := l.slots[pos]
		if !ok {
			continue
		}
		left--
		if !fn(pos, v) {
			return
		}
	}
}

// Ascend calls fn for every occupied position from least to most recent
// until fn returns false. fn must not modify the ledger.
func (l *Ledger[T]) Ascend(fn func(pos uint64, v T) bool) {
	left := len(l.slots)
	for pos := l.lru; pos < l.mru && left > 0; pos++ {
		v, ok := l.slots[pos]
		if !ok {
			continue
		}
		left--
		if !fn(pos, v) {
			return
		}
	}
}

// Snapshot returns a copy of the position -> value mapping.
func (l *Ledger[T]) Snapshot() map[uint64]T {
	out := make(map[uint64]T, len(l.slots))
	for p, v := range l.slots {
		out[p] = v
	}
	return out
}

// Reset drops every value and rewinds both cursors to zero.
func (l *Ledger[T]) Reset() {
	l.slots = make(map[uint64]T)
	l.lru, l.mru = 0, 0
}
