// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import "hash/maphash"

// Hasher returns a hash function for any comparable key type, seeded once
// per call so that different caches do not share a key distribution.
// Unlike a type switch over known key kinds, it never panics on custom
// struct or array keys.
func Hasher[K comparable]() func(K) uint64 {
	seed := maphash.MakeSeed()
	return func(k K) uint64 { return maphash.Comparable(seed, k) }
}
