// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"hash/maphash"
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Hasher spreads keys of type K across shards.
type Hasher[K comparable] func(K) uint64

// NewHasher returns the default key hasher: xxhash for strings, a mixed
// integer hash for fixed-width integers and maphash.Comparable (with a
// per-cache seed) for every other comparable type.
func NewHasher[K comparable]() Hasher[K] {
	seed := maphash.MakeSeed()
	return func(k K) uint64 {
		switch v := any(k).(type) {
		case string:
			return xxhash.Sum64String(v)
		case int:
			return mix64(uint64(v))
		case int64:
			return mix64(uint64(v))
		case int32:
			return mix64(uint64(v))
		case uint:
			return mix64(uint64(v))
		case uint64:
			return mix64(v)
		case uint32:
			return mix64(uint64(v))
		case uintptr:
			return mix64(uint64(v))
		default:
			return maphash.Comparable(seed, k)
		}
	}
}

// mix64 is the splitmix64 finalizer. Sequential integer keys would
// otherwise land in neighbouring shards in lockstep.
func mix64(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// IsNil reports whether k is a nil interface, pointer, channel or other
// nillable value. Such keys cannot name an entry.
func IsNil[K comparable](k K) bool {
	v := any(k)
	switch v.(type) {
	case nil:
		return true
	case string, int, int64, int32, uint, uint64, uint32, bool:
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Interface, reflect.UnsafePointer,
		reflect.Map, reflect.Slice, reflect.Func:
		return rv.IsNil()
	}
	return false
}
