// Package sizer provides Options.Sizer functions that estimate an entry's
// size from the length of its encoded value.
package sizer

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"
)

// Func matches cache.Options.Sizer.
type Func[K comparable, V any] func(k K, v V) int64

// Msgpack sizes values by their MessagePack encoding. Values that fail to
// encode get fallback.
func Msgpack[K comparable, V any](fallback int64) Func[K, V] {
	return func(_ K, v V) int64 {
		b, err := msgpack.Marshal(v)
		if err != nil {
			return fallback
		}
		return int64(len(b))
	}
}

// CBOR sizes values by their CBOR encoding. Values that fail to encode get
// fallback.
func CBOR[K comparable, V any](fallback int64) Func[K, V] {
	return func(_ K, v V) int64 {
		b, err := cbor.Marshal(v)
		if err != nil {
			return fallback
		}
		return int64(len(b))
	}
}

// Bytes sizes byte-slice-like values by length.
func Bytes[K comparable, V ~[]byte | ~string]() Func[K, V] {
	return func(_ K, v V) int64 { return int64(len(v)) }
}
