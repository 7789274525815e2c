package util

import (
	"math/bits"
	"runtime"
)

// MaxShards caps the automatic and explicit shard count.
const MaxShards = 256

// NextPow2 returns the smallest power of two >= x (1 for x == 0),
// clamped to 1<<63 on overflow.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	n := bits.Len64(x - 1)
	if n >= 64 {
		return 1 << 63
	}
	return 1 << n
}

// ShardCount normalises a requested shard count: <= 0 picks
// nextPow2(2*GOMAXPROCS), anything else is rounded up to a power of two.
// The result is always within [1, MaxShards].
func ShardCount(requested int) int {
	if requested <= 0 {
		requested = 2 * runtime.GOMAXPROCS(0)
	}
	n := int(NextPow2(uint64(requested)))
	if n > MaxShards {
		n = MaxShards
	}
	return n
}

// ShardIndex maps a hash to a shard; shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	return int(hash & uint64(shards-1))
}
