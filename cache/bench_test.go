package cache

import (
	"context"
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
)

// benchmarkMix exercises a read/write mix against a warm cache.
// It uses parallel workers (RunParallel spawns GOMAXPROCS goroutines).
// String keys include strconv/concat costs and often allocate, which is fine
// for an end-to-end benchmark.
func benchmarkMix(b *testing.B, readsPct int, opt Options[string, string]) {
	c := newTestCache(b, opt)
	ctx := context.Background()
	size := EntryOptions[string, string]{Size: Sized(1)}

	for i := 0; i < 50_000; i++ {
		k := "k:" + strconv.Itoa(i)
		_ = c.SetWithOptions(ctx, k, "v", size)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1 // hot keyspace (power of two for fast &-mask)

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				_, _, _ = c.Get(ctx, k)
			} else {
				_ = c.SetWithOptions(ctx, k, "v", size)
			}
			i++
		}
	})
}

func BenchmarkCache_90r10w(b *testing.B) { benchmarkMix(b, 90, Options[string, string]{}) }
func BenchmarkCache_50r50w(b *testing.B) { benchmarkMix(b, 50, Options[string, string]{}) }

// With a limit below the working set, writes regularly trigger compaction.
func BenchmarkCache_Limited_50r50w(b *testing.B) {
	benchmarkMix(b, 50, Options[string, string]{SizeLimit: 40_000, CompactionPercentage: 0.1})
}

// benchmarkMixInt is the same workload but with int keys.
// This removes strconv/alloc noise and better exposes the cache hot path.
func benchmarkMixInt(b *testing.B, readsPct int) {
	c := newTestCache(b, Options[int, int]{})
	ctx := context.Background()

	for i := 0; i < 50_000; i++ {
		_ = c.Set(ctx, i, 1)
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := i & keyMask
			if r.Intn(100) < readsPct {
				_, _, _ = c.Get(ctx, k)
			} else {
				_ = c.Set(ctx, k, 1)
			}
			i++
		}
	})
}

func BenchmarkCache_IntKeys_90r10w(b *testing.B) { benchmarkMixInt(b, 90) }
func BenchmarkCache_IntKeys_50r50w(b *testing.B) { benchmarkMixInt(b, 50) }
