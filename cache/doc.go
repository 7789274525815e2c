// Package cache provides a generic, sharded in-memory cache whose entries
// carry their own expiration policy, an optional size, a compaction
// priority and post-eviction callbacks.
//
// Design
//
//   - Concurrency: the store is split into shards, each protected by an
//     RWMutex. The default shard count is ≈ 2*GOMAXPROCS rounded to a power
//     of two. The total size and entry count are atomics updated inside the
//     shard critical sections.
//
//   - Expiration: an entry becomes invalid when its absolute expiration
//     passes, when it has not been read for its sliding window, or when one
//     of its change tokens (package token) fires. Invalid entries are evicted
//     lazily when touched, by a background scan every ExpirationScanFrequency,
//     and immediately when an active token fires.
//
//   - Size limit: with Options.SizeLimit set every entry needs a size. A
//     write that would exceed the limit compacts the cache inline (expired
//     entries first, then Low, Normal, High priority, least recently accessed
//     first) and is rejected with EvictionCapacity if there is still no room.
//
//   - Entry scopes: CreateEntry returns a builder whose Context() makes it
//     the current scope. Entries committed and values read inside that scope
//     pass their change tokens and absolute expiration to it, so a composed
//     value expires together with its ingredients.
//
//   - Callbacks: post-eviction callbacks run exactly once per entry on a
//     small worker pool, never on the goroutine that caused the eviction.
//     A panicking callback is logged and does not affect the others.
//
//   - GetOrCreate coalesces concurrent factories for the same key using
//     singleflight.
//
// Basic usage
//
//	c, err := cache.New(cache.Options[string, []byte]{})
//	if err != nil { ... }
//	defer c.Close()
//
//	_ = c.SetWithTTL(ctx, "a", []byte("1"), time.Minute)
//	if v, ok, _ := c.Get(ctx, "a"); ok {
//	    _ = v
//	}
//	_ = c.Remove("a")
//
// Linked entries
//
//	page, _ := c.CreateEntry(ctx, "page")
//	defer page.Close()
//	// header expires when its source file changes; page inherits that.
//	hdr, _ := c.CreateEntry(page.Context(), "header")
//	_ = hdr.AddExpirationToken(fileTok)
//	hdr.SetValue(render(header))
//	_ = hdr.Close()
//	page.SetValue(render(body))
//
// Size-limited cache with metrics
//
//	m := prom.New(nil, "app", "cache", nil) // implements Metrics
//	c, _ := cache.New(cache.Options[string, []byte]{
//	    SizeLimit:            64 << 20,
//	    CompactionPercentage: 0.1,
//	    Sizer:                func(_ string, v []byte) int64 { return int64(len(v)) },
//	    Metrics:              m,
//	})
package cache
