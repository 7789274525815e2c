package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/IvanBrykalov/memorycache/token"
	"github.com/stretchr/testify/require"
)

// An entry is invalid once now reaches its absolute expiration.
func TestExpiration_Absolute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := newTestCache(t, Options[string, int]{Clock: clk})
	cb, evs := recorder[string, int]()

	opts := withCallback(cb)
	opts.AbsoluteExpiration = clk.now().Add(time.Second)
	require.NoError(t, c.SetWithOptions(ctx, "k", 1, opts))

	clk.add(999 * time.Millisecond)
	_, ok, _ := c.Get(ctx, "k")
	require.True(t, ok)

	clk.add(time.Millisecond)
	_, ok, _ = c.Get(ctx, "k")
	require.False(t, ok)
	require.Equal(t, EvictionExpired, waitEviction(t, evs).reason)
	require.Equal(t, 0, c.Count())
}

// Per-entry TTL via the relative absolute expiration.
func TestExpiration_TTL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := newTestCache(t, Options[string, string]{Clock: clk})

	require.NoError(t, c.SetWithTTL(ctx, "x", "v", 100*time.Millisecond))
	clk.add(50 * time.Millisecond)
	_, ok, _ := c.Get(ctx, "x")
	require.True(t, ok, "fresh miss")
	clk.add(60 * time.Millisecond)
	_, ok, _ = c.Get(ctx, "x")
	require.False(t, ok, "expired hit")
}

// When both are set, the earlier of absolute and relative expiration wins.
func TestExpiration_RelativeAndAbsoluteTakeEarlier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := newTestCache(t, Options[string, int]{Clock: clk})

	require.NoError(t, c.SetWithOptions(ctx, "k", 1, EntryOptions[string, int]{
		AbsoluteExpiration:              clk.now().Add(time.Hour),
		AbsoluteExpirationRelativeToNow: time.Minute,
	}))
	clk.add(time.Minute)
	_, ok, _ := c.Get(ctx, "k")
	require.False(t, ok)
}

// Each hit extends a sliding window; idleness past it expires the entry.
func TestExpiration_Sliding(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := newTestCache(t, Options[string, int]{Clock: clk})

	require.NoError(t, c.SetWithSlidingExpiration(ctx, "k", 1, time.Second))
	for i := 0; i < 5; i++ {
		clk.add(900 * time.Millisecond)
		_, ok, _ := c.Get(ctx, "k")
		require.True(t, ok, "access %d", i)
	}
	clk.add(time.Second)
	_, ok, _ := c.Get(ctx, "k")
	require.False(t, ok)
}

// Sliding expiration never extends past the absolute expiration.
func TestExpiration_SlidingCappedByAbsolute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := newTestCache(t, Options[string, int]{Clock: clk})

	require.NoError(t, c.SetWithOptions(ctx, "k", 1, EntryOptions[string, int]{
		SlidingExpiration:  time.Second,
		AbsoluteExpiration: clk.now().Add(1500 * time.Millisecond),
	}))
	clk.add(900 * time.Millisecond)
	_, ok, _ := c.Get(ctx, "k")
	require.True(t, ok)
	clk.add(900 * time.Millisecond)
	_, ok, _ = c.Get(ctx, "k")
	require.False(t, ok)
}

// A value whose deadline already passed is not stored, reports Expired and
// still displaces the previous value for the key.
func TestExpiration_PastAbsoluteNotStored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := newTestCache(t, Options[string, int]{Clock: clk})
	priorCB, priorEvs := recorder[string, int]()
	cb, evs := recorder[string, int]()

	require.NoError(t, c.SetWithOptions(ctx, "k", 1, withCallback(priorCB)))
	opts := withCallback(cb)
	opts.AbsoluteExpiration = clk.now().Add(-time.Second)
	require.NoError(t, c.SetWithOptions(ctx, "k", 2, opts))

	require.Equal(t, EvictionExpired, waitEviction(t, evs).reason)
	prior := waitEviction(t, priorEvs)
	require.Equal(t, EvictionReplaced, prior.reason)
	require.Equal(t, 1, prior.value)
	_, ok, _ := c.Get(ctx, "k")
	require.False(t, ok)
}

// A token that already changed makes the commit a no-op that reports
// TokenExpired.
func TestExpiration_TokenAlreadyChanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, Options[string, int]{})
	cb, evs := recorder[string, int]()

	src := token.NewSource()
	src.Signal()
	opts := withCallback(cb)
	opts.ExpirationTokens = []token.ChangeToken{src.Token()}
	require.NoError(t, c.SetWithOptions(ctx, "k", 1, opts))

	ev := waitEviction(t, evs)
	require.Equal(t, EvictionTokenExpired, ev.reason)
	require.Equal(t, 1, ev.value)
	require.Equal(t, 0, c.Count())
}

// An active token removes its entry as soon as it fires, without a read.
func TestExpiration_ActiveTokenFires(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, Options[string, int]{})
	cb, evs := recorder[string, int]()

	src := token.NewSource()
	opts := withCallback(cb)
	opts.ExpirationTokens = []token.ChangeToken{src.Token()}
	require.NoError(t, c.SetWithOptions(ctx, "k", 1, opts))
	require.NoError(t, c.Set(ctx, "other", 2))

	src.Signal()
	require.Equal(t, EvictionTokenExpired, waitEviction(t, evs).reason)
	require.Equal(t, 1, c.Count())
	_, ok, _ := c.Get(ctx, "other")
	require.True(t, ok)
}

// Passive tokens are checked on access.
func TestExpiration_PassiveToken(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, Options[string, int]{})
	var changed atomic.Bool
	require.NoError(t, c.SetWithToken(ctx, "k", 1, token.Poll(changed.Load)))

	_, ok, _ := c.Get(ctx, "k")
	require.True(t, ok)
	changed.Store(true)
	_, ok, _ = c.Get(ctx, "k")
	require.False(t, ok)
}

// Removing an entry releases its token registration.
func TestExpiration_TokenDetachedOnRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	c := newTestCache(t, Options[string, int]{})
	src := token.NewSource()
	require.NoError(t, c.SetWithToken(ctx, "k", 1, src.Token()))
	require.NoError(t, c.Remove("k"))
	require.NoError(t, c.Set(ctx, "k", 2))

	src.Signal()
	time.Sleep(20 * time.Millisecond)
	v, ok, _ := c.Get(ctx, "k")
	require.True(t, ok, "new value must not be evicted by the old entry's token")
	require.Equal(t, 2, v)
}

// With ScanOnAccess any operation sweeps expired entries in the background.
func TestScan_OnAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := newTestCache(t, Options[string, int]{Clock: clk, ExpirationScanFrequency: ScanOnAccess})
	cb, evs := recorder[string, int]()

	for _, k := range []string{"a", "b", "c"} {
		opts := withCallback(cb)
		opts.AbsoluteExpirationRelativeToNow = time.Second
		require.NoError(t, c.SetWithOptions(ctx, k, 1, opts))
	}
	require.NoError(t, c.Set(ctx, "keep", 1))
	// Let scans started by the writes finish before time moves.
	require.Eventually(t, func() bool { return c.Count() == 4 }, time.Second, time.Millisecond)

	clk.add(2 * time.Second)
	require.Eventually(t, func() bool {
		_, _, _ = c.Get(ctx, "keep")
		return c.Count() == 1
	}, 2*time.Second, 5*time.Millisecond)
	for i := 0; i < 3; i++ {
		require.Equal(t, EvictionExpired, waitEviction(t, evs).reason)
	}
}

// Once the scan interval elapses, the next operation triggers a sweep.
func TestScan_IntervalElapsed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := newFakeClock()
	c := newTestCache(t, Options[string, int]{Clock: clk, ExpirationScanFrequency: time.Hour})

	require.NoError(t, c.SetWithTTL(ctx, "a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "b", 1))

	clk.add(2 * time.Minute)
	_, _, _ = c.Get(ctx, "b")
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 2, c.Count(), "scan must wait for the interval")

	clk.add(time.Hour)
	_, _, _ = c.Get(ctx, "b")
	require.Eventually(t, func() bool { return c.Count() == 1 }, 2*time.Second, 5*time.Millisecond)
}

// The background ticker sweeps without any cache traffic.
func TestScan_BackgroundTicker(t *testing.T) {
	t.Parallel()

	c := newTestCache(t, Options[string, int]{ExpirationScanFrequency: 10 * time.Millisecond})
	require.NoError(t, c.SetWithTTL(context.Background(), "a", 1, 20*time.Millisecond))
	require.Eventually(t, func() bool { return c.Count() == 0 }, 2*time.Second, 5*time.Millisecond)
}
