package redistoken

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/IvanBrykalov/memorycache/cache"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func newHub(t *testing.T, rdb redis.UniversalClient) *Hub {
	t.Helper()
	h, err := NewHub(context.Background(), rdb, "cache:invalidate")
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHub_InvalidateFiresTag(t *testing.T) {
	rdb := newClient(t)
	h := newHub(t, rdb)

	users := h.Token("users")
	orders := h.Token("orders")
	again := h.Token("users")

	require.NoError(t, h.Invalidate(context.Background(), "users"))
	require.Eventually(t, users.HasChanged, 2*time.Second, 5*time.Millisecond)
	require.True(t, again.HasChanged())
	require.False(t, orders.HasChanged())

	// Invalidated tags start over with a fresh token.
	next := h.Token("users")
	require.False(t, next.HasChanged())
}

// Two hubs model two processes sharing a Redis.
func TestHub_CrossProcess(t *testing.T) {
	rdb := newClient(t)
	a := newHub(t, rdb)
	b := newHub(t, rdb)

	ca, err := cache.New(cache.Options[string, int]{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ca.Close() })

	ctx := context.Background()
	require.NoError(t, ca.SetWithToken(ctx, "user:1", 1, a.Token("user:1")))

	require.NoError(t, Publish(ctx, rdb, "cache:invalidate", "user:1"))
	require.Eventually(t, func() bool {
		_, ok, _ := ca.Get(ctx, "user:1")
		return !ok
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, b.Invalidate(ctx, "unrelated"))
}

func TestHub_Close(t *testing.T) {
	rdb := newClient(t)
	h, err := NewHub(context.Background(), rdb, "ch")
	require.NoError(t, err)

	tok := h.Token("x")
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.ErrorIs(t, h.Invalidate(context.Background(), "x"), ErrClosed)
	require.False(t, tok.HasChanged())
	require.False(t, h.Token("x").HasChanged())
}

func TestNewHub_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	rdb := redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewHub(ctx, rdb, "ch")
	require.Error(t, err)
}

// A tag is dropped once every registration on it has stopped, and a
// token registered again is tracked again.
func TestHub_ReleasesStoppedTags(t *testing.T) {
	rdb := newClient(t)
	h := newHub(t, rdb)
	ctx := context.Background()

	tok := h.Token("a")
	require.Equal(t, 1, h.tracked())

	stop, ok := tok.RegisterChangeCallback(func() {})
	require.True(t, ok)
	stop()
	stop()
	require.Equal(t, 0, h.tracked())

	fired := make(chan struct{})
	_, ok = tok.RegisterChangeCallback(func() { close(fired) })
	require.True(t, ok)
	require.Equal(t, 1, h.tracked())

	require.NoError(t, h.Invalidate(ctx, "a"))
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("token did not fire")
	}
	require.Equal(t, 0, h.tracked())
}

// Evicting entries releases the tags their tokens held.
func TestHub_TagsFollowCacheEntries(t *testing.T) {
	rdb := newClient(t)
	h := newHub(t, rdb)
	ctx := context.Background()

	c, err := cache.New(cache.Options[string, int]{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	for i := 0; i < 100; i++ {
		k := "user:" + strconv.Itoa(i)
		require.NoError(t, c.SetWithToken(ctx, k, i, h.Token(k)))
	}
	require.Equal(t, 100, h.tracked())

	require.NoError(t, c.Remove("user:0"))
	require.Equal(t, 99, h.tracked())

	c.Clear()
	require.Equal(t, 0, h.tracked())
}
