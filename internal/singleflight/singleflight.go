// Package singleflight coalesces concurrent calls that compute the same key.
package singleflight

import (
	"context"
	"errors"
	"sync"
)

// ErrLeaderPanicked is returned to followers whose leader's fn panicked.
// The leader itself re-panics with the original value.
var ErrLeaderPanicked = errors.New("singleflight: leader panicked")

// Group coalesces concurrent function calls for the same key K so that
// the supplied fn is executed at most once. Other concurrent callers
// wait for the shared result.
//
// Concurrency notes:
//   - The first caller for a given key becomes the leader and runs fn.
//   - Followers wait on c.done. Publishing (val, err) happens-before
//     close(c.done), so reads after <-done observe the final values.
//   - Cancelling ctx in a follower unblocks only that follower; it does
//     NOT cancel the leader's fn.
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed when val/err are published
	val  V
	err  error
	dups int
}

// Do runs fn once for the given key. Concurrent calls with the same key
// wait for the shared result; shared reports whether the result was
// delivered to more than one caller.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, err error, shared bool) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		c.dups++
		g.mu.Unlock()

		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err(), true
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	normal := false
	defer func() {
		if !normal {
			// fn panicked: followers must not block forever.
			c.err = ErrLeaderPanicked
		}
		g.mu.Lock()
		delete(g.m, key)
		shared = c.dups > 0
		g.mu.Unlock()
		close(c.done)
	}()

	c.val, c.err = fn()
	normal = true
	return c.val, c.err, false
}
