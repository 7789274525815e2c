package cache

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/IvanBrykalov/memorycache/internal/util"
)

// usage is the cache-wide size/count accounting. It is only modified while
// holding the lock of the shard whose map changes, so at quiescent points
// size equals the sum of the resident entries' sizes.
type usage struct {
	size  atomic.Int64
	count atomic.Int64
	limit int64 // 0 = unbounded
}

// reserve applies delta to size, failing if that would exceed limit.
func (u *usage) reserve(delta int64) bool {
	if u.limit == 0 || delta <= 0 {
		u.size.Add(delta)
		return true
	}
	for {
		cur := u.size.Load()
		next := cur + delta
		if next > u.limit {
			return false
		}
		if u.size.CompareAndSwap(cur, next) {
			return true
		}
	}
}

// errNoRoom reports that a swap would push usage over the size limit.
var errNoRoom = errors.New("cache: no room under size limit")

// shard is an independent partition of the store with its own lock and map.
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu sync.RWMutex
	m      map[K]*Entry[K, V]
	closed bool

	u *usage

	// ---- hot counters (separate cache lines to avoid false sharing) ----
	_         util.CacheLinePad
	hits      util.PaddedAtomicInt64
	misses    util.PaddedAtomicInt64
	evictions util.PaddedAtomicInt64
}

func newShard[K comparable, V any](u *usage) *shard[K, V] {
	return &shard[K, V]{m: make(map[K]*Entry[K, V]), u: u}
}

// get returns the resident entry for k, valid or not.
func (s *shard[K, V]) get(k K) *Entry[K, V] {
	s.mu.RLock()
	e := s.m[k]
	s.mu.RUnlock()
	return e
}

// swap installs e in place of the current entry for its key if the size
// delta fits, latching EvictionReplaced on the displaced entry. On
// errNoRoom, prior is the entry that would have been replaced. A shard
// drained by Close refuses with ErrClosed.
func (s *shard[K, V]) swap(e *Entry[K, V]) (prior *Entry[K, V], err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	prior = s.m[e.key]
	delta := e.size
	if prior != nil {
		delta -= prior.size
	}
	if !s.u.reserve(delta) {
		return prior, errNoRoom
	}
	s.m[e.key] = e
	if prior == nil {
		s.u.count.Add(1)
	} else {
		prior.setExpired(EvictionReplaced)
	}
	return prior, nil
}

// removeIf deletes e only if it is still the resident entry for its key,
// latching reason while the entry is known to be resident.
func (s *shard[K, V]) removeIf(e *Entry[K, V], reason EvictionReason) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.m[e.key] != e {
		return false
	}
	e.setExpired(reason)
	s.deleteLocked(e)
	return true
}

// remove deletes whatever entry is resident for k, latching reason on it.
func (s *shard[K, V]) remove(k K, reason EvictionReason) *Entry[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.m[k]
	if e != nil {
		e.setExpired(reason)
		s.deleteLocked(e)
	}
	return e
}

// drain empties the shard and returns what it held, latching reason on
// every entry. closing makes later swaps fail with ErrClosed.
func (s *shard[K, V]) drain(reason EvictionReason, closing bool) []*Entry[K, V] {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Entry[K, V], 0, len(s.m))
	for _, e := range s.m {
		e.setExpired(reason)
		out = append(out, e)
		s.u.size.Add(-e.size)
	}
	s.u.count.Add(-int64(len(s.m)))
	s.m = make(map[K]*Entry[K, V])
	s.closed = s.closed || closing
	return out
}

// appendTo appends the resident entries to dst under the read lock.
func (s *shard[K, V]) appendTo(dst []*Entry[K, V]) []*Entry[K, V] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.m {
		dst = append(dst, e)
	}
	return dst
}

func (s *shard[K, V]) deleteLocked(e *Entry[K, V]) {
	delete(s.m, e.key)
	s.u.size.Add(-e.size)
	s.u.count.Add(-1)
}
