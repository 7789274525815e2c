package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/memorycache/token"
)

// PostEvictionCallback is invoked once after an entry leaves the cache, or
// after a committed entry was refused. state is the value passed at
// registration. Callbacks run on a dispatcher goroutine, never on the
// goroutine that caused the eviction.
type PostEvictionCallback[K comparable, V any] func(key K, value V, reason EvictionReason, state any)

type postEviction[K comparable, V any] struct {
	fn    PostEvictionCallback[K, V]
	state any
}

// Entry is both the builder handed out by CreateEntry and the record kept
// in the store once committed.
//
// Setters may be called until the entry is closed by Commit, Close or
// Discard; later calls are ignored. An Entry is not meant to be shared
// between goroutines while it is being built, except that child entries
// created from Context() may link into it concurrently.
type Entry[K comparable, V any] struct {
	c      *cache[K, V]
	key    K
	ctx    context.Context
	parent linker

	// ---- guarded by mu until closed; immutable afterwards ----
	mu        sync.Mutex
	closed    bool
	valueSet  bool
	value     V
	absExp    int64 // UnixNano; 0 = none
	relExp    time.Duration
	sliding   time.Duration
	size      int64
	sized     bool
	priority  Priority
	tokens    []token.ChangeToken
	callbacks []postEviction[K, V]

	// ---- guarded by mu for the whole lifetime ----
	stops    []func()
	detached bool

	lastAccessed atomic.Int64
	reason       atomic.Int32
	notified     atomic.Bool
}

// Key returns the entry key.
func (e *Entry[K, V]) Key() K { return e.key }

// Value returns the value set so far.
func (e *Entry[K, V]) Value() V {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Context returns a context in which e is the current entry scope. Entries
// created (and values read) with it link their expiration into e.
func (e *Entry[K, V]) Context() context.Context { return e.ctx }

// SetValue sets the value to store on commit.
func (e *Entry[K, V]) SetValue(v V) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.value = v
	e.valueSet = true
}

// SetPriority sets the compaction tier.
func (e *Entry[K, V]) SetPriority(p Priority) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.priority = p
	}
}

// SetAbsoluteExpiration sets the instant after which the entry is invalid.
// A zero t clears it. A time already in the past makes the entry expire on
// commit.
func (e *Entry[K, V]) SetAbsoluteExpiration(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if t.IsZero() {
		e.absExp = 0
		return
	}
	e.absExp = t.UnixNano()
}

// SetAbsoluteExpirationRelative expires the entry d after it is committed.
// When an absolute expiration is also set, the earlier one wins.
func (e *Entry[K, V]) SetAbsoluteExpirationRelative(d time.Duration) error {
	if d <= 0 {
		return ErrNonPositiveDuration
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.relExp = d
	}
	return nil
}

// SetSlidingExpiration expires the entry once it has not been accessed
// for d. It never extends past the absolute expiration.
func (e *Entry[K, V]) SetSlidingExpiration(d time.Duration) error {
	if d <= 0 {
		return ErrNonPositiveDuration
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.sliding = d
	}
	return nil
}

// SetSize sets the entry size in the units of Options.SizeLimit.
func (e *Entry[K, V]) SetSize(n int64) error {
	if n < 0 {
		return ErrNegativeSize
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.size, e.sized = n, true
	}
	return nil
}

// AddExpirationToken expires the entry when t changes.
func (e *Entry[K, V]) AddExpirationToken(t token.ChangeToken) error {
	if t == nil {
		return ErrNilToken
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.tokens = append(e.tokens, t)
	}
	return nil
}

// RegisterPostEvictionCallback appends cb; callbacks run in registration order.
func (e *Entry[K, V]) RegisterPostEvictionCallback(cb PostEvictionCallback[K, V], state any) error {
	if cb == nil {
		return ErrNilCallback
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.callbacks = append(e.callbacks, postEviction[K, V]{fn: cb, state: state})
	}
	return nil
}

// Commit stores the entry and links it into the parent scope.
// It fails with ErrValueNotSet if SetValue was never called; the entry then
// stays open. Committing a closed entry is a no-op.
func (e *Entry[K, V]) Commit() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	if !e.valueSet {
		e.mu.Unlock()
		return ErrValueNotSet
	}
	e.closed = true
	e.mu.Unlock()
	return e.commit()
}

// Discard closes the entry without storing it or touching the parent.
func (e *Entry[K, V]) Discard() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}

// Close commits the entry if a value was set and discards it otherwise,
// which makes it suitable for defer. Close is idempotent.
func (e *Entry[K, V]) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	commit := e.valueSet
	e.mu.Unlock()
	if !commit {
		return nil
	}
	return e.commit()
}

func (e *Entry[K, V]) commit() error {
	if err := e.c.setEntry(e); err != nil {
		return err
	}
	link(e.parent, e)
	return nil
}

// inherit implements linker: a committed child (or a value read inside
// this scope) passes its tokens and absolute expiration up.
func (e *Entry[K, V]) inherit(tokens []token.ChangeToken, absExp int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.tokens = append(e.tokens, tokens...)
	if absExp != 0 && (e.absExp == 0 || absExp < e.absExp) {
		e.absExp = absExp
	}
}

// ---- committed-entry state ----

// expired reports whether the entry is no longer valid at now, latching
// the first reason found.
func (e *Entry[K, V]) expired(now int64) bool {
	if e.evictionReason() != EvictionNone {
		return true
	}
	if e.absExp != 0 && e.absExp <= now {
		e.setExpired(EvictionExpired)
		return true
	}
	if e.sliding > 0 && now-e.lastAccessed.Load() >= int64(e.sliding) {
		e.setExpired(EvictionExpired)
		return true
	}
	for _, t := range e.tokens {
		if t.HasChanged() {
			e.setExpired(EvictionTokenExpired)
			return true
		}
	}
	return false
}

// setExpired records reason unless another reason was recorded first.
func (e *Entry[K, V]) setExpired(reason EvictionReason) {
	e.reason.CompareAndSwap(int32(EvictionNone), int32(reason))
}

func (e *Entry[K, V]) evictionReason() EvictionReason {
	return EvictionReason(e.reason.Load())
}

// attachTokens registers onChange with every active token. Registration
// happens outside mu because a token may call back synchronously.
func (e *Entry[K, V]) attachTokens(onChange func()) {
	if len(e.tokens) == 0 {
		return
	}
	var stops []func()
	for _, t := range e.tokens {
		if stop, ok := t.RegisterChangeCallback(onChange); ok && stop != nil {
			stops = append(stops, stop)
		}
	}
	e.mu.Lock()
	if e.detached {
		e.mu.Unlock()
		for _, stop := range stops {
			stop()
		}
		return
	}
	e.stops = stops
	e.mu.Unlock()
}

// detachTokens drops token registrations once the entry left the store.
func (e *Entry[K, V]) detachTokens() {
	e.mu.Lock()
	stops := e.stops
	e.stops, e.detached = nil, true
	e.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}
