package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/memorycache/internal/singleflight"
	"github.com/IvanBrykalov/memorycache/internal/util"
	"github.com/IvanBrykalov/memorycache/token"
)

// cache is the sharded store behind Cache.
type cache[K comparable, V any] struct {
	opt    Options[K, V]
	shards []*shard[K, V]
	usage  *usage

	compactMu sync.Mutex
	lastScan  atomic.Int64
	scanning  atomic.Bool

	// singleflight group for coalescing concurrent GetOrCreate factories.
	sf singleflight.Group[K, *Entry[K, V]]
	cb *dispatcher

	closed      atomic.Bool
	bgMu        sync.Mutex // orders bg.Add against Close
	bg          sync.WaitGroup
	stopScanner context.CancelFunc
}

// New constructs a cache with the provided Options.
// It returns an error wrapping ErrOutOfRange for invalid settings.
func New[K comparable, V any](opt Options[K, V]) (Cache[K, V], error) {
	opt, err := opt.withDefaults()
	if err != nil {
		return nil, err
	}
	c := &cache[K, V]{
		opt:   opt,
		usage: &usage{limit: opt.SizeLimit},
		cb:    newDispatcher(opt.CallbackWorkers, opt.CallbackQueue),
	}
	c.shards = make([]*shard[K, V], opt.Shards)
	for i := range c.shards {
		c.shards[i] = newShard[K, V](c.usage)
	}
	c.lastScan.Store(c.now())
	c.startScanner()
	return c, nil
}

// MustNew is like New but panics on invalid options.
func MustNew[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	c, err := New(opt)
	if err != nil {
		panic(err)
	}
	return c
}

// ---- Cache[K,V] implementation ----

func (c *cache[K, V]) CreateEntry(ctx context.Context, key K) (*Entry[K, V], error) {
	if util.IsNil(key) {
		return nil, ErrNilKey
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}
	e := &Entry[K, V]{c: c, key: key, parent: scopeFrom(ctx)}
	e.ctx = withScope(ctx, e)
	return e, nil
}

func (c *cache[K, V]) Set(ctx context.Context, k K, v V) error {
	return c.SetWithOptions(ctx, k, v, EntryOptions[K, V]{})
}

func (c *cache[K, V]) SetWithOptions(ctx context.Context, k K, v V, opts EntryOptions[K, V]) error {
	e, err := c.CreateEntry(ctx, k)
	if err != nil {
		return err
	}
	if err := e.Apply(opts); err != nil {
		e.Discard()
		return err
	}
	e.SetValue(v)
	return e.Close()
}

func (c *cache[K, V]) SetWithTTL(ctx context.Context, k K, v V, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNonPositiveDuration
	}
	return c.SetWithOptions(ctx, k, v, EntryOptions[K, V]{AbsoluteExpirationRelativeToNow: ttl})
}

func (c *cache[K, V]) SetWithAbsoluteExpiration(ctx context.Context, k K, v V, t time.Time) error {
	return c.SetWithOptions(ctx, k, v, EntryOptions[K, V]{AbsoluteExpiration: t})
}

func (c *cache[K, V]) SetWithSlidingExpiration(ctx context.Context, k K, v V, d time.Duration) error {
	if d <= 0 {
		return ErrNonPositiveDuration
	}
	return c.SetWithOptions(ctx, k, v, EntryOptions[K, V]{SlidingExpiration: d})
}

func (c *cache[K, V]) SetWithToken(ctx context.Context, k K, v V, tok token.ChangeToken) error {
	if tok == nil {
		return ErrNilToken
	}
	return c.SetWithOptions(ctx, k, v, EntryOptions[K, V]{ExpirationTokens: []token.ChangeToken{tok}})
}

// Get returns the value for k. A hit refreshes the sliding window and links
// the entry's tokens and absolute expiration into the scope in ctx. An entry
// found invalid is evicted on the spot.
func (c *cache[K, V]) Get(ctx context.Context, k K) (V, bool, error) {
	var zero V
	e, err := c.lookup(ctx, k)
	if err != nil || e == nil {
		return zero, false, err
	}
	return e.value, true, nil
}

// lookup is Get returning the entry that served the hit (nil on a miss).
func (c *cache[K, V]) lookup(ctx context.Context, k K) (*Entry[K, V], error) {
	if util.IsNil(k) {
		return nil, ErrNilKey
	}
	if c.closed.Load() {
		return nil, ErrClosed
	}

	now := c.now()
	s := c.shardFor(k)
	if e := s.get(k); e != nil {
		// An entry replaced after the lookup is still a consistent read.
		if !e.expired(now) || e.evictionReason() == EvictionReplaced {
			e.lastAccessed.Store(now)
			link(scopeFrom(ctx), e)
			s.hits.Add(1)
			c.opt.Metrics.Hit()
			c.maybeScan(now)
			return e, nil
		}
		if c.removeEntry(e, EvictionExpired) {
			c.reportSize()
		}
	}
	s.misses.Add(1)
	c.opt.Metrics.Miss()
	c.maybeScan(now)
	return nil, nil
}

func (c *cache[K, V]) GetOrCreate(ctx context.Context, k K, factory func(e *Entry[K, V]) (V, error)) (V, error) {
	var zero V
	if e, err := c.lookup(ctx, k); err != nil || e != nil {
		if err != nil {
			return zero, err
		}
		return e.value, nil
	}
	leader := false
	e, err, _ := c.sf.Do(ctx, k, func() (*Entry[K, V], error) {
		leader = true
		// double-check after joining the flight
		if e, err := c.lookup(ctx, k); err != nil || e != nil {
			return e, err
		}
		return c.create(ctx, k, factory)
	})
	if err != nil {
		return zero, err
	}
	// The leader's scope was linked by lookup or commit; callers that
	// waited on the flight link their own scope here.
	if !leader {
		link(scopeFrom(ctx), e)
	}
	return e.value, nil
}

// create runs factory in a fresh entry scope and commits its result.
// The returned entry carries the resolved expiration even when it was not
// stored.
func (c *cache[K, V]) create(ctx context.Context, k K, factory func(e *Entry[K, V]) (V, error)) (*Entry[K, V], error) {
	e, err := c.CreateEntry(ctx, k)
	if err != nil {
		return nil, err
	}
	// Discard after a successful Close is a no-op; after a panic it keeps
	// the half-built entry out of the store.
	defer e.Discard()

	v, err := factory(e)
	if err != nil {
		return nil, err
	}
	e.SetValue(v)
	if err := e.Close(); err != nil {
		return nil, err
	}
	return e, nil
}

func (c *cache[K, V]) Remove(k K) error {
	if util.IsNil(k) {
		return ErrNilKey
	}
	if c.closed.Load() {
		return ErrClosed
	}
	if c.removeKey(k, EvictionRemoved) {
		c.reportSize()
	}
	c.maybeScan(c.now())
	return nil
}

func (c *cache[K, V]) Compact(percentage float64) error {
	if percentage < 0 || percentage > 1 {
		return ErrInvalidCompactionPercentage
	}
	if c.closed.Load() {
		return ErrClosed
	}
	c.compactMu.Lock()
	defer c.compactMu.Unlock()
	target := int64(float64(c.usage.count.Load()) * percentage)
	c.compact(target, unitWeight[K, V])
	return nil
}

func (c *cache[K, V]) Clear() {
	n := 0
	for _, s := range c.shards {
		for _, e := range s.drain(EvictionRemoved, false) {
			c.evicted(e)
			n++
		}
	}
	if n > 0 {
		c.reportSize()
	}
}

func (c *cache[K, V]) Count() int  { return int(c.usage.count.Load()) }
func (c *cache[K, V]) Size() int64 { return c.usage.size.Load() }

func (c *cache[K, V]) Stats() Stats {
	st := Stats{Entries: c.Count(), Size: c.Size()}
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evictions.Load()
	}
	return st
}

func (c *cache[K, V]) Close() error {
	// Flipping closed under bgMu means no goBackground call can Add later.
	c.bgMu.Lock()
	if c.closed.Load() {
		c.bgMu.Unlock()
		return ErrClosed
	}
	c.closed.Store(true)
	c.bgMu.Unlock()

	if c.stopScanner != nil {
		c.stopScanner()
	}
	c.bg.Wait()

	dropped := 0
	for _, s := range c.shards {
		for _, e := range s.drain(EvictionRemoved, true) {
			e.detachTokens()
			dropped++
		}
	}
	c.cb.close()
	c.opt.Logger.Debug("cache: closed", Fields{"dropped": dropped})
	return nil
}

// ---- store internals ----

// link passes e's tokens and absolute expiration to the entry scope l.
func link[K comparable, V any](l linker, e *Entry[K, V]) {
	if l != nil && (len(e.tokens) > 0 || e.absExp != 0) {
		l.inherit(e.tokens, e.absExp)
	}
}

// setEntry commits e: it resolves relative expiration, enforces the size
// limit and swaps e into its shard, evicting the prior entry for the key.
func (c *cache[K, V]) setEntry(e *Entry[K, V]) error {
	if c.closed.Load() {
		return ErrClosed
	}
	now := c.now()
	if e.relExp > 0 {
		abs := now + int64(e.relExp)
		if e.absExp == 0 || abs < e.absExp {
			e.absExp = abs
		}
	}
	if c.opt.SizeLimit > 0 && !e.sized {
		if c.opt.Sizer == nil {
			return ErrSizeRequired
		}
		e.size, e.sized = max(0, c.opt.Sizer(e.key, e.value)), true
	}
	e.lastAccessed.Store(now)

	// Already invalid: never stored, but it still displaces the old value.
	if e.expired(now) {
		c.removeKey(e.key, EvictionReplaced)
		c.notify(e)
		c.reportSize()
		return nil
	}
	if c.opt.SizeLimit > 0 && e.size > c.opt.SizeLimit {
		c.reject(e, now)
		return nil
	}

	s := c.shardFor(e.key)
	prior, err := s.swap(e)
	if errors.Is(err, errNoRoom) {
		need := e.size
		if prior != nil {
			need -= prior.size
		}
		c.makeRoom(need)
		if prior, err = s.swap(e); errors.Is(err, errNoRoom) {
			c.reject(e, now)
			return nil
		}
	}
	if err != nil {
		return err
	}
	if prior != nil {
		c.evicted(prior)
	}
	e.attachTokens(func() {
		if c.removeEntry(e, EvictionTokenExpired) {
			c.reportSize()
		}
	})
	c.reportSize()
	c.maybeScan(now)
	return nil
}

// reject drops a committed entry that cannot fit under SizeLimit.
func (c *cache[K, V]) reject(e *Entry[K, V], now int64) {
	e.setExpired(EvictionCapacity)
	c.removeKey(e.key, EvictionReplaced)
	c.shardFor(e.key).evictions.Add(1)
	c.opt.Metrics.Evict(EvictionCapacity)
	c.opt.Logger.Debug("cache: entry rejected over size limit", Fields{
		"key":   e.key,
		"size":  e.size,
		"limit": c.opt.SizeLimit,
	})
	c.notify(e)
	c.reportSize()
	c.maybeScan(now)
}

// removeEntry evicts e if it is still resident. reason applies unless the
// entry already recorded one.
func (c *cache[K, V]) removeEntry(e *Entry[K, V], reason EvictionReason) bool {
	if !c.shardFor(e.key).removeIf(e, reason) {
		return false
	}
	c.evicted(e)
	return true
}

// removeKey evicts whatever entry is resident for k, recording reason.
func (c *cache[K, V]) removeKey(k K, reason EvictionReason) bool {
	e := c.shardFor(k).remove(k, reason)
	if e == nil {
		return false
	}
	c.evicted(e)
	return true
}

// evicted finishes an entry that has just left its shard.
func (c *cache[K, V]) evicted(e *Entry[K, V]) {
	e.detachTokens()
	c.shardFor(e.key).evictions.Add(1)
	c.opt.Metrics.Evict(e.evictionReason())
	c.notify(e)
}

// notify queues e's callbacks, at most once per entry.
func (c *cache[K, V]) notify(e *Entry[K, V]) {
	if len(e.callbacks) == 0 || !e.notified.CompareAndSwap(false, true) {
		return
	}
	reason := e.evictionReason()
	c.cb.submit(func() {
		for _, cb := range e.callbacks {
			c.invoke(e, cb, reason)
		}
	})
}

func (c *cache[K, V]) invoke(e *Entry[K, V], cb postEviction[K, V], reason EvictionReason) {
	defer func() {
		if r := recover(); r != nil {
			c.opt.Logger.Error("cache: post-eviction callback panicked", Fields{
				"key":    e.key,
				"reason": reason.String(),
				"panic":  r,
			})
		}
	}()
	cb.fn(e.key, e.value, reason, cb.state)
}

// goBackground runs fn on a goroutine tracked by Close. It returns false
// once the cache is closed.
func (c *cache[K, V]) goBackground(fn func()) bool {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.closed.Load() {
		return false
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn()
	}()
	return true
}

func (c *cache[K, V]) reportSize() {
	c.opt.Metrics.Size(int(c.usage.count.Load()), c.usage.size.Load())
}

// shardFor picks a shard by hashing the key; len(c.shards) is a power of two.
func (c *cache[K, V]) shardFor(k K) *shard[K, V] {
	return c.shards[util.ShardIndex(c.opt.Hasher(k), len(c.shards))]
}

func (c *cache[K, V]) now() int64 { return c.opt.Clock.NowUnixNano() }
