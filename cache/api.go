package cache

import (
	"context"
	"time"

	"github.com/IvanBrykalov/memorycache/token"
)

// Cache is a sharded, in-memory key/value cache with per-entry expiration,
// size-limited compaction and post-eviction callbacks.
// All methods are safe for concurrent use by multiple goroutines.
//
// Every method taking a context uses it for the entry scope: when ctx comes
// from Entry.Context(), writes and hits inside it link their tokens and
// absolute expiration into that entry.
type Cache[K comparable, V any] interface {
	// CreateEntry starts building an entry for key. Nothing is stored until
	// the entry is committed (Commit or Close with a value set).
	CreateEntry(ctx context.Context, key K) (*Entry[K, V], error)

	// Set stores k→v with no expiration.
	Set(ctx context.Context, k K, v V) error
	// SetWithOptions stores k→v configured by opts.
	SetWithOptions(ctx context.Context, k K, v V, opts EntryOptions[K, V]) error
	// SetWithTTL stores k→v expiring ttl from now.
	SetWithTTL(ctx context.Context, k K, v V, ttl time.Duration) error
	// SetWithAbsoluteExpiration stores k→v expiring at t.
	SetWithAbsoluteExpiration(ctx context.Context, k K, v V, t time.Time) error
	// SetWithSlidingExpiration stores k→v expiring after d without access.
	SetWithSlidingExpiration(ctx context.Context, k K, v V, d time.Duration) error
	// SetWithToken stores k→v expiring when tok changes.
	SetWithToken(ctx context.Context, k K, v V, tok token.ChangeToken) error

	// Get returns the value for k and whether it was present and valid.
	Get(ctx context.Context, k K) (V, bool, error)

	// GetOrCreate returns the cached value or runs factory inside a new
	// entry scope and commits its result. Concurrent callers for the same
	// key share one factory run; a failing or panicking factory commits
	// nothing. factory must not call GetOrCreate for the same key.
	GetOrCreate(ctx context.Context, k K, factory func(e *Entry[K, V]) (V, error)) (V, error)

	// Remove evicts k with EvictionRemoved. Removing a missing key is not an error.
	Remove(k K) error

	// Compact removes percentage (0..1) of the entries, expired ones
	// first, then by priority and least recent access.
	Compact(percentage float64) error

	// Clear evicts everything with EvictionRemoved.
	Clear()

	// Count returns the number of resident entries (valid or not yet scanned).
	Count() int
	// Size returns the sum of resident entry sizes.
	Size() int64
	// Stats returns a snapshot of the counters.
	Stats() Stats

	// Close stops background work, waits for queued callbacks and drops
	// the store without invoking callbacks. Later calls return ErrClosed.
	Close() error
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Entries   int
	Size      int64
}

// HitRate returns Hits / (Hits + Misses), or 0 with no lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
