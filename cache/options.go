package cache

import (
	"runtime"
	"time"

	"github.com/IvanBrykalov/memorycache/internal/util"
	"github.com/IvanBrykalov/memorycache/policy"
	"github.com/IvanBrykalov/memorycache/policy/lru"
)

// EvictionReason explains why an entry left the cache (or was never stored).
type EvictionReason int32

const (
	// EvictionNone means the entry is still live.
	EvictionNone EvictionReason = iota
	// EvictionRemoved: explicit Remove or Clear.
	EvictionRemoved
	// EvictionReplaced: another Set for the same key took its place.
	EvictionReplaced
	// EvictionExpired: absolute or sliding expiration elapsed.
	EvictionExpired
	// EvictionTokenExpired: one of its change tokens fired.
	EvictionTokenExpired
	// EvictionCapacity: removed (or rejected) to respect SizeLimit, or by Compact.
	EvictionCapacity
)

// String returns a stable lowercase label.
func (r EvictionReason) String() string {
	switch r {
	case EvictionNone:
		return "none"
	case EvictionRemoved:
		return "removed"
	case EvictionReplaced:
		return "replaced"
	case EvictionExpired:
		return "expired"
	case EvictionTokenExpired:
		return "token_expired"
	case EvictionCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Priority is the compaction tier of an entry. The zero value is PriorityNormal.
type Priority = policy.Priority

const (
	PriorityLow         = policy.Low
	PriorityNormal      = policy.Normal
	PriorityHigh        = policy.High
	PriorityNeverRemove = policy.NeverRemove
)

// Metrics exposes cache-level observability hooks.
// A NoopMetrics implementation is provided and used by default.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictionReason)
	Size(entries int, size int64)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

type systemClock struct{}

func (systemClock) NowUnixNano() int64 { return time.Now().UnixNano() }

const (
	// DefaultCompactionPercentage is used when Options.CompactionPercentage is 0.
	DefaultCompactionPercentage = 0.05
	// DefaultExpirationScanFrequency is used when Options.ExpirationScanFrequency is 0.
	DefaultExpirationScanFrequency = time.Minute
	// ScanOnAccess makes every cache operation start an expiration scan
	// (one at a time) and disables the background ticker.
	ScanOnAccess time.Duration = -1
)

// Options configures the cache behavior. Zero values are safe;
// defaults are applied in New():
//   - SizeLimit 0                 => unbounded
//   - CompactionPercentage 0      => 0.05
//   - ExpirationScanFrequency 0   => 1 minute
//   - Shards <= 0                 => auto (≈ 2*GOMAXPROCS, power of two)
//   - nil Policy                  => priority-tiered LRU
//   - nil Metrics / Logger        => no-op
//   - nil Clock                   => time.Now()
type Options[K comparable, V any] struct {
	// SizeLimit caps the sum of entry sizes. Units are whatever the caller
	// uses for Entry.SetSize. When set, every entry needs a size.
	SizeLimit int64

	// CompactionPercentage is the fraction of the current total size freed
	// when a write overflows SizeLimit.
	CompactionPercentage float64

	// ExpirationScanFrequency is the minimum interval between expiration
	// scans. A background ticker runs at this interval; operations also start
	// a scan once it has elapsed since the last one. See ScanOnAccess.
	ExpirationScanFrequency time.Duration

	// Shards defines the number of shards, rounded up to a power of two.
	Shards int

	// Hasher overrides the key hash used for shard selection.
	Hasher func(K) uint64

	// Policy picks compaction victims.
	Policy policy.Policy

	// Sizer computes the size of entries that did not set one explicitly.
	// Only consulted when SizeLimit is set.
	Sizer func(k K, v V) int64

	// CallbackWorkers is the number of goroutines running post-eviction
	// callbacks (default 2). CallbackQueue is the buffered queue in front of
	// them (default 1024); when it is full, callbacks get their own goroutine.
	CallbackWorkers int
	CallbackQueue   int

	// Observability
	Metrics Metrics
	Logger  Logger

	// Clock allows overriding time source (tests). Nil => time.Now().
	Clock Clock
}

// withDefaults validates opt and fills in defaults.
func (opt Options[K, V]) withDefaults() (Options[K, V], error) {
	if opt.SizeLimit < 0 {
		return opt, ErrInvalidSizeLimit
	}
	if opt.CompactionPercentage < 0 || opt.CompactionPercentage > 1 {
		return opt, ErrInvalidCompactionPercentage
	}
	if opt.CompactionPercentage == 0 {
		opt.CompactionPercentage = DefaultCompactionPercentage
	}
	switch {
	case opt.ExpirationScanFrequency == 0:
		opt.ExpirationScanFrequency = DefaultExpirationScanFrequency
	case opt.ExpirationScanFrequency < 0 && opt.ExpirationScanFrequency != ScanOnAccess:
		return opt, ErrInvalidScanFrequency
	}
	opt.Shards = util.ShardCount(opt.Shards)
	if opt.Hasher == nil {
		opt.Hasher = util.NewHasher[K]()
	}
	if opt.Policy == nil {
		opt.Policy = lru.New()
	}
	if opt.CallbackWorkers <= 0 {
		opt.CallbackWorkers = min(2, runtime.GOMAXPROCS(0))
	}
	if opt.CallbackQueue <= 0 {
		opt.CallbackQueue = 1024
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = NopLogger{}
	}
	if opt.Clock == nil {
		opt.Clock = systemClock{}
	}
	return opt, nil
}
