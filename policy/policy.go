// Package policy defines how compaction picks entries to evict once the
// cache is over its size limit (or Compact is called explicitly).
package policy

// Priority is the eviction tier of an entry. Lower tiers are compacted
// first; NeverRemove entries are only removed by expiration or explicitly.
// The zero value is Normal.
type Priority int

const (
	// Low entries are the first compaction victims.
	Low Priority = iota - 1
	// Normal is the default tier.
	Normal
	// High entries are compacted only after every Low and Normal entry.
	High
	// NeverRemove entries are never chosen by compaction.
	NeverRemove
)

// String returns a stable lowercase name, suitable for metric labels.
func (p Priority) String() string {
	switch p {
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case NeverRemove:
		return "never_remove"
	default:
		return "unknown"
	}
}

// Candidate is a compaction input: one live, non-expired entry.
type Candidate struct {
	Priority Priority
	// LastAccessed is the UnixNano timestamp of the last read or write.
	LastAccessed int64
	// Weight is what removing the entry frees towards the target
	// (its size for capacity compaction, 1 for count-based compaction).
	Weight int64
}

// Policy selects victims among candidates.
//
// Select returns indexes into cands in eviction order. The cumulative
// Weight of the returned candidates must reach target unless the eligible
// candidates are exhausted first. A target <= 0 selects nothing.
// Implementations must not retain cands.
type Policy interface {
	Select(cands []Candidate, target int64) []int
}

// Func adapts an ordinary function to Policy.
type Func func(cands []Candidate, target int64) []int

// Select implements Policy.
func (f Func) Select(cands []Candidate, target int64) []int { return f(cands, target) }
