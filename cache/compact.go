package cache

import (
	"github.com/IvanBrykalov/memorycache/policy"
)

// weight is what removing an entry frees towards a compaction target.
type weight[K comparable, V any] func(*Entry[K, V]) int64

func sizeWeight[K comparable, V any](e *Entry[K, V]) int64 { return e.size }
func unitWeight[K comparable, V any](*Entry[K, V]) int64  { return 1 }

// compact removes expired entries, then asks the policy for enough live
// victims to free target and evicts them with EvictionCapacity. Callers
// hold compactMu. It returns the number of entries removed.
func (c *cache[K, V]) compact(target int64, w weight[K, V]) int {
	now := c.now()

	var all []*Entry[K, V]
	for _, s := range c.shards {
		all = s.appendTo(all)
	}

	var (
		victims []*Entry[K, V]
		freed   int64
		live    = make([]*Entry[K, V], 0, len(all))
		cands   = make([]policy.Candidate, 0, len(all))
	)
	for _, e := range all {
		if e.expired(now) {
			victims = append(victims, e)
			freed += w(e)
			continue
		}
		live = append(live, e)
		cands = append(cands, policy.Candidate{
			Priority:     e.priority,
			LastAccessed: e.lastAccessed.Load(),
			Weight:       w(e),
		})
	}
	expired := len(victims)

	removed := 0
	for _, e := range victims {
		if c.removeEntry(e, EvictionExpired) {
			removed++
		}
	}
	// The reason is latched only if the victim is still resident, so an
	// entry replaced meanwhile keeps EvictionReplaced.
	for _, i := range c.opt.Policy.Select(cands, target-freed) {
		if c.removeEntry(live[i], EvictionCapacity) {
			removed++
		}
	}
	if removed > 0 {
		c.reportSize()
		c.opt.Logger.Debug("cache: compacted", Fields{
			"target":  target,
			"expired": expired,
			"removed": removed,
			"size":    c.usage.size.Load(),
			"entries": c.usage.count.Load(),
		})
	}
	return removed
}

// makeRoom runs when a write of need more size units did not fit. Only one
// such compaction runs at a time; writers queued behind it re-check first.
func (c *cache[K, V]) makeRoom(need int64) {
	c.compactMu.Lock()
	defer c.compactMu.Unlock()

	cur := c.usage.size.Load()
	over := cur + need - c.opt.SizeLimit
	if over <= 0 {
		return
	}
	target := int64(float64(cur) * c.opt.CompactionPercentage)
	c.compact(max(target, over), sizeWeight[K, V])
}
