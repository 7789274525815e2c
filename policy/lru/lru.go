// Package lru implements the default compaction policy: priority tiers
// from Low to High, least recently accessed first within a tier.
package lru

import (
	"slices"

	"github.com/IvanBrykalov/memorycache/policy"
)

type lru struct{}

// New returns the priority-tiered LRU policy.
func New() policy.Policy { return lru{} }

// Select orders eligible candidates by (Priority, LastAccessed) ascending and
// takes them until the accumulated weight reaches target. NeverRemove
// candidates are skipped. Zero-weight candidates are still taken when they
// come up in order; they free nothing but do not stop the walk.
func (lru) Select(cands []policy.Candidate, target int64) []int {
	if target <= 0 || len(cands) == 0 {
		return nil
	}

	order := make([]int, 0, len(cands))
	for i := range cands {
		if cands[i].Priority >= policy.NeverRemove {
			continue
		}
		order = append(order, i)
	}
	// Stable so that equal timestamps keep snapshot order.
	slices.SortStableFunc(order, func(a, b int) int {
		ca, cb := cands[a], cands[b]
		if ca.Priority != cb.Priority {
			return int(ca.Priority) - int(cb.Priority)
		}
		switch {
		case ca.LastAccessed < cb.LastAccessed:
			return -1
		case ca.LastAccessed > cb.LastAccessed:
			return 1
		}
		return 0
	})

	var freed int64
	for n, i := range order {
		freed += cands[i].Weight
		if freed >= target {
			return order[:n+1]
		}
	}
	return order
}
