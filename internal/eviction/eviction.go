// Package eviction orders cache entries for eviction and decides expiry.
//
// Callers evict from the front of the order:
//
//	LRU, Hybrid  longest idle first
//	LFU          fewest accesses first (ties: longest idle)
//	FIFO         oldest creation first
//	TimeBased    ascending age (youngest first)
//	Adaptive     ascending score, where
//	             score = 0.3·norm(age) + 0.4·norm(idle) + 0.3/accessCount
//	             and norm caps a duration at one hour
//
// Under TimeBased the TTL sweep retires old entries.
//
// Ties always fall back to key order so results are deterministic.
package eviction

import (
	"sort"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

const (
	adaptiveAgeWeight   = 0.3
	adaptiveIdleWeight  = 0.4
	adaptiveCountWeight = 0.3
	adaptiveHorizon     = time.Hour
)

// Order returns a new slice of entries sorted evict-first to evict-last
// under strategy. The input slice is not modified.
func Order(entries []*types.Entry, strategy types.Strategy, now time.Time) []*types.Entry {
	out := make([]*types.Entry, len(entries))
	copy(out, entries)

	var less func(a, b *types.Entry) bool
	switch strategy.Kind {
	case types.StrategyLFU:
		less = func(a, b *types.Entry) bool {
			if a.AccessCount != b.AccessCount {
				return a.AccessCount < b.AccessCount
			}
			return a.LastAccessAt.Before(b.LastAccessAt)
		}
	case types.StrategyFIFO:
		less = func(a, b *types.Entry) bool {
			return a.CreatedAt.Before(b.CreatedAt)
		}
	case types.StrategyTimeBased:
		less = func(a, b *types.Entry) bool {
			return a.Age(now) < b.Age(now)
		}
	case types.StrategyAdaptive:
		scores := make(map[*types.Entry]float64, len(out))
		for _, e := range out {
			scores[e] = Score(e, now)
		}
		less = func(a, b *types.Entry) bool {
			return scores[a] < scores[b]
		}
	default: // LRU, Hybrid
		less = func(a, b *types.Entry) bool {
			return a.Idle(now) > b.Idle(now)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if less(a, b) {
			return true
		}
		if less(b, a) {
			return false
		}
		return a.Key < b.Key
	})
	return out
}

// Score is the adaptive eviction score. Higher means less worth keeping.
func Score(e *types.Entry, now time.Time) float64 {
	count := e.AccessCount
	if count < 1 {
		count = 1
	}
	return adaptiveAgeWeight*normalize(e.Age(now)) +
		adaptiveIdleWeight*normalize(e.Idle(now)) +
		adaptiveCountWeight/float64(count)
}

func normalize(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	if d >= adaptiveHorizon {
		return 1
	}
	return float64(d) / float64(adaptiveHorizon)
}

// IsExpired reports whether e has outlived the strategy's TTL. Only
// TimeBased and Hybrid expire entries.
func IsExpired(e *types.Entry, strategy types.Strategy, now time.Time) bool {
	if !strategy.HasTTL() {
		return false
	}
	return e.Age(now) > strategy.TTL
}

// Expired returns the entries IsExpired selects, in input order.
func Expired(entries []*types.Entry, strategy types.Strategy, now time.Time) []*types.Entry {
	if !strategy.HasTTL() {
		return nil
	}
	var out []*types.Entry
	for _, e := range entries {
		if IsExpired(e, strategy, now) {
			out = append(out, e)
		}
	}
	return out
}
