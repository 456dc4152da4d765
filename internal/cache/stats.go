package cache

import (
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

const defaultHitHistorySize = 1000

type hitRecord struct {
	key string
	at  time.Time
}

// statsTracker holds the counters and hit history. Callers hold the
// coordinator lock.
type statsTracker struct {
	stats     types.Statistics
	completed int64
	// epoch advances on every reset; lookups begun in an older epoch
	// are not recorded.
	epoch uint64

	history    []hitRecord
	maxHistory int
}

func newStatsTracker(maxHistory int) *statsTracker {
	if maxHistory <= 0 {
		maxHistory = defaultHitHistorySize
	}
	return &statsTracker{maxHistory: maxHistory}
}

// begin counts a request before any tier is probed and returns the epoch
// to pass to finish.
func (s *statsTracker) begin() uint64 {
	s.stats.TotalRequests++
	return s.epoch
}

// finish records the outcome of one request begun in epoch. The response
// time feeds a running mean over all completed requests, hits and misses
// alike. It reports false when a reset intervened and nothing was recorded.
func (s *statsTracker) finish(epoch uint64, key string, hit bool, elapsed time.Duration, now time.Time) bool {
	if epoch != s.epoch {
		return false
	}
	if hit {
		s.stats.Hits++
		s.recordHit(key, now)
	} else {
		s.stats.Misses++
	}
	s.updateHitRate()

	s.completed++
	avg := s.stats.AverageResponseTime
	s.stats.AverageResponseTime = avg + (elapsed-avg)/time.Duration(s.completed)
	return true
}

func (s *statsTracker) updateHitRate() {
	if s.stats.TotalRequests == 0 {
		s.stats.HitRate = 0
		return
	}
	s.stats.HitRate = float64(s.stats.Hits) / float64(s.stats.TotalRequests)
}

func (s *statsTracker) recordHit(key string, now time.Time) {
	if len(s.history) >= s.maxHistory {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	s.history = append(s.history, hitRecord{key: key, at: now})
}

func (s *statsTracker) evicted(n int) {
	s.stats.EvictionCount += int64(n)
}

func (s *statsTracker) failed() {
	s.stats.ErrorCount++
}

// forget drops the hit history of one key.
func (s *statsTracker) forget(key string) {
	kept := s.history[:0]
	for _, r := range s.history {
		if r.key != key {
			kept = append(kept, r)
		}
	}
	clear(s.history[len(kept):])
	s.history = kept
}

func (s *statsTracker) reset() {
	s.stats = types.Statistics{}
	s.completed = 0
	s.history = nil
	s.epoch++
}

// trend returns hits per second among records inside window.
func (s *statsTracker) trend(window time.Duration, now time.Time) float64 {
	if window <= 0 {
		return 0
	}
	cutoff := now.Add(-window)
	hits := 0
	for _, r := range s.history {
		if !r.at.Before(cutoff) {
			hits++
		}
	}
	return float64(hits) / window.Seconds()
}

// historyKeys returns the set of keys with at least one recorded hit.
func (s *statsTracker) historyKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(s.history))
	for _, r := range s.history {
		keys[r.key] = struct{}{}
	}
	return keys
}

func (s *statsTracker) snapshot() types.Statistics {
	return s.stats
}
