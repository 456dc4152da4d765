package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatsRunningMeanCoversAllRequests(t *testing.T) {
	s := newStatsTracker(10)
	now := time.Now()

	for _, d := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond} {
		epoch := s.begin()
		s.finish(epoch, "k", d != 20*time.Millisecond, d, now)
	}

	st := s.snapshot()
	assert.Equal(t, 20*time.Millisecond, st.AverageResponseTime)
	assert.Equal(t, int64(2), st.Hits)
	assert.Equal(t, int64(1), st.Misses)
	assert.InDelta(t, 2.0/3.0, st.HitRate, 1e-9)
}

func TestStatsHistoryIsBounded(t *testing.T) {
	s := newStatsTracker(3)
	base := time.Now()

	for i, key := range []string{"a", "b", "c", "d"} {
		epoch := s.begin()
		s.finish(epoch, key, true, 0, base.Add(time.Duration(i)*time.Second))
	}

	assert.Len(t, s.history, 3)
	assert.Equal(t, "b", s.history[0].key)
	_, hasA := s.historyKeys()["a"]
	assert.False(t, hasA)
}

func TestStatsForgetAndReset(t *testing.T) {
	s := newStatsTracker(0)
	now := time.Now()
	for _, key := range []string{"a", "b", "a"} {
		epoch := s.begin()
		s.finish(epoch, key, true, 0, now)
	}
	s.evicted(2)
	s.failed()

	s.forget("a")
	assert.Len(t, s.history, 1)
	assert.Equal(t, "b", s.history[0].key)

	s.reset()
	assert.Empty(t, s.history)
	assert.Zero(t, s.snapshot())
	assert.Equal(t, defaultHitHistorySize, s.maxHistory)
}

func TestStatsResetDropsInFlightOutcome(t *testing.T) {
	s := newStatsTracker(0)
	now := time.Now()

	stale := s.begin()
	s.reset()

	fresh := s.begin()
	assert.True(t, s.finish(fresh, "a", true, 0, now))
	assert.False(t, s.finish(stale, "b", true, time.Second, now))

	st := s.snapshot()
	assert.Equal(t, int64(1), st.TotalRequests)
	assert.Equal(t, int64(1), st.Hits)
	assert.Equal(t, 1.0, st.HitRate)
	assert.Zero(t, st.AverageResponseTime)
	assert.NotContains(t, s.historyKeys(), "b")
}
