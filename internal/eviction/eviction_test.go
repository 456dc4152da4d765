package eviction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercache/tiercache/pkg/types"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func entry(key string, createdAgo, idle time.Duration, count int64) *types.Entry {
	now := base
	return &types.Entry{
		Key:          key,
		CreatedAt:    now.Add(-createdAgo),
		LastAccessAt: now.Add(-idle),
		AccessCount:  count,
		Tier:         types.TierMemory,
	}
}

func keys(entries []*types.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

func TestOrder(t *testing.T) {
	entries := []*types.Entry{
		entry("young-busy", 1*time.Minute, 10*time.Second, 50),
		entry("old-idle", 50*time.Minute, 40*time.Minute, 1),
		entry("mid", 20*time.Minute, 5*time.Minute, 3),
	}

	tests := []struct {
		name     string
		strategy types.Strategy
		want     []string
	}{
		{"lru evicts longest idle", types.LRU(3), []string{"old-idle", "mid", "young-busy"}},
		{"hybrid follows lru", types.Hybrid(3, time.Hour), []string{"old-idle", "mid", "young-busy"}},
		{"lfu evicts fewest accesses", types.LFU(3), []string{"old-idle", "mid", "young-busy"}},
		{"fifo evicts oldest", types.FIFO(3), []string{"old-idle", "mid", "young-busy"}},
		{"time based orders by ascending age", types.TimeBased(time.Hour), []string{"young-busy", "mid", "old-idle"}},
		{"adaptive orders by ascending score", types.Adaptive(3), []string{"young-busy", "mid", "old-idle"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Order(entries, tt.strategy, base)
			assert.Equal(t, tt.want, keys(got))
		})
	}
}

func TestOrder_StrategiesDisagree(t *testing.T) {
	// "a" was created first but is hot; "b" is newer but cold.
	a := entry("a", 30*time.Minute, time.Second, 20)
	b := entry("b", 10*time.Minute, 9*time.Minute, 2)
	entries := []*types.Entry{a, b}

	assert.Equal(t, []string{"a", "b"}, keys(Order(entries, types.FIFO(2), base)))
	assert.Equal(t, []string{"b", "a"}, keys(Order(entries, types.LRU(2), base)))
	assert.Equal(t, []string{"b", "a"}, keys(Order(entries, types.LFU(2), base)))
	assert.Equal(t, []string{"b", "a"}, keys(Order(entries, types.TimeBased(time.Hour), base)))
}

func TestOrder_TimeBasedAndAdaptiveKeepOldColdEntries(t *testing.T) {
	young := entry("young", time.Minute, 10*time.Second, 50)
	old := entry("old", 50*time.Minute, 40*time.Minute, 1)
	entries := []*types.Entry{old, young}

	require.Less(t, Score(young, base), Score(old, base))
	assert.Equal(t, []string{"young", "old"}, keys(Order(entries, types.TimeBased(time.Hour), base)))
	assert.Equal(t, []string{"young", "old"}, keys(Order(entries, types.Adaptive(2), base)))
}

func TestOrder_LFUTiesBreakOnIdle(t *testing.T) {
	entries := []*types.Entry{
		entry("recent", time.Hour, time.Second, 2),
		entry("stale", time.Hour, time.Minute, 2),
		entry("hot", time.Hour, time.Hour, 9),
	}

	assert.Equal(t, []string{"stale", "recent", "hot"}, keys(Order(entries, types.LFU(3), base)))
}

func TestOrder_DeterministicOnFullTies(t *testing.T) {
	entries := []*types.Entry{
		entry("c", time.Minute, time.Minute, 1),
		entry("a", time.Minute, time.Minute, 1),
		entry("b", time.Minute, time.Minute, 1),
	}

	for _, s := range []types.Strategy{types.LRU(0), types.LFU(0), types.FIFO(0), types.Adaptive(0), types.TimeBased(time.Second)} {
		assert.Equal(t, []string{"a", "b", "c"}, keys(Order(entries, s, base)), s.String())
	}
}

func TestOrder_DoesNotMutateInput(t *testing.T) {
	entries := []*types.Entry{
		entry("new", time.Second, time.Second, 1),
		entry("old", time.Hour, time.Hour, 1),
	}

	_ = Order(entries, types.FIFO(2), base)
	assert.Equal(t, []string{"new", "old"}, keys(entries))
}

func TestScore(t *testing.T) {
	fresh := entry("fresh", 0, 0, 1)
	assert.InDelta(t, 0.3, Score(fresh, base), 1e-9)

	stale := entry("stale", 2*time.Hour, 2*time.Hour, 1)
	assert.InDelta(t, 1.0, Score(stale, base), 1e-9)

	half := entry("half", 30*time.Minute, 30*time.Minute, 3)
	assert.InDelta(t, 0.15+0.2+0.1, Score(half, base), 1e-9)

	// Access counts below one are treated as one.
	zero := entry("zero", 0, 0, 0)
	assert.InDelta(t, 0.3, Score(zero, base), 1e-9)
}

func TestIsExpired(t *testing.T) {
	e := entry("k", 6*time.Second, 0, 1)

	assert.True(t, IsExpired(e, types.TimeBased(5*time.Second), base))
	assert.True(t, IsExpired(e, types.Hybrid(10, 5*time.Second), base))
	assert.False(t, IsExpired(e, types.TimeBased(6*time.Second), base), "age must exceed ttl")
	assert.False(t, IsExpired(e, types.TimeBased(10*time.Second), base))

	for _, s := range []types.Strategy{types.LRU(1), types.LFU(1), types.FIFO(1), types.Adaptive(1)} {
		assert.False(t, IsExpired(e, s, base), s.String())
	}
}

func TestExpired(t *testing.T) {
	entries := []*types.Entry{
		entry("old", time.Minute, 0, 1),
		entry("new", time.Second, 0, 1),
		entry("older", time.Hour, 0, 1),
	}

	got := Expired(entries, types.TimeBased(30*time.Second), base)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"old", "older"}, keys(got))

	assert.Nil(t, Expired(entries, types.LRU(0), base))
}
