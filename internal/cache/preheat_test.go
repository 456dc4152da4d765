package cache

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiercache/tiercache/pkg/types"
)

// orderSource records the order in which keys reach the network tier.
type orderSource struct {
	mu   sync.Mutex
	keys []string
}

func (s *orderSource) Fetch(ctx context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	return nil, false, nil
}

func TestPreheatSequential(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, Options{})
	c.Set(ctx, "a", 1, types.TierMemory)
	c.Set(ctx, "b", 2, types.TierMemory)

	report := c.PreheatCache(ctx, []string{"a", "b", "c"}, Sequential())

	assert.Equal(t, PreheatSequential, report.Strategy)
	assert.Equal(t, 3, report.Requested)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 2, report.Warm)
	assert.False(t, report.Canceled)
	_, err := uuid.Parse(report.RunID)
	assert.NoError(t, err)

	assert.Equal(t, int64(3), c.Statistics().TotalRequests)
}

func TestPreheatParallel(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, Options{})
	keys := []string{"a", "b", "c", "d", "e"}
	for _, k := range keys[:3] {
		c.Set(ctx, k, k, types.TierMemory)
	}

	report := c.PreheatCache(ctx, keys, Parallel(2))
	assert.Equal(t, 5, report.Attempted)
	assert.Equal(t, 3, report.Warm)

	report = c.PreheatCache(ctx, keys, Parallel(0))
	assert.Equal(t, 5, report.Attempted, "non-positive concurrency runs one at a time")
}

func TestPreheatPriorityOrder(t *testing.T) {
	ctx := context.Background()
	source := &orderSource{}
	c, _ := newTestCoordinator(t, Options{
		PreheatConcurrency: 1,
		Network:            &NetworkOptions{Source: source},
	})

	report := c.PreheatCache(ctx, []string{"low", "none", "high", "mid"}, PriorityBased(map[string]int{
		"low":  1,
		"mid":  5,
		"high": 10,
	}))

	assert.Equal(t, 4, report.Attempted)
	assert.Equal(t, []string{"high", "mid", "low", "none"}, source.keys)
}

func TestPreheatAdaptive(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, Options{})
	c.Set(ctx, "a", 1, types.TierMemory)
	c.Get(ctx, "a", types.TierMemory)

	keys := []string{"a", "b"}

	report := c.IntelligentPreheat(ctx, keys, 0.4)
	assert.Equal(t, PreheatAdaptive, report.Strategy)
	assert.Equal(t, 1, report.Attempted, "only keys with hit history")
	assert.Equal(t, 1, report.Warm)

	report = c.IntelligentPreheat(ctx, keys, 0.6)
	assert.Zero(t, report.Attempted, "below threshold is a no-op")

	report = c.IntelligentPreheat(ctx, nil, 0)
	assert.Zero(t, report.Attempted)
}

func TestPreheatCanceled(t *testing.T) {
	c, _ := newTestCoordinator(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, strategy := range []PreheatStrategy{Sequential(), Parallel(2)} {
		report := c.PreheatCache(ctx, []string{"a", "b", "c"}, strategy)
		assert.True(t, report.Canceled)
		assert.Zero(t, report.Attempted)
	}
	assert.Zero(t, c.Statistics().TotalRequests)
}

func TestPreheatUnknownStrategy(t *testing.T) {
	c, _ := newTestCoordinator(t, Options{})
	report := c.PreheatCache(context.Background(), []string{"a"}, PreheatStrategy{Kind: "bogus"})
	require.Zero(t, report.Attempted)
	assert.False(t, report.Canceled)
}

func TestPrioritizeIsStable(t *testing.T) {
	keys := []string{"x", "y", "z"}
	assert.Equal(t, []string{"z", "x", "y"}, prioritize(keys, map[string]int{"z": 1}))
	assert.Equal(t, []string{"x", "y", "z"}, keys, "input is not modified")
}

func TestPrioritizeExtremePriorities(t *testing.T) {
	keys := []string{"low", "high", "zero"}
	priorities := map[string]int{"low": math.MinInt, "high": math.MaxInt}

	assert.Equal(t, []string{"high", "zero", "low"}, prioritize(keys, priorities))
}
