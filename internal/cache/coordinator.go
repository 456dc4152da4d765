package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tiercache/tiercache/internal/eviction"
	"github.com/tiercache/tiercache/internal/metrics"
	"github.com/tiercache/tiercache/internal/recommend"
	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/health"
	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

const (
	// DefaultEntrySize is what the default estimator charges per value.
	DefaultEntrySize int64 = 1024
	// DefaultMemoryLimit bounds the memory tier when no limit is given.
	DefaultMemoryLimit int64 = 64 << 20
	// DefaultSweepInterval is the period of the background expiry sweep.
	DefaultSweepInterval = 60 * time.Second
	// DefaultCapacity is the LRU capacity used when no strategy is given.
	DefaultCapacity = 1000

	defaultPreheatConcurrency = 4

	componentDisk    = "disk"
	componentNetwork = "network"

	categoryCache   = "cache"
	categoryDisk    = "disk"
	categoryNetwork = "network"
	categorySweep   = "sweep"
	categoryPreheat = "preheat"
)

// Logger receives the coordinator's log output. *utils.StructuredLogger
// satisfies it.
type Logger interface {
	Log(message string, level utils.LogLevel, category string, metadata map[string]any)
}

type nopLogger struct{}

func (nopLogger) Log(string, utils.LogLevel, string, map[string]any) {}

// SizeEstimator returns the number of bytes a value is charged against the
// memory limit.
type SizeEstimator func(value any) int64

// ConstantSize charges every value n bytes.
func ConstantSize(n int64) SizeEstimator {
	return func(any) int64 { return n }
}

// HealthThresholds tune PerformHealthCheck.
type HealthThresholds struct {
	MinHitRate         float64
	MinRequests        int64
	MaxAverageResponse time.Duration
	// MemoryPressure is the fraction of the memory limit above which the
	// cache reports pressure.
	MemoryPressure float64
}

// DefaultHealthThresholds returns the stock thresholds.
func DefaultHealthThresholds() HealthThresholds {
	return HealthThresholds{
		MinHitRate:         0.5,
		MinRequests:        100,
		MaxAverageResponse: 100 * time.Millisecond,
		MemoryPressure:     0.9,
	}
}

// Options configures a Coordinator. The zero value gives a memory-only
// LRU cache.
type Options struct {
	Strategy    types.Strategy
	MemoryLimit int64

	// Disk enables the disk tier when non-nil.
	Disk *DiskOptions
	// Network enables the network tier when non-nil with a Source.
	Network *NetworkOptions

	SweepInterval      time.Duration
	HitHistorySize     int
	PreheatConcurrency int
	Thresholds         HealthThresholds

	Logger        Logger
	SizeEstimator SizeEstimator
	Clock         clock.Clock
	Metrics       *metrics.Collector
	Health        *health.Tracker
}

// Coordinator serves lookups across the memory, disk and network tiers.
// One mutex guards the memory index, statistics, strategy and hit
// history; disk and network I/O run without it. Writers of one key are
// serialized by a striped key lock taken before mu.
type Coordinator struct {
	mu          sync.Mutex
	writers     keyLocks
	memory      *memoryStore
	stats       *statsTracker
	strategy    types.Strategy
	memoryLimit int64

	disk    *DiskStore
	network *NetworkStore

	logger             Logger
	estimate           SizeEstimator
	clock              clock.Clock
	metrics            *metrics.Collector
	health             *health.Tracker
	thresholds         HealthThresholds
	sweepInterval      time.Duration
	preheatConcurrency int

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds a Coordinator and starts its background sweep. The sweep
// stops when ctx is canceled or Close is called.
func New(ctx context.Context, opts Options) (*Coordinator, error) {
	if opts.Strategy.Kind == "" {
		opts.Strategy = types.LRU(DefaultCapacity)
	}
	if err := opts.Strategy.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidArgument, "invalid strategy").
			WithComponent("cache").
			WithOperation("new")
	}
	if opts.MemoryLimit <= 0 {
		opts.MemoryLimit = DefaultMemoryLimit
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.PreheatConcurrency <= 0 {
		opts.PreheatConcurrency = defaultPreheatConcurrency
	}
	if opts.Thresholds == (HealthThresholds{}) {
		opts.Thresholds = DefaultHealthThresholds()
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger{}
	}
	if opts.SizeEstimator == nil {
		opts.SizeEstimator = ConstantSize(DefaultEntrySize)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Health == nil {
		opts.Health = health.NewTrackerWithClock(health.DefaultConfig(), opts.Clock)
	}

	c := &Coordinator{
		memory:             newMemoryStore(),
		stats:              newStatsTracker(opts.HitHistorySize),
		strategy:           opts.Strategy,
		memoryLimit:        opts.MemoryLimit,
		logger:             opts.Logger,
		estimate:           opts.SizeEstimator,
		clock:              opts.Clock,
		metrics:            opts.Metrics,
		health:             opts.Health,
		thresholds:         opts.Thresholds,
		sweepInterval:      opts.SweepInterval,
		preheatConcurrency: opts.PreheatConcurrency,
	}

	if opts.Disk != nil {
		diskOpts := *opts.Disk
		if diskOpts.Clock == nil {
			diskOpts.Clock = opts.Clock
		}
		disk, err := NewDiskStore(diskOpts)
		if err != nil {
			return nil, err
		}
		c.disk = disk
		c.health.RegisterComponent(componentDisk)

		n, err := disk.Rescan()
		if err != nil {
			c.recordFailure(types.TierDisk, "rescan", err)
		} else {
			c.logger.Log("disk tier ready", utils.INFO, categoryDisk, map[string]any{
				"directory": disk.Directory(),
				"entries":   n,
			})
			c.metrics.UpdateTierSize(types.TierDisk.String(), disk.Usage(), n)
		}
	}

	if opts.Network != nil && opts.Network.Source != nil {
		netOpts := *opts.Network
		if netOpts.Clock == nil {
			netOpts.Clock = opts.Clock
		}
		if netOpts.Metrics == nil {
			netOpts.Metrics = opts.Metrics
		}
		c.network = NewNetworkStore(netOpts)
		c.health.RegisterComponent(componentNetwork)
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	ticker := c.clock.Ticker(c.sweepInterval)
	c.wg.Add(1)
	go c.sweepLoop(sweepCtx, ticker)

	c.logger.Log("cache coordinator started", utils.INFO, categoryCache, map[string]any{
		"strategy":     c.strategy.String(),
		"memory_limit": utils.FormatBytes(c.memoryLimit),
		"disk":         c.disk != nil,
		"network":      c.network.Enabled(),
	})
	return c, nil
}

// Get looks key up starting at tier from and moving toward slower tiers.
// Values found on disk are returned in their generic JSON form and values
// from the network tier as raw bytes; use the generic Get for typed reads.
func (c *Coordinator) Get(ctx context.Context, key string, from types.Tier) (any, bool) {
	return c.lookup(ctx, key, from, untyped)
}

// Get is the typed form of Coordinator.Get. A stored value of another type
// is a miss.
func Get[T any](ctx context.Context, c *Coordinator, key string, from types.Tier) (T, bool) {
	v, ok := c.lookup(ctx, key, from, typed[T]())
	if !ok {
		var zero T
		return zero, false
	}
	t, _ := v.(T)
	return t, true
}

func (c *Coordinator) lookup(ctx context.Context, key string, from types.Tier, vc valueCodec) (any, bool) {
	start := c.clock.Now()

	c.mu.Lock()
	epoch := c.stats.begin()
	strategy := c.strategy
	if from <= types.TierMemory {
		if v, ok := c.memoryLookup(key, vc, strategy, start); ok {
			c.finishLocked(epoch, key, types.TierMemory.String(), true, start)
			c.mu.Unlock()
			return v, true
		}
	}
	c.mu.Unlock()

	if from <= types.TierDisk {
		if v, ok := c.diskLookup(ctx, key, vc, strategy); ok {
			c.finish(epoch, key, types.TierDisk.String(), true, start)
			return v, true
		}
	}

	if from <= types.TierNetwork {
		if v, ok := c.networkLookup(ctx, key, vc); ok {
			c.finish(epoch, key, types.TierNetwork.String(), true, start)
			return v, true
		}
	}

	c.finish(epoch, key, "none", false, start)
	return nil, false
}

// memoryLookup must be called with c.mu held.
func (c *Coordinator) memoryLookup(key string, vc valueCodec, strategy types.Strategy, now time.Time) (any, bool) {
	e, ok := c.memory.get(key)
	if !ok {
		return nil, false
	}
	if eviction.IsExpired(e, strategy, now) {
		c.memory.remove(key)
		c.metrics.RecordEvictions("expired", 1)
		return nil, false
	}
	v, ok := vc.fromMemory(e.Value)
	if !ok {
		return nil, false
	}
	e.Touch(now)
	return v, true
}

func (c *Coordinator) diskLookup(ctx context.Context, key string, vc valueCodec, strategy types.Strategy) (any, bool) {
	if c.disk == nil || !c.health.CanRead(componentDisk) {
		return nil, false
	}

	env, found, err := c.disk.Get(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			c.recordFailure(types.TierDisk, "get", err)
		}
		return nil, false
	}
	if !found {
		return nil, false
	}

	now := c.clock.Now()
	probe := &types.Entry{Key: key, CreatedAt: env.CreatedAt, LastAccessAt: env.CreatedAt, AccessCount: 1}
	if eviction.IsExpired(probe, strategy, now) {
		if err := c.disk.Remove(key); err != nil {
			c.recordFailure(types.TierDisk, "remove", err)
		}
		c.metrics.RecordEvictions("expired", 1)
		return nil, false
	}

	v, err := vc.fromDisk(env)
	if err == errTypeMismatch {
		return nil, false
	}
	if err != nil {
		c.recordFailure(types.TierDisk, "decode", errors.Wrap(err, errors.ErrCodeSerialization, "decode disk value").
			WithComponent(componentDisk).
			WithDetail("key", key).
			WithDetail("type", env.Type))
		return nil, false
	}
	c.health.RecordSuccess(componentDisk)
	return v, true
}

func (c *Coordinator) networkLookup(ctx context.Context, key string, vc valueCodec) (any, bool) {
	if !c.network.Enabled() || !c.health.CanRead(componentNetwork) {
		return nil, false
	}

	raw, found, err := c.network.Fetch(ctx, key)
	if err != nil {
		if ctx.Err() == nil {
			c.recordFailure(types.TierNetwork, "fetch", err)
		}
		return nil, false
	}
	c.health.RecordSuccess(componentNetwork)
	if !found {
		return nil, false
	}

	v, err := vc.fromRemote(raw)
	if err != nil {
		c.recordFailure(types.TierNetwork, "decode", errors.Wrap(err, errors.ErrCodeSerialization, "decode remote value").
			WithComponent(componentNetwork).
			WithDetail("key", key))
		return nil, false
	}
	return v, true
}

func (c *Coordinator) finish(epoch uint64, key, tier string, hit bool, start time.Time) {
	c.mu.Lock()
	c.finishLocked(epoch, key, tier, hit, start)
	c.mu.Unlock()
}

// finishLocked must be called with c.mu held. A lookup that straddled
// ResetStatistics still reaches the metrics but not the statistics.
func (c *Coordinator) finishLocked(epoch uint64, key, tier string, hit bool, start time.Time) {
	now := c.clock.Now()
	elapsed := now.Sub(start)
	c.metrics.RecordLookup(tier, hit, elapsed)
	if c.stats.finish(epoch, key, hit, elapsed, now) {
		c.metrics.UpdateHitRate(c.stats.stats.HitRate)
	}
}

// Set stores value at level. Setting on the network tier only logs a
// warning. Tier failures are logged and counted, never returned.
func (c *Coordinator) Set(ctx context.Context, key string, value any, level types.Tier) {
	switch level {
	case types.TierMemory, types.TierDisk:
		defer c.writers.lock(key).Unlock()
	}

	switch level {
	case types.TierMemory:
		c.setMemory(key, value)
	case types.TierDisk:
		c.setDisk(ctx, key, value)
	case types.TierNetwork:
		c.logger.Log("network tier is read-only, set ignored", utils.WARN, categoryNetwork, map[string]any{
			"key": key,
		})
	default:
		c.logger.Log("set on unknown tier ignored", utils.WARN, categoryCache, map[string]any{
			"key":  key,
			"tier": int(level),
		})
	}
}

func (c *Coordinator) setMemory(key string, value any) {
	size := c.estimate(value)
	if size < 0 {
		size = 0
	}
	now := c.clock.Now()

	c.mu.Lock()
	c.memory.remove(key)
	expired, evicted := c.memory.evictFor(size, c.memoryLimit, c.strategy, now)
	c.stats.evicted(evicted)
	c.memory.put(&types.Entry{
		Key:          key,
		Value:        value,
		SizeBytes:    size,
		Tier:         types.TierMemory,
		CreatedAt:    now,
		LastAccessAt: now,
		AccessCount:  1,
	})
	memSize, memLen := c.memory.size(), c.memory.len()
	c.mu.Unlock()

	c.metrics.RecordWrite(types.TierMemory.String(), size)
	c.metrics.UpdateTierSize(types.TierMemory.String(), memSize, memLen)
	if evicted > 0 {
		c.metrics.RecordEvictions("capacity", evicted)
		c.logger.Log("evicted memory entries", utils.DEBUG, categoryCache, map[string]any{
			"count":    evicted,
			"incoming": key,
		})
	}
	if expired > 0 {
		c.metrics.RecordEvictions("expired", expired)
	}

	if c.disk != nil && c.disk.Contains(key) {
		if err := c.disk.Remove(key); err != nil {
			c.recordFailure(types.TierDisk, "remove", err)
		}
	}
}

func (c *Coordinator) setDisk(ctx context.Context, key string, value any) {
	if c.disk == nil {
		c.logger.Log("disk tier disabled, set dropped", utils.DEBUG, categoryDisk, map[string]any{"key": key})
		return
	}
	if !c.health.CanWrite(componentDisk) {
		c.logger.Log("disk tier not writable, set dropped", utils.WARN, categoryDisk, map[string]any{
			"key":   key,
			"state": c.health.GetState(componentDisk).String(),
		})
		return
	}

	size, err := c.disk.Set(ctx, key, value, c.clock.Now())
	if err != nil {
		if ctx.Err() == nil {
			c.recordFailure(types.TierDisk, "set", err)
		}
		return
	}
	c.health.RecordSuccess(componentDisk)
	c.metrics.RecordWrite(types.TierDisk.String(), size)
	c.metrics.UpdateTierSize(types.TierDisk.String(), c.disk.Usage(), c.disk.Len())

	c.mu.Lock()
	c.memory.remove(key)
	c.mu.Unlock()
}

// Remove deletes key from every tier and forgets its hit history.
func (c *Coordinator) Remove(ctx context.Context, key string) {
	defer c.writers.lock(key).Unlock()

	c.mu.Lock()
	c.memory.remove(key)
	c.stats.forget(key)
	c.mu.Unlock()

	if c.disk != nil {
		if err := c.disk.Remove(key); err != nil {
			c.recordFailure(types.TierDisk, "remove", err)
		}
	}
}

// Clear empties one tier, or every tier when level is nil. Clearing the
// network tier does nothing.
func (c *Coordinator) Clear(ctx context.Context, level *types.Tier) {
	if level == nil {
		c.clearMemory()
		c.clearDisk()
		return
	}

	switch *level {
	case types.TierMemory:
		c.clearMemory()
	case types.TierDisk:
		c.clearDisk()
	case types.TierNetwork:
		c.logger.Log("network tier is read-only, clear ignored", utils.DEBUG, categoryNetwork, nil)
	}
}

// ClearAll empties every tier.
func (c *Coordinator) ClearAll(ctx context.Context) {
	c.Clear(ctx, nil)
}

func (c *Coordinator) clearMemory() {
	c.mu.Lock()
	n := c.memory.clear()
	c.mu.Unlock()

	c.metrics.UpdateTierSize(types.TierMemory.String(), 0, 0)
	c.logger.Log("memory tier cleared", utils.INFO, categoryCache, map[string]any{"entries": n})
}

func (c *Coordinator) clearDisk() {
	if c.disk == nil {
		return
	}
	n, err := c.disk.Clear()
	if err != nil {
		c.recordFailure(types.TierDisk, "clear", err)
	}
	c.metrics.UpdateTierSize(types.TierDisk.String(), c.disk.Usage(), c.disk.Len())
	c.logger.Log("disk tier cleared", utils.INFO, categoryDisk, map[string]any{"entries": n})
}

// UpdateStrategy swaps the eviction policy. Resident entries that violate
// the new TTL are removed and the memory tier is trimmed to the new
// capacity.
func (c *Coordinator) UpdateStrategy(ctx context.Context, strategy types.Strategy) error {
	if err := strategy.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidArgument, "invalid strategy").
			WithComponent("cache").
			WithOperation("update_strategy")
	}
	now := c.clock.Now()

	c.mu.Lock()
	old := c.strategy
	c.strategy = strategy
	expired := c.memory.removeExpired(strategy, now)
	trimmed := c.memory.trim(strategy, now)
	c.stats.evicted(trimmed)
	c.mu.Unlock()

	diskExpired := 0
	if c.disk != nil {
		n, err := c.disk.RemoveExpired(strategy, now)
		if err != nil {
			c.recordFailure(types.TierDisk, "expire", err)
		}
		diskExpired = n
	}

	c.metrics.RecordEvictions("expired", expired+diskExpired)
	c.metrics.RecordEvictions("capacity", trimmed)
	c.logger.Log("strategy updated", utils.INFO, categoryCache, map[string]any{
		"from":    old.String(),
		"to":      strategy.String(),
		"expired": expired + diskExpired,
		"trimmed": trimmed,
	})
	return nil
}

// Strategy returns the active strategy.
func (c *Coordinator) Strategy() types.Strategy {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strategy
}

// MemoryLimit returns the memory tier's byte limit.
func (c *Coordinator) MemoryLimit() int64 {
	return c.memoryLimit
}

// Statistics returns a snapshot of the counters with current tier usage.
func (c *Coordinator) Statistics() types.Statistics {
	c.mu.Lock()
	st := c.stats.snapshot()
	st.MemoryUsage = c.memory.size()
	c.mu.Unlock()

	if c.disk != nil {
		st.DiskUsage = c.disk.Usage()
	}
	return st
}

// ResetStatistics zeroes the counters and drops the hit history.
func (c *Coordinator) ResetStatistics() {
	c.mu.Lock()
	c.stats.reset()
	c.mu.Unlock()

	c.metrics.UpdateHitRate(0)
	c.logger.Log("statistics reset", utils.INFO, categoryCache, nil)
}

// BatchGet looks up each key from the memory tier and returns the hits.
func (c *Coordinator) BatchGet(ctx context.Context, keys []string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if ctx.Err() != nil {
			break
		}
		if v, ok := c.Get(ctx, key, types.TierMemory); ok {
			out[key] = v
		}
	}
	return out
}

// BatchSet stores every item at level in key order.
func (c *Coordinator) BatchSet(ctx context.Context, items map[string]any, level types.Tier) {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if ctx.Err() != nil {
			return
		}
		c.Set(ctx, k, items[k], level)
	}
}

// PerformHealthCheck returns nil when the cache is healthy, otherwise a
// *errors.CacheError for the first failing check: hit rate, response
// time, then memory pressure.
func (c *Coordinator) PerformHealthCheck(ctx context.Context) error {
	st := c.Statistics()
	th := c.thresholds

	if st.TotalRequests >= th.MinRequests && st.HitRate < th.MinHitRate {
		return errors.Newf(errors.ErrCodeLowHitRate, "hit rate %.2f below %.2f", st.HitRate, th.MinHitRate).
			WithComponent("cache").
			WithDetail("hit_rate", st.HitRate).
			WithDetail("total_requests", st.TotalRequests)
	}

	if st.AverageResponseTime > th.MaxAverageResponse {
		return errors.Newf(errors.ErrCodeSlowResponse, "average response %s above %s",
			st.AverageResponseTime, th.MaxAverageResponse).
			WithComponent("cache").
			WithDetail("average_response_time", st.AverageResponseTime.String())
	}

	if c.memoryLimit > 0 && float64(st.MemoryUsage) > th.MemoryPressure*float64(c.memoryLimit) {
		return errors.Newf(errors.ErrCodeMemoryPressure, "memory usage %s of %s",
			utils.FormatBytes(st.MemoryUsage), utils.FormatBytes(c.memoryLimit)).
			WithComponent("cache").
			WithDetail("memory_usage", st.MemoryUsage).
			WithDetail("memory_limit", c.memoryLimit)
	}

	return nil
}

// TierHealth reports the tracked state of the disk and network tiers.
func (c *Coordinator) TierHealth() []health.ComponentHealth {
	return c.health.GetAllComponents()
}

// GenerateCacheRecommendation suggests whether and where to cache key.
func (c *Coordinator) GenerateCacheRecommendation(key string, pattern types.AccessPattern) types.Recommendation {
	return recommend.Recommend(key, pattern)
}

// HitRateTrend returns hits per second recorded within window.
func (c *Coordinator) HitRateTrend(window time.Duration) float64 {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats.trend(window, now)
}

// Close stops the sweep and releases the tiers. It is safe to call more
// than once.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.wg.Wait()
		if c.disk != nil {
			_ = c.disk.Close()
		}
		c.logger.Log("cache coordinator stopped", utils.INFO, categoryCache, nil)
	})
	return nil
}

// recordFailure logs a tier failure, counts it and reports it to the
// health tracker. Serialization failures do not affect tier health.
func (c *Coordinator) recordFailure(tier types.Tier, op string, err error) {
	c.mu.Lock()
	c.stats.failed()
	c.mu.Unlock()

	c.metrics.RecordError(tier.String(), op)
	if !errors.HasCode(err, errors.ErrCodeSerialization) && !errors.HasCode(err, errors.ErrCodeCircuitOpen) {
		c.health.RecordError(tier.String(), err)
	}

	category := categoryCache
	switch tier {
	case types.TierDisk:
		category = categoryDisk
	case types.TierNetwork:
		category = categoryNetwork
	}
	c.logger.Log("tier operation failed", utils.ERROR, category, map[string]any{
		"tier":      tier.String(),
		"operation": op,
		"error":     err.Error(),
	})
}
