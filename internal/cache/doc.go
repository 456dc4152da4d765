/*
Package cache provides the tiered cache coordinator.

A Coordinator serves keyed values from three tiers ordered by latency:

	┌──────────────────────────────┐
	│           Caller             │
	└──────────────────────────────┘
	               │ Get(key, from)
	┌──────────────────────────────┐
	│         Coordinator          │  statistics, hit history,
	│   (single mutex, no I/O)     │  strategy, health check
	└──────────────────────────────┘
	      │           │          │
	┌──────────┐ ┌─────────┐ ┌──────────────┐
	│  memory  │ │  disk   │ │   network    │
	│  index   │ │ files   │ │ RemoteSource │
	└──────────┘ └─────────┘ └──────────────┘

A lookup probes tiers from the requested one toward slower ones and the
first hit wins. Hits are never copied into faster tiers. Set writes exactly
one tier; the network tier is read-only.

# Eviction

The memory tier is bounded by a byte limit and by the strategy's entry
capacity. When an insert would exceed either bound, entries are removed in
the order chosen by the eviction package. TimeBased and Hybrid strategies
also expire entries older than their TTL, both on lookup and in a
background sweep.

# Disk tier

Each key maps to one file named after the key with path separators
replaced. Files hold a JSON envelope tagged with the value's Go type, so
the typed Get can tell a mismatch from a hit:

	res, ok := cache.Get[*layout.Result](ctx, c, key, types.TierMemory)

Disk failures are logged, counted and reported to the health tracker.
Once the disk component is unavailable the coordinator runs memory-only
until a sweep probe succeeds.

# Network tier

The network tier wraps a types.RemoteSource behind a circuit breaker and a
retryer. Fetch failures become misses.

# Usage

	c, err := cache.New(ctx, cache.Options{
		Strategy:    types.LRU(1000),
		MemoryLimit: 64 << 20,
		Disk:        &cache.DiskOptions{Compression: cache.CompressionZstd},
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	c.Set(ctx, "greeting", "hello", types.TierMemory)
	v, ok := c.Get(ctx, "greeting", types.TierMemory)
*/
package cache
