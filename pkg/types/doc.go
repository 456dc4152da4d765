/*
Package types defines the data model shared by every tiercache component.

# Tiers

Entries live in exactly one of three tiers, ordered by latency:

	┌──────────┐   ┌──────────┐   ┌──────────┐
	│  Memory  │ → │   Disk   │ → │ Network  │
	└──────────┘   └──────────┘   └──────────┘

A lookup probes from the requested tier towards the slower ones. Writes only
ever target a single tier; nothing is copied between tiers automatically.

# Strategies

Exactly one Strategy is active at a time:

	types.LRU(capacity)
	types.LFU(capacity)
	types.FIFO(capacity)
	types.Adaptive(capacity)
	types.TimeBased(ttl)
	types.Hybrid(capacity, ttl)

Capacity is a bound on the number of memory-tier entries. Byte limits are
configured separately on the coordinator. TimeBased and Hybrid also expire
entries whose age exceeds the TTL.

# Recommendations

AccessPattern values (Frequent, Temporal, Critical, Ephemeral) feed the
recommendation engine, which answers with a Recommendation naming a tier
and an optional TTL.

# Network sources

RemoteSource is the extension point for the network tier. Implementations
live under internal/storage.
*/
package types
