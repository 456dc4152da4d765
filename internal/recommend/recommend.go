// Package recommend maps an observed access pattern to a suggested tier and TTL.
package recommend

import (
	"fmt"
	"time"

	"github.com/tiercache/tiercache/pkg/types"
)

const (
	// FrequentThreshold is the access frequency above which keys belong in memory.
	FrequentThreshold = 10
	// TemporalThreshold is the lifetime below which temporal keys belong in memory.
	TemporalThreshold = 60 * time.Second

	frequentMemoryTTL = 600 * time.Second
	frequentDiskTTL   = 1800 * time.Second
)

// Recommend classifies pattern. It has no side effects.
func Recommend(key string, pattern types.AccessPattern) types.Recommendation {
	switch pattern.Kind {
	case types.PatternFrequent:
		if pattern.Frequency > FrequentThreshold {
			return cache(types.TierMemory, frequentMemoryTTL,
				fmt.Sprintf("%q is accessed %d times, above %d", key, pattern.Frequency, FrequentThreshold))
		}
		return cache(types.TierDisk, frequentDiskTTL,
			fmt.Sprintf("%q is accessed %d times, at most %d", key, pattern.Frequency, FrequentThreshold))

	case types.PatternTemporal:
		if pattern.Duration < TemporalThreshold {
			return cache(types.TierMemory, 2*pattern.Duration,
				fmt.Sprintf("%q is short-lived (%s)", key, pattern.Duration))
		}
		return cache(types.TierDisk, pattern.Duration,
			fmt.Sprintf("%q is long-lived (%s)", key, pattern.Duration))

	case types.PatternCritical:
		return types.Recommendation{
			ShouldCache: true,
			Level:       types.TierMemory,
			Reason:      fmt.Sprintf("%q is critical and never expires", key),
		}

	case types.PatternEphemeral:
		return types.Recommendation{
			ShouldCache: false,
			Level:       types.TierMemory,
			Reason:      fmt.Sprintf("%q is ephemeral", key),
		}
	}

	return types.Recommendation{
		ShouldCache: false,
		Level:       types.TierMemory,
		Reason:      fmt.Sprintf("unknown access pattern %q", pattern.Kind),
	}
}

func cache(level types.Tier, ttl time.Duration, reason string) types.Recommendation {
	return types.Recommendation{
		ShouldCache: true,
		Level:       level,
		TTL:         &ttl,
		Reason:      reason,
	}
}
