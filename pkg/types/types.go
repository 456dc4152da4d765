package types

import (
	"fmt"
	"strings"
	"time"
)

// Tier identifies a storage level. Tiers are ordered by increasing latency.
type Tier int

const (
	TierMemory Tier = iota
	TierDisk
	TierNetwork
)

// Tiers lists every tier in probe order.
var Tiers = []Tier{TierMemory, TierDisk, TierNetwork}

func (t Tier) String() string {
	switch t {
	case TierMemory:
		return "memory"
	case TierDisk:
		return "disk"
	case TierNetwork:
		return "network"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t >= TierMemory && t <= TierNetwork
}

// ParseTier converts a tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "memory", "mem":
		return TierMemory, nil
	case "disk":
		return TierDisk, nil
	case "network", "net", "remote":
		return TierNetwork, nil
	default:
		return TierMemory, fmt.Errorf("unknown tier %q", s)
	}
}

func (t Tier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tier %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *Tier) UnmarshalText(b []byte) error {
	parsed, err := ParseTier(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Entry is the unit of storage held in a tier's index
type Entry struct {
	Key          string    `json:"key"`
	Value        any       `json:"-"`
	SizeBytes    int64     `json:"size_bytes"`
	Tier         Tier      `json:"tier"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessAt time.Time `json:"last_access_at"`
	AccessCount  int64     `json:"access_count"`
}

// Age returns how long ago the entry was created.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}

// Idle returns the time since the entry was last accessed.
func (e *Entry) Idle(now time.Time) time.Duration {
	return now.Sub(e.LastAccessAt)
}

// Touch records a hit on the entry.
func (e *Entry) Touch(now time.Time) {
	if now.After(e.LastAccessAt) {
		e.LastAccessAt = now
	}
	e.AccessCount++
}

// Statistics is the process-wide cache aggregate.
type Statistics struct {
	TotalRequests       int64         `json:"total_requests"`
	Hits                int64         `json:"hits"`
	Misses              int64         `json:"misses"`
	HitRate             float64       `json:"hit_rate"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	MemoryUsage         int64         `json:"memory_usage"`
	DiskUsage           int64         `json:"disk_usage"`
	EvictionCount       int64         `json:"eviction_count"`
	ErrorCount          int64         `json:"error_count"`
}

// StrategyKind names an eviction/expiry policy.
type StrategyKind string

const (
	StrategyLRU       StrategyKind = "lru"
	StrategyLFU       StrategyKind = "lfu"
	StrategyFIFO      StrategyKind = "fifo"
	StrategyAdaptive  StrategyKind = "adaptive"
	StrategyTimeBased StrategyKind = "time_based"
	StrategyHybrid    StrategyKind = "hybrid"
)

// Strategy is the active eviction/expiry policy. Capacity bounds the number
// of memory-tier entries (0 means unbounded); TTL only applies to
// TimeBased and Hybrid.
type Strategy struct {
	Kind     StrategyKind  `json:"kind" yaml:"kind"`
	Capacity int           `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	TTL      time.Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

func LRU(capacity int) Strategy      { return Strategy{Kind: StrategyLRU, Capacity: capacity} }
func LFU(capacity int) Strategy      { return Strategy{Kind: StrategyLFU, Capacity: capacity} }
func FIFO(capacity int) Strategy     { return Strategy{Kind: StrategyFIFO, Capacity: capacity} }
func Adaptive(capacity int) Strategy { return Strategy{Kind: StrategyAdaptive, Capacity: capacity} }
func TimeBased(ttl time.Duration) Strategy {
	return Strategy{Kind: StrategyTimeBased, TTL: ttl}
}
func Hybrid(capacity int, ttl time.Duration) Strategy {
	return Strategy{Kind: StrategyHybrid, Capacity: capacity, TTL: ttl}
}

// HasTTL reports whether the strategy expires entries by age.
func (s Strategy) HasTTL() bool {
	return (s.Kind == StrategyTimeBased || s.Kind == StrategyHybrid) && s.TTL > 0
}

// Validate checks that the strategy is well formed.
func (s Strategy) Validate() error {
	switch s.Kind {
	case StrategyLRU, StrategyLFU, StrategyFIFO, StrategyAdaptive:
		if s.Capacity < 0 {
			return fmt.Errorf("%s capacity must not be negative", s.Kind)
		}
	case StrategyTimeBased:
		if s.TTL <= 0 {
			return fmt.Errorf("time_based ttl must be positive")
		}
	case StrategyHybrid:
		if s.Capacity < 0 {
			return fmt.Errorf("hybrid capacity must not be negative")
		}
		if s.TTL <= 0 {
			return fmt.Errorf("hybrid ttl must be positive")
		}
	default:
		return fmt.Errorf("unknown strategy %q", s.Kind)
	}
	return nil
}

func (s Strategy) String() string {
	switch s.Kind {
	case StrategyTimeBased:
		return fmt.Sprintf("%s(%s)", s.Kind, s.TTL)
	case StrategyHybrid:
		return fmt.Sprintf("%s(%d, %s)", s.Kind, s.Capacity, s.TTL)
	default:
		return fmt.Sprintf("%s(%d)", s.Kind, s.Capacity)
	}
}

// PatternKind classifies an observed access pattern.
type PatternKind string

const (
	PatternFrequent  PatternKind = "frequent"
	PatternTemporal  PatternKind = "temporal"
	PatternCritical  PatternKind = "critical"
	PatternEphemeral PatternKind = "ephemeral"
)

// AccessPattern is the input to the recommendation engine.
type AccessPattern struct {
	Kind      PatternKind   `json:"kind"`
	Frequency int           `json:"frequency,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

func Frequent(frequency int) AccessPattern {
	return AccessPattern{Kind: PatternFrequent, Frequency: frequency}
}

func Temporal(d time.Duration) AccessPattern {
	return AccessPattern{Kind: PatternTemporal, Duration: d}
}

func Critical() AccessPattern  { return AccessPattern{Kind: PatternCritical} }
func Ephemeral() AccessPattern { return AccessPattern{Kind: PatternEphemeral} }

// Recommendation is a suggested placement for a key. A nil TTL means the
// entry should never expire.
type Recommendation struct {
	ShouldCache bool           `json:"should_cache"`
	Level       Tier           `json:"level"`
	TTL         *time.Duration `json:"ttl,omitempty"`
	Reason      string         `json:"reason"`
}
