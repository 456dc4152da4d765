// Package layout puts the tiered cache in front of a text layout provider.
// Shaping and line breaking stay inside the Provider; this package only
// keys requests and stores results.
package layout

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/tiercache/tiercache/internal/cache"
	"github.com/tiercache/tiercache/pkg/types"
)

// KeyPrefix starts every layout cache key.
const KeyPrefix = "layout:"

// Request describes one paragraph to lay out.
type Request struct {
	Text      string  `json:"text"`
	Font      string  `json:"font"`
	Size      float64 `json:"size"`
	MaxWidth  float64 `json:"max_width"`
	Direction string  `json:"direction,omitempty"`
}

// Line is one laid-out line.
type Line struct {
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Width   float64 `json:"width"`
	Ascent  float64 `json:"ascent"`
	Descent float64 `json:"descent"`
}

// Result is what a Provider returns.
type Result struct {
	Lines  []Line  `json:"lines"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Provider performs the actual layout.
type Provider interface {
	Layout(ctx context.Context, req Request) (*Result, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (*Result, error)

func (f ProviderFunc) Layout(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// Engine serves layouts from the cache and falls back to the provider.
type Engine struct {
	cache    *cache.Coordinator
	provider Provider
	level    types.Tier
}

// Option configures an Engine.
type Option func(*Engine)

// WithTier stores computed results at level instead of memory.
func WithTier(level types.Tier) Option {
	return func(e *Engine) { e.level = level }
}

// NewEngine creates an Engine.
func NewEngine(c *cache.Coordinator, p Provider, opts ...Option) *Engine {
	e := &Engine{cache: c, provider: p, level: types.TierMemory}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Layout returns the cached result for req, computing and storing it on a
// miss. Provider errors are returned and nothing is cached.
func (e *Engine) Layout(ctx context.Context, req Request) (*Result, error) {
	key := Key(req)
	if res, ok := cache.Get[*Result](ctx, e.cache, key, types.TierMemory); ok && res != nil {
		return res, nil
	}

	res, err := e.provider.Layout(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", key, err)
	}
	e.cache.Set(ctx, key, res, e.level)
	return res, nil
}

// Invalidate drops the cached result for req.
func (e *Engine) Invalidate(ctx context.Context, req Request) {
	e.cache.Remove(ctx, Key(req))
}

// Key hashes every field of req into a cache key.
func Key(req Request) string {
	d := xxhash.New()
	writeField(d, req.Text)
	writeField(d, req.Font)
	writeField(d, strconv.FormatUint(math.Float64bits(req.Size), 16))
	writeField(d, strconv.FormatUint(math.Float64bits(req.MaxWidth), 16))
	writeField(d, req.Direction)
	return fmt.Sprintf("%s%016x", KeyPrefix, d.Sum64())
}

// writeField length-prefixes s so adjacent fields cannot run together.
func writeField(d *xxhash.Digest, s string) {
	_, _ = d.WriteString(strconv.Itoa(len(s)))
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(s)
}

const (
	resultOverhead = 64
	lineSize       = 40
)

// EstimateSize is a cache.SizeEstimator that charges layout results by
// their line count and everything else the default entry size.
func EstimateSize(v any) int64 {
	res, ok := v.(*Result)
	if !ok || res == nil {
		return cache.DefaultEntrySize
	}
	return resultOverhead + int64(len(res.Lines))*lineSize
}

// Estimator charges layout results like EstimateSize and defers every
// other value to fallback.
func Estimator(fallback cache.SizeEstimator) cache.SizeEstimator {
	return func(v any) int64 {
		if res, ok := v.(*Result); ok && res != nil {
			return EstimateSize(res)
		}
		return fallback(v)
	}
}
