package cache

import (
	"cmp"
	"context"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

// PreheatKind names a preheat strategy.
type PreheatKind string

const (
	PreheatSequential PreheatKind = "sequential"
	PreheatParallel   PreheatKind = "parallel"
	PreheatPriority   PreheatKind = "priority"
	PreheatAdaptive   PreheatKind = "adaptive"
)

// PreheatStrategy selects how PreheatCache walks its keys.
type PreheatStrategy struct {
	Kind           PreheatKind    `json:"kind" yaml:"kind"`
	MaxConcurrency int            `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty"`
	Priorities     map[string]int `json:"priorities,omitempty" yaml:"priorities,omitempty"`
	Threshold      float64        `json:"threshold,omitempty" yaml:"threshold,omitempty"`
}

// Sequential visits keys one at a time in input order.
func Sequential() PreheatStrategy {
	return PreheatStrategy{Kind: PreheatSequential}
}

// Parallel visits keys in chunks of maxConcurrency, one goroutine per key.
func Parallel(maxConcurrency int) PreheatStrategy {
	return PreheatStrategy{Kind: PreheatParallel, MaxConcurrency: maxConcurrency}
}

// PriorityBased visits keys in descending priority. Keys without a
// priority rank as zero.
func PriorityBased(priorities map[string]int) PreheatStrategy {
	return PreheatStrategy{Kind: PreheatPriority, Priorities: priorities}
}

// Adaptive visits only keys with hit history, and only when their share of
// the input exceeds threshold.
func Adaptive(threshold float64) PreheatStrategy {
	return PreheatStrategy{Kind: PreheatAdaptive, Threshold: threshold}
}

// PreheatReport summarizes one preheat run.
type PreheatReport struct {
	RunID     string      `json:"run_id"`
	Strategy  PreheatKind `json:"strategy"`
	Requested int         `json:"requested"`
	Attempted int         `json:"attempted"`
	Warm      int         `json:"warm"`
	Canceled  bool        `json:"canceled"`
}

type preheatRun struct {
	c         *Coordinator
	attempted atomic.Int64
	warm      atomic.Int64
}

func (r *preheatRun) visit(ctx context.Context, key string) {
	r.attempted.Add(1)
	if _, ok := r.c.Get(ctx, key, types.TierMemory); ok {
		r.warm.Add(1)
	}
}

// PreheatCache drives a lookup for each key so that access statistics and
// hit history reflect the expected workload. It never promotes entries.
func (c *Coordinator) PreheatCache(ctx context.Context, keys []string, strategy PreheatStrategy) PreheatReport {
	report := PreheatReport{
		RunID:     uuid.New().String(),
		Strategy:  strategy.Kind,
		Requested: len(keys),
	}
	run := &preheatRun{c: c}

	var err error
	switch strategy.Kind {
	case PreheatSequential:
		err = run.sequential(ctx, keys)
	case PreheatParallel:
		err = run.parallel(ctx, keys, strategy.MaxConcurrency)
	case PreheatPriority:
		err = run.parallel(ctx, prioritize(keys, strategy.Priorities), c.preheatConcurrency)
	case PreheatAdaptive:
		if eligible := c.adaptiveKeys(keys, strategy.Threshold); len(eligible) > 0 {
			err = run.parallel(ctx, eligible, c.preheatConcurrency)
		}
	default:
		c.logger.Log("unknown preheat strategy", utils.WARN, categoryPreheat, map[string]any{
			"run_id":   report.RunID,
			"strategy": string(strategy.Kind),
		})
	}

	report.Attempted = int(run.attempted.Load())
	report.Warm = int(run.warm.Load())
	report.Canceled = err != nil

	c.metrics.RecordPreheat(string(strategy.Kind), report.Attempted, report.Warm)
	c.logger.Log("preheat finished", utils.INFO, categoryPreheat, map[string]any{
		"run_id":    report.RunID,
		"strategy":  string(strategy.Kind),
		"requested": report.Requested,
		"attempted": report.Attempted,
		"warm":      report.Warm,
		"canceled":  report.Canceled,
	})
	return report
}

// IntelligentPreheat is PreheatCache with the Adaptive strategy.
func (c *Coordinator) IntelligentPreheat(ctx context.Context, keys []string, threshold float64) PreheatReport {
	return c.PreheatCache(ctx, keys, Adaptive(threshold))
}

func (r *preheatRun) sequential(ctx context.Context, keys []string) error {
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.visit(ctx, key)
	}
	return nil
}

// parallel fans out over chunks of at most n keys and waits for each chunk
// before starting the next.
func (r *preheatRun) parallel(ctx context.Context, keys []string, n int) error {
	if n <= 0 {
		n = 1
	}
	for chunk := range slices.Chunk(keys, n) {
		if err := ctx.Err(); err != nil {
			return err
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, key := range chunk {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				r.visit(gctx, key)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}

func prioritize(keys []string, priorities map[string]int) []string {
	sorted := slices.Clone(keys)
	slices.SortStableFunc(sorted, func(a, b string) int {
		return cmp.Compare(priorities[b], priorities[a])
	})
	return sorted
}

func (c *Coordinator) adaptiveKeys(keys []string, threshold float64) []string {
	if len(keys) == 0 {
		return nil
	}

	c.mu.Lock()
	seen := c.stats.historyKeys()
	c.mu.Unlock()

	var eligible []string
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			eligible = append(eligible, key)
		}
	}
	if float64(len(eligible))/float64(len(keys)) <= threshold {
		return nil
	}
	return eligible
}
