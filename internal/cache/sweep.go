package cache

import (
	"context"

	"github.com/benbjohnson/clock"

	"github.com/tiercache/tiercache/pkg/types"
	"github.com/tiercache/tiercache/pkg/utils"
)

func (c *Coordinator) sweepLoop(ctx context.Context, ticker *clock.Ticker) {
	defer c.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes expired entries from the memory and disk tiers and probes
// tiers the health tracker has marked unhealthy.
func (c *Coordinator) sweep() {
	now := c.clock.Now()

	c.mu.Lock()
	strategy := c.strategy
	expired := c.memory.removeExpired(strategy, now)
	memSize, memLen := c.memory.size(), c.memory.len()
	c.mu.Unlock()

	diskExpired := 0
	if c.disk != nil {
		n, err := c.disk.RemoveExpired(strategy, now)
		if err != nil {
			c.recordFailure(types.TierDisk, "expire", err)
		}
		diskExpired = n
		c.metrics.UpdateTierSize(types.TierDisk.String(), c.disk.Usage(), c.disk.Len())
	}
	c.metrics.UpdateTierSize(types.TierMemory.String(), memSize, memLen)

	c.health.CheckUnhealthy(c.probe)

	if total := expired + diskExpired; total > 0 {
		c.metrics.RecordEvictions("expired", total)
		c.logger.Log("expired entries removed", utils.DEBUG, categorySweep, map[string]any{
			"memory": expired,
			"disk":   diskExpired,
		})
	}
}

func (c *Coordinator) probe(component string) error {
	switch component {
	case componentDisk:
		if c.disk != nil {
			return c.disk.Probe()
		}
	case componentNetwork:
		if c.network != nil {
			return c.network.Probe()
		}
	}
	return nil
}
