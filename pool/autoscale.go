package pool

import (
	"context"
	"fmt"
)

// SetAutoScaling changes auto-scaling at runtime. Thresholds must satisfy
// 0 <= down < up <= 1.
func (p *Pool[T]) SetAutoScaling(enabled bool, up, down float64) error {
	if err := validateThresholds(up, down); err != nil {
		return fmt.Errorf("pool %s: %w", p.id, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg.AutoScale = enabled
	p.cfg.ScaleUpThreshold = up
	p.cfg.ScaleDownThreshold = down
	return nil
}

// autoScale runs one scaling pass. At or above the scale-up threshold one
// resource is created synchronously while total stays below MaxSize. At or
// below the scale-down threshold, idle resources beyond MaxIdle are retired
// without going below MinSize.
func (p *Pool[T]) autoScale(ctx context.Context) {
	p.mu.Lock()
	if !p.cfg.AutoScale || p.closing {
		p.mu.Unlock()
		return
	}
	total := len(p.resources)
	if total == 0 {
		p.mu.Unlock()
		return
	}
	ratio := float64(total-len(p.available)) / float64(total)

	switch {
	case ratio >= p.cfg.ScaleUpThreshold && total+p.creating < p.cfg.MaxSize:
		p.creating++
		p.mu.Unlock()
		p.scaleUp(ctx, ratio)

	case ratio <= p.cfg.ScaleDownThreshold && total > p.cfg.MinSize:
		excess := len(p.available) - p.cfg.MaxIdle
		if limit := total - p.cfg.MinSize; excess > limit {
			excess = limit
		}
		if excess <= 0 {
			p.mu.Unlock()
			return
		}
		victims := make([]*PooledResource[T], 0, excess)
		for len(victims) < excess {
			id, ok := p.takeAvailableLocked()
			if !ok {
				break
			}
			victims = append(victims, p.resources[id])
			p.removeLocked(id)
		}
		p.mu.Unlock()

		p.stats.scaleDowns.Add(int64(len(victims)))
		p.logger.Info("Pool scaled down", "pool_id", p.id, "removed", len(victims), "usage_ratio", ratio)
		for _, r := range victims {
			p.retire(ctx, r)
		}

	default:
		p.mu.Unlock()
	}
}

// scaleUp expects p.creating to have been incremented by the caller.
func (p *Pool[T]) scaleUp(ctx context.Context, ratio float64) {
	r, err := p.create(ctx)

	p.mu.Lock()
	p.creating--
	if err != nil {
		p.broadcastLocked()
		p.mu.Unlock()
		p.logger.Warn("Scale-up failed", "pool_id", p.id, "error", err)
		return
	}
	if p.closing {
		p.mu.Unlock()
		_ = p.dispose(ctx, r)
		return
	}
	p.addLocked(r)
	total := len(p.resources)
	p.mu.Unlock()

	p.stats.scaleUps.Add(1)
	p.logger.Info("Pool scaled up", "pool_id", p.id, "total", total, "usage_ratio", ratio)
}
