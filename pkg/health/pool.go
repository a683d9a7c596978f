package health

import (
	"context"
	"fmt"
	"time"
)

// PoolHealther reads the health string of a storage pool.
type PoolHealther interface {
	PoolHealth(ctx context.Context, pool string) (string, error)
}

// PoolChecker verifies that the ZFS pool backing a volume is in a state
// safe to restore onto. Anything other than ONLINE aborts a run before
// it mutates the pool.
type PoolChecker struct {
	zfs     PoolHealther
	pool    string
	Timeout time.Duration
}

// NewPoolChecker creates a pool health checker.
func NewPoolChecker(z PoolHealther, pool string) *PoolChecker {
	return &PoolChecker{
		zfs:     z,
		pool:    pool,
		Timeout: 30 * time.Second,
	}
}

// Check performs the pool health check
func (p *PoolChecker) Check(ctx context.Context) Result {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	state, err := p.zfs.PoolHealth(ctx, p.pool)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("pool %s: %v", p.pool, err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	if state != "ONLINE" {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("pool %s is %s", p.pool, state),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("pool %s is ONLINE", p.pool),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (p *PoolChecker) Type() CheckType {
	return CheckTypePool
}
