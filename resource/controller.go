// Package resource bounds what one rank may consume during
// rebalancing: bytes in flight on the wire, scratch memory held by
// extracted fragments, and the number of concurrent transfers.
package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits. Zero values disable the corresponding
// limit.
type Config struct {
	// MemoryLimitBytes is the hard limit for fragment scratch memory.
	// If 0, usage is tracked but not enforced.
	MemoryLimitBytes int64

	// MaxInflightTransfers caps concurrent outbound migration
	// transfers. If 0, defaults to 1.
	MaxInflightTransfers int64

	// NetworkLimitBytesPerSec throttles migration traffic. If 0,
	// unlimited.
	NetworkLimitBytesPerSec int64
}

// Controller enforces the limits of one rank. A nil Controller is
// valid and enforces nothing.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil if unlimited
	memUsed atomic.Int64

	transferSem *semaphore.Weighted

	netLimiter *rate.Limiter
}

// NewController creates a controller for the given limits.
func NewController(cfg Config) *Controller {
	if cfg.MaxInflightTransfers <= 0 {
		cfg.MaxInflightTransfers = 1
	}

	c := &Controller{
		cfg:         cfg,
		transferSem: semaphore.NewWeighted(cfg.MaxInflightTransfers),
	}

	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.NetworkLimitBytesPerSec > 0 {
		c.netLimiter = rate.NewLimiter(rate.Limit(cfg.NetworkLimitBytesPerSec), int(cfg.NetworkLimitBytesPerSec))
	}

	return c
}

// AcquireMemory reserves scratch memory, blocking while the hard limit
// is exceeded.
func (c *Controller) AcquireMemory(ctx context.Context, bytes int64) error {
	if c == nil || bytes <= 0 {
		return nil
	}
	if c.memSem != nil {
		if err := c.memSem.Acquire(ctx, bytes); err != nil {
			return err
		}
	}
	c.memUsed.Add(bytes)
	return nil
}

// ReleaseMemory releases reserved scratch memory.
func (c *Controller) ReleaseMemory(bytes int64) {
	if c == nil || bytes <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(bytes)
	}
	c.memUsed.Add(-bytes)
}

// MemoryUsage returns the currently reserved scratch memory in bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// AcquireTransfer reserves an outbound transfer slot, blocking while
// all slots are busy.
func (c *Controller) AcquireTransfer(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.transferSem.Acquire(ctx, 1)
}

// ReleaseTransfer releases a transfer slot.
func (c *Controller) ReleaseTransfer() {
	if c == nil {
		return
	}
	c.transferSem.Release(1)
}

// AcquireNetwork waits until the throughput limit admits the given
// number of bytes.
func (c *Controller) AcquireNetwork(ctx context.Context, bytes int) error {
	if c == nil || c.netLimiter == nil {
		return nil
	}
	if bytes > c.netLimiter.Burst() {
		bytes = c.netLimiter.Burst()
	}
	return c.netLimiter.WaitN(ctx, bytes)
}
