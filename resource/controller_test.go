package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAccounting(t *testing.T) {
	c := NewController(Config{})
	ctx := context.Background()

	require.NoError(t, c.AcquireMemory(ctx, 100))
	assert.Equal(t, int64(100), c.MemoryUsage())

	c.ReleaseMemory(100)
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestMemoryHardLimitBlocks(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 64})
	ctx := context.Background()

	require.NoError(t, c.AcquireMemory(ctx, 64))

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := c.AcquireMemory(blocked, 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	c.ReleaseMemory(64)
	require.NoError(t, c.AcquireMemory(ctx, 64))
	c.ReleaseMemory(64)
}

func TestTransferSlots(t *testing.T) {
	c := NewController(Config{MaxInflightTransfers: 2})
	ctx := context.Background()

	require.NoError(t, c.AcquireTransfer(ctx))
	require.NoError(t, c.AcquireTransfer(ctx))

	blocked, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireTransfer(blocked), context.DeadlineExceeded)

	c.ReleaseTransfer()
	require.NoError(t, c.AcquireTransfer(ctx))
	c.ReleaseTransfer()
	c.ReleaseTransfer()
}

func TestNilControllerEnforcesNothing(t *testing.T) {
	var c *Controller
	ctx := context.Background()

	assert.NoError(t, c.AcquireMemory(ctx, 1<<40))
	assert.NoError(t, c.AcquireTransfer(ctx))
	assert.NoError(t, c.AcquireNetwork(ctx, 1<<30))
	c.ReleaseMemory(1)
	c.ReleaseTransfer()
	assert.Equal(t, int64(0), c.MemoryUsage())
}

func TestNetworkThrottleAdmitsBurst(t *testing.T) {
	c := NewController(Config{NetworkLimitBytesPerSec: 1 << 20})
	ctx := context.Background()

	// Within burst, no waiting.
	start := time.Now()
	require.NoError(t, c.AcquireNetwork(ctx, 1<<10))
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// Oversized requests are clamped to the burst instead of failing.
	require.NoError(t, c.AcquireNetwork(ctx, 1<<30))
}
