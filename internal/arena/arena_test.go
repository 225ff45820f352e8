package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaAllocBytes(t *testing.T) {
	a, err := New(1024)
	require.NoError(t, err)
	defer a.Close()

	buf, err := a.AllocBytes(100)
	require.NoError(t, err)
	require.Len(t, buf, 100)

	// Mapped anonymous memory is zeroed.
	for _, b := range buf {
		assert.Zero(t, b)
	}

	// Writes must stick.
	for i := range buf {
		buf[i] = byte(i)
	}
	assert.Equal(t, byte(99), buf[99])
}

func TestArenaGrowsBeyondChunk(t *testing.T) {
	a, err := New(256)
	require.NoError(t, err)
	defer a.Close()

	// Larger than the chunk size: gets a dedicated chunk.
	buf, err := a.AllocBytes(1024)
	require.NoError(t, err)
	require.Len(t, buf, 1024)

	stats := a.Stats()
	assert.GreaterOrEqual(t, stats.ChunksAllocated, uint64(2))
	assert.Equal(t, uint64(1024), stats.BytesUsed)
}

func TestArenaSeparateAllocationsDoNotAlias(t *testing.T) {
	a, err := New(4096)
	require.NoError(t, err)
	defer a.Close()

	first, err := a.AllocBytes(64)
	require.NoError(t, err)
	second, err := a.AllocBytes(64)
	require.NoError(t, err)

	for i := range first {
		first[i] = 0xAA
	}
	for _, b := range second {
		assert.Zero(t, b)
	}
}

func TestArenaClose(t *testing.T) {
	a, err := New(0)
	require.NoError(t, err)

	_, err = a.AllocBytes(16)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close()) // idempotent

	_, err = a.AllocBytes(16)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestArenaZeroSize(t *testing.T) {
	a, err := New(0)
	require.NoError(t, err)
	defer a.Close()

	buf, err := a.AllocBytes(0)
	require.NoError(t, err)
	assert.Nil(t, buf)
}
