package loader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/disttree/blobstore"
	"github.com/hupe1980/disttree/model"
	"github.com/hupe1980/disttree/table"
)

func TestWriteLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	l := New(blobstore.NewMemoryStore())

	data := []float32{1, 2, 3, 4, 5, 6}
	require.NoError(t, l.Write(ctx, "points", 3, 2, data))

	tbl, err := l.Load(ctx, table.NewHeapAllocator(), "points", 3)
	require.NoError(t, err)
	defer tbl.Close()

	assert.Equal(t, 2, tbl.AttributeCount())
	assert.Equal(t, 3, tbl.EntryCount())
	assert.Equal(t, data, tbl.Data())

	for i := 0; i < tbl.EntryCount(); i++ {
		assert.Equal(t, model.PointID{Rank: 3, Index: int32(i)}, tbl.ID(i))
	}
}

func TestLoadFromLocalStore(t *testing.T) {
	ctx := context.Background()
	l := New(blobstore.NewLocalStore(t.TempDir()))

	data := make([]float32, 100*4)
	for i := range data {
		data[i] = float32(i % 7)
	}
	require.NoError(t, l.Write(ctx, "shard", 0, 4, data))

	tbl, err := l.Load(ctx, table.NewHeapAllocator(), "shard", 0)
	require.NoError(t, err)
	defer tbl.Close()

	assert.Equal(t, 100, tbl.EntryCount())
	assert.Equal(t, data, tbl.Data())
}

func TestLoadEmptyShard(t *testing.T) {
	ctx := context.Background()
	l := New(blobstore.NewMemoryStore())

	require.NoError(t, l.Write(ctx, "empty", 1, 8, nil))

	tbl, err := l.Load(ctx, table.NewHeapAllocator(), "empty", 1)
	require.NoError(t, err)
	defer tbl.Close()

	assert.Equal(t, 0, tbl.EntryCount())
	assert.Equal(t, 8, tbl.AttributeCount())
}

func TestLoadMissingShard(t *testing.T) {
	l := New(blobstore.NewMemoryStore())
	_, err := l.Load(context.Background(), table.NewHeapAllocator(), "nope", 0)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestLoadRejectsCorruptHeader(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	l := New(store)

	require.NoError(t, l.Write(ctx, "x", 0, 2, []float32{1, 2}))

	name := ShardName("x", 0)
	blob, err := store.Open(ctx, name)
	require.NoError(t, err)
	raw, err := blobstore.ReadAll(ctx, blob)
	require.NoError(t, err)
	require.NoError(t, blob.Close())

	raw[0] = 'X'
	require.NoError(t, store.Put(ctx, name, raw))

	_, err = l.Load(ctx, table.NewHeapAllocator(), "x", 0)
	assert.Error(t, err)
}

func TestWriteRejectsBadShape(t *testing.T) {
	l := New(blobstore.NewMemoryStore())
	assert.Error(t, l.Write(context.Background(), "bad", 0, 0, []float32{1}))
	assert.Error(t, l.Write(context.Background(), "bad", 0, 3, []float32{1, 2}))
}
