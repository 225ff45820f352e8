package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/disttree/distance"
	"github.com/hupe1980/disttree/model"
)

func fillSequential(t *testing.T, tbl *Table) {
	t.Helper()
	for i := 0; i < tbl.EntryCount(); i++ {
		row := tbl.Row(i)
		for d := range row {
			row[d] = float32(i*10 + d)
		}
		tbl.SetID(i, model.PointID{Rank: 0, Index: int32(i)})
	}
}

func TestTableBasics(t *testing.T) {
	tbl, err := New(NewHeapAllocator(), 3, 5)
	require.NoError(t, err)

	assert.Equal(t, 3, tbl.AttributeCount())
	assert.Equal(t, 5, tbl.EntryCount())
	assert.Len(t, tbl.Data(), 15)
	assert.False(t, tbl.Indexed())

	fillSequential(t, tbl)
	assert.Equal(t, []float32{20, 21, 22}, tbl.Row(2))
	assert.Equal(t, model.PointID{Rank: 0, Index: 2}, tbl.ID(2))
	assert.Equal(t, model.InvalidPointID, tbl.ID(99))

	dst := make([]float32, 3)
	tbl.CopyRow(4, dst)
	assert.Equal(t, []float32{40, 41, 42}, dst)
}

func TestTableInvalidShape(t *testing.T) {
	_, err := New(NewHeapAllocator(), 0, 5)
	assert.Error(t, err)
	_, err = New(NewHeapAllocator(), 3, -1)
	assert.Error(t, err)
}

func TestIndexDataPermutesProvenance(t *testing.T) {
	tbl, err := New(NewHeapAllocator(), 1, 4)
	require.NoError(t, err)

	// Reverse-sorted scalars: indexing sorts them.
	vals := []float32{9, 3, 7, 1}
	for i, v := range vals {
		tbl.SetRow(i, []float32{v})
		tbl.SetID(i, model.PointID{Rank: 2, Index: int32(i)})
	}

	require.NoError(t, tbl.IndexData(distance.MetricL2, 1, 0))
	require.True(t, tbl.Indexed())

	oldFromNew := tbl.OldFromNew()
	newFromOld := tbl.NewFromOld()
	require.Len(t, oldFromNew, 4)
	require.Len(t, newFromOld, 4)

	for newPos := 0; newPos < 4; newPos++ {
		oldPos := oldFromNew[newPos]
		// The row moved together with its provenance.
		assert.Equal(t, vals[oldPos], tbl.Row(newPos)[0])
		assert.Equal(t, model.PointID{Rank: 2, Index: oldPos}, tbl.ID(newPos))
		// Inverse permutation holds.
		assert.Equal(t, int32(newPos), newFromOld[oldPos])
	}

	leaves, err := tbl.LeafNodes()
	require.NoError(t, err)
	total := 0
	for _, l := range leaves {
		total += l.Count()
	}
	assert.Equal(t, 4, total)

	center, err := tbl.RootCenter()
	require.NoError(t, err)
	assert.InDelta(t, 5.0, float64(center[0]), 1e-5)
}

func TestLeafAccessorsBeforeIndex(t *testing.T) {
	tbl, err := New(NewHeapAllocator(), 2, 2)
	require.NoError(t, err)

	_, err = tbl.LeafNodes()
	assert.ErrorIs(t, err, ErrNotIndexed)
	_, err = tbl.RootCenter()
	assert.ErrorIs(t, err, ErrNotIndexed)
	assert.Nil(t, tbl.OldFromNew())
}

func TestArenaAllocatorBacksTable(t *testing.T) {
	alloc, err := NewArenaAllocator(1 << 16)
	require.NoError(t, err)
	defer alloc.Close()

	tbl, err := New(alloc, 4, 10)
	require.NoError(t, err)
	fillSequential(t, tbl)

	require.NoError(t, tbl.IndexData(distance.MetricL2, 2, 0))
	assert.True(t, tbl.Indexed())
	assert.Equal(t, 10, tbl.EntryCount())
}

func TestTableClose(t *testing.T) {
	tbl, err := New(NewHeapAllocator(), 2, 2)
	require.NoError(t, err)

	tbl.Close()
	assert.Equal(t, 0, tbl.EntryCount())
	assert.ErrorIs(t, tbl.IndexData(distance.MetricL2, 1, 0), ErrClosed)
}

func TestEmptyTableIndex(t *testing.T) {
	tbl, err := New(NewHeapAllocator(), 3, 0)
	require.NoError(t, err)
	require.NoError(t, tbl.IndexData(distance.MetricL2, 4, 0))
	assert.True(t, tbl.Indexed())
}
