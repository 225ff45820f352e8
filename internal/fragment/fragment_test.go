package fragment

import (
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/disttree/model"
	"github.com/hupe1980/disttree/table"
)

func newTestTable(t *testing.T, dim, n int) *table.Table {
	t.Helper()

	tbl, err := table.New(table.NewHeapAllocator(), dim, n)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		row := make([]float32, dim)
		for d := range row {
			row[d] = float32(i*dim + d)
		}
		tbl.SetRow(i, row)
		tbl.SetID(i, model.PointID{Rank: 2, Index: int32(i)})
	}
	return tbl
}

func TestExtractEncodeDecode(t *testing.T) {
	tbl := newTestTable(t, 3, 10)

	rows := roaring.BitmapOf(1, 4, 7)
	frag, err := Extract(tbl, rows)
	require.NoError(t, err)
	require.Equal(t, 3, frag.Count())

	payload, err := frag.Encode()
	require.NoError(t, err)

	got, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, frag.Dim, got.Dim)
	assert.Equal(t, frag.IDs, got.IDs)
	assert.Equal(t, frag.Data, got.Data)

	// Rows arrive in ascending row order.
	assert.Equal(t, model.PointID{Rank: 2, Index: 1}, got.IDs[0])
	assert.Equal(t, []float32{12, 13, 14}, got.Data[3:6])
}

func TestExtractOutOfRange(t *testing.T) {
	tbl := newTestTable(t, 2, 4)

	_, err := Extract(tbl, roaring.BitmapOf(9))
	assert.Error(t, err)
}

func TestEncodeEmptyFragment(t *testing.T) {
	f := &Fragment{Dim: 5}
	payload, err := f.Encode()
	require.NoError(t, err)

	got, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Count())
	assert.Equal(t, 5, got.Dim)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("short"))
	assert.Error(t, err)

	f := &Fragment{IDs: []model.PointID{{Rank: 0, Index: 0}}, Data: []float32{1, 2}, Dim: 2}
	payload, err := f.Encode()
	require.NoError(t, err)
	payload[0] ^= 0xFF
	_, err = Decode(payload)
	assert.Error(t, err)
}

func TestEncodeShapeMismatch(t *testing.T) {
	f := &Fragment{IDs: []model.PointID{{}}, Data: []float32{1}, Dim: 2}
	_, err := f.Encode()
	assert.Error(t, err)
}
