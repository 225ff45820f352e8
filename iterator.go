package disttree

import (
	"fmt"

	"github.com/hupe1980/disttree/model"
	"github.com/hupe1980/disttree/table"
	"github.com/hupe1980/disttree/tree"
	"github.com/hupe1980/disttree/util"
)

// TreeIterator is a restartable, non-owning cursor over a contiguous
// [begin, end) window of storage-order positions in the local shard.
// It holds only a back-reference; rebuilding or closing the shard
// invalidates every outstanding cursor, so never retain one across an
// IndexData call.
type TreeIterator struct {
	tbl   *table.Table
	rng   *util.RNG
	begin int
	count int
	pos   int // next relative offset to yield
}

// NodeIterator returns a cursor over the storage-order range covered
// by a node of the local tree.
func (d *DistributedTable) NodeIterator(n *tree.Node) (TreeIterator, error) {
	if n == nil {
		return TreeIterator{}, fmt.Errorf("nil node")
	}
	return d.RangeIterator(n.Begin(), n.Count())
}

// RangeIterator returns a cursor over an explicit (begin, count)
// window of storage-order positions.
func (d *DistributedTable) RangeIterator(begin, count int) (TreeIterator, error) {
	if d.owned == nil {
		return TreeIterator{}, ErrNotInitialized
	}
	if begin < 0 || count < 0 || begin+count > d.owned.EntryCount() {
		return TreeIterator{}, fmt.Errorf("range [%d, %d) outside shard of %d entries", begin, begin+count, d.owned.EntryCount())
	}
	return TreeIterator{tbl: d.owned, rng: d.rng, begin: begin, count: count}, nil
}

// HasNext reports whether the cursor has positions left to yield.
func (it *TreeIterator) HasNext() bool {
	return it.pos < it.count
}

// Next advances the cursor and returns the provenance identifier of
// the point it moved onto. If dst is non-nil the point's feature
// vector is copied into it. Returns false when the window is drained.
func (it *TreeIterator) Next(dst []float32) (model.PointID, bool) {
	if it.pos >= it.count {
		return model.InvalidPointID, false
	}
	abs := it.begin + it.pos
	it.pos++
	if dst != nil {
		it.tbl.CopyRow(abs, dst)
	}
	return it.tbl.ID(abs), true
}

// Get copies the point at relative offset i within the window into dst
// without moving the cursor.
func (it *TreeIterator) Get(i int, dst []float32) error {
	if i < 0 || i >= it.count {
		return fmt.Errorf("offset %d outside window of %d entries", i, it.count)
	}
	it.tbl.CopyRow(it.begin+i, dst)
	return nil
}

// GetID returns the provenance identifier at relative offset i within
// the window.
func (it *TreeIterator) GetID(i int) model.PointID {
	if i < 0 || i >= it.count {
		return model.InvalidPointID
	}
	return it.tbl.ID(it.begin + i)
}

// RandomPick copies a uniformly random point of the window into dst
// and returns its provenance identifier. The cursor does not advance.
func (it *TreeIterator) RandomPick(dst []float32) (model.PointID, error) {
	if it.count == 0 {
		return model.InvalidPointID, fmt.Errorf("empty window")
	}
	abs := it.begin + it.rng.Intn(it.count)
	if dst != nil {
		it.tbl.CopyRow(abs, dst)
	}
	return it.tbl.ID(abs), nil
}

// Reset rewinds the cursor to just before the first position.
func (it *TreeIterator) Reset() {
	it.pos = 0
}

// Count returns the number of positions in the window.
func (it *TreeIterator) Count() int { return it.count }

// Begin returns the first storage-order position of the window.
func (it *TreeIterator) Begin() int { return it.begin }

// End returns one past the last storage-order position of the window.
func (it *TreeIterator) End() int { return it.begin + it.count }

// CurrentIndex returns the relative offset the cursor will yield next.
func (it *TreeIterator) CurrentIndex() int { return it.pos }
