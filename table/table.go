package table

import (
	"errors"
	"fmt"

	"github.com/hupe1980/disttree/distance"
	"github.com/hupe1980/disttree/model"
	"github.com/hupe1980/disttree/tree"
)

var (
	// ErrClosed is returned when accessing a closed table.
	ErrClosed = errors.New("table: closed")
	// ErrNotIndexed is returned when a tree accessor is used before IndexData.
	ErrNotIndexed = errors.New("table: not indexed")
)

// Table is a dense row-major float32 matrix with per-row provenance.
// Indexing reorders rows in place (tree storage order) and records the
// permutation.
type Table struct {
	alloc Allocator
	dim   int
	n     int

	data []float32       // n rows of dim attributes
	ids  []model.PointID // provenance, parallel to data rows

	root       *tree.Node
	oldFromNew []int32 // storage pos -> position before the last IndexData
	newFromOld []int32

	closed bool
}

// New allocates an uninitialized table of n rows with dim attributes.
func New(alloc Allocator, dim, n int) (*Table, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("table: invalid attribute count %d", dim)
	}
	if n < 0 {
		return nil, fmt.Errorf("table: invalid entry count %d", n)
	}

	data, err := alloc.AllocFloat32(n * dim)
	if err != nil {
		return nil, fmt.Errorf("table: alloc data: %w", err)
	}
	ids, err := alloc.AllocPointIDs(n)
	if err != nil {
		return nil, fmt.Errorf("table: alloc provenance: %w", err)
	}

	return &Table{alloc: alloc, dim: dim, n: n, data: data, ids: ids}, nil
}

// AttributeCount returns the number of attributes per point.
func (t *Table) AttributeCount() int { return t.dim }

// EntryCount returns the number of points.
func (t *Table) EntryCount() int { return t.n }

// Data returns the backing matrix, n*dim values in row-major order.
func (t *Table) Data() []float32 { return t.data }

// Row returns row i as a slice aliasing the backing matrix.
func (t *Table) Row(i int) []float32 {
	return t.data[i*t.dim : (i+1)*t.dim]
}

// CopyRow copies row i into dst, which must hold dim values.
func (t *Table) CopyRow(i int, dst []float32) {
	copy(dst, t.Row(i))
}

// SetRow overwrites row i.
func (t *Table) SetRow(i int, v []float32) {
	copy(t.Row(i), v)
}

// ID returns the provenance of the point stored at position i.
func (t *Table) ID(i int) model.PointID {
	if i < 0 || i >= t.n {
		return model.InvalidPointID
	}
	return t.ids[i]
}

// SetID sets the provenance of the point stored at position i.
func (t *Table) SetID(i int, id model.PointID) {
	t.ids[i] = id
}

// IDs returns the provenance array in storage order.
func (t *Table) IDs() []model.PointID { return t.ids }

// Indexed reports whether IndexData has built a tree over the table.
func (t *Table) Indexed() bool { return t.root != nil }

// Root returns the root of the local tree. Nil before IndexData.
func (t *Table) Root() *tree.Node { return t.root }

// LeafNodes returns the leaves of the local tree in storage order.
func (t *Table) LeafNodes() ([]*tree.Node, error) {
	if t.root == nil {
		return nil, ErrNotIndexed
	}
	return tree.LeafNodes(t.root, nil), nil
}

// OldFromNew maps a storage-order position to the position the point
// occupied before the last IndexData call. Nil before indexing.
func (t *Table) OldFromNew() []int32 { return t.oldFromNew }

// NewFromOld is the inverse of OldFromNew. Nil before indexing.
func (t *Table) NewFromOld() []int32 { return t.newFromOld }

// RootCenter returns the centroid of the whole table recorded at the
// tree root.
func (t *Table) RootCenter() ([]float32, error) {
	if t.root == nil {
		return nil, ErrNotIndexed
	}
	return t.root.Bound().Center, nil
}

// IndexData builds the local tree with the given leaf size and reorders
// rows (and their provenance) into tree storage order. maxLeaves > 0
// caps the leaf count; the sample tree uses leaf size 1 with a leaf
// target of the group size.
//
// Calling IndexData again rebuilds from the current storage order; the
// recorded permutation always refers to the order before this call.
func (t *Table) IndexData(_ distance.Metric, leafSize, maxLeaves int) error {
	if t.closed {
		return ErrClosed
	}

	root, order, err := tree.Build(t.data, t.dim, leafSize, maxLeaves)
	if err != nil {
		return err
	}

	// Apply the permutation through transient scratch buffers; the
	// owned matrix itself stays with the allocator that made it.
	scratch := make([]float32, len(t.data))
	copy(scratch, t.data)
	scratchIDs := make([]model.PointID, len(t.ids))
	copy(scratchIDs, t.ids)

	newFromOld := make([]int32, t.n)
	for newPos, oldPos := range order {
		copy(t.data[newPos*t.dim:(newPos+1)*t.dim], scratch[int(oldPos)*t.dim:(int(oldPos)+1)*t.dim])
		t.ids[newPos] = scratchIDs[oldPos]
		newFromOld[oldPos] = int32(newPos)
	}

	t.root = root
	t.oldFromNew = order
	t.newFromOld = newFromOld
	return nil
}

// Close drops the table's buffers. Heap buffers become garbage; arena
// buffers are reclaimed when the owning allocator closes.
func (t *Table) Close() {
	t.closed = true
	t.data = nil
	t.ids = nil
	t.root = nil
	t.oldFromNew = nil
	t.newFromOld = nil
	t.n = 0
}
