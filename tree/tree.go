package tree

import (
	"errors"
	"sort"
)

// ErrInvalidShape is returned when the data length is not a multiple of
// the dimension.
var ErrInvalidShape = errors.New("tree: data length is not a multiple of dim")

// Node is a binary space tree node covering the contiguous storage-order
// range [Begin, End) of the indexed matrix.
type Node struct {
	bound  Bound
	begin  int
	count  int
	left   *Node
	right  *Node
	sealed bool // unsplittable: all points identical
}

// Begin returns the first storage-order position covered by the node.
func (n *Node) Begin() int { return n.begin }

// Count returns the number of points covered by the node.
func (n *Node) Count() int { return n.count }

// End returns one past the last storage-order position covered.
func (n *Node) End() int { return n.begin + n.count }

// Bound returns the node's spatial bound.
func (n *Node) Bound() *Bound { return &n.bound }

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool { return n.left == nil }

// Left returns the left child, nil for leaves.
func (n *Node) Left() *Node { return n.left }

// Right returns the right child, nil for leaves.
func (n *Node) Right() *Node { return n.right }

// Build indexes the row-major matrix data (n x dim) and returns the
// root node together with the applied permutation: order[newPos] is the
// row's original position.
//
// Leaves are split while they hold more than leafSize points. If
// maxLeaves > 0 the total leaf count never exceeds it, largest leaves
// are split first, and splitting continues toward maxLeaves even after
// all leaves satisfy leafSize.
func Build(data []float32, dim, leafSize, maxLeaves int) (*Node, []int32, error) {
	if dim <= 0 || len(data)%dim != 0 {
		return nil, nil, ErrInvalidShape
	}
	if leafSize < 1 {
		leafSize = 1
	}

	n := len(data) / dim
	order := make([]int32, n)
	for i := range order {
		order[i] = int32(i)
	}

	root := &Node{begin: 0, count: n}
	leaves := []*Node{root}

	for {
		if maxLeaves > 0 && len(leaves) >= maxLeaves {
			break
		}
		target := pickSplit(leaves, leafSize, maxLeaves)
		if target < 0 {
			break
		}
		node := leaves[target]
		if !split(node, data, dim, order) {
			node.sealed = true
			continue
		}
		leaves[target] = node.left
		leaves = append(leaves, node.right)
	}

	fillBounds(root, data, dim, order)
	return root, order, nil
}

// pickSplit returns the index of the next leaf to split, or -1 if no
// leaf is eligible. Oversized leaves take priority; under a leaf-count
// target, the largest splittable leaf is chosen so the partitioning
// stays balanced.
func pickSplit(leaves []*Node, leafSize, maxLeaves int) int {
	best := -1
	for i, l := range leaves {
		if l.sealed || l.count < 2 {
			continue
		}
		if maxLeaves == 0 && l.count <= leafSize {
			continue
		}
		if best < 0 || l.count > leaves[best].count {
			best = i
		}
	}
	if best >= 0 && maxLeaves > 0 {
		return best
	}
	if best >= 0 && leaves[best].count > leafSize {
		return best
	}
	return -1
}

// split partitions node's index range by a median cut along the widest
// dimension. Returns false when all points in the range are identical.
func split(node *Node, data []float32, dim int, order []int32) bool {
	begin, end := node.begin, node.begin+node.count

	splitDim, spread := widestDim(data, dim, order, begin, end)
	if spread == 0 {
		return false
	}

	seg := order[begin:end]
	sort.Slice(seg, func(i, j int) bool {
		return data[int(seg[i])*dim+splitDim] < data[int(seg[j])*dim+splitDim]
	})

	mid := node.count / 2
	node.left = &Node{begin: begin, count: mid}
	node.right = &Node{begin: begin + mid, count: node.count - mid}
	return true
}

func widestDim(data []float32, dim int, order []int32, begin, end int) (int, float32) {
	bestDim, bestSpread := 0, float32(0)
	for d := 0; d < dim; d++ {
		lo := data[int(order[begin])*dim+d]
		hi := lo
		for i := begin + 1; i < end; i++ {
			v := data[int(order[i])*dim+d]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if spread := hi - lo; spread > bestSpread {
			bestDim, bestSpread = d, spread
		}
	}
	return bestDim, bestSpread
}

func fillBounds(n *Node, data []float32, dim int, order []int32) {
	computeBound(data, dim, order, n.begin, n.begin+n.count, &n.bound)
	if n.left != nil {
		fillBounds(n.left, data, dim, order)
		fillBounds(n.right, data, dim, order)
	}
}

// LeafNodes appends all leaves under root to dst, in storage order.
func LeafNodes(root *Node, dst []*Node) []*Node {
	if root == nil {
		return dst
	}
	if root.IsLeaf() {
		return append(dst, root)
	}
	dst = LeafNodes(root.left, dst)
	return LeafNodes(root.right, dst)
}
