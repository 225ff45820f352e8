// Package tree builds binary space trees over columnar float32
// matrices.
//
// The builder reorders points so that every node covers a contiguous
// [begin, end) range in storage order and reports the permutation it
// applied. Splits are median cuts along the widest dimension; every
// node carries a bound (centroid + covering radius) used for
// nearest-region pruning.
//
// A leaf-count target can cap the build: the sample tree of the
// distributed construction protocol is built with leaf size 1 and a
// leaf target equal to the process-group size, yielding one candidate
// region per process.
package tree
