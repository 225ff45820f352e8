// Package table implements the point-container storage that a process
// owns: a dense row-major float32 matrix, the provenance of every row,
// and the permutation established by indexing the matrix with the local
// tree builder.
//
// Buffers come from an injected Allocator. The allocation strategy
// (Go heap or off-heap arena) is chosen once per process and used
// symmetrically for construction and release; a Table never outlives
// its allocator.
package table
