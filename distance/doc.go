// Package distance provides the metric types and vector distance
// kernels used by the tree builder, affinity voting, and clustering.
package distance
