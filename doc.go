// Package disttree builds and rebalances a two-level spatial index
// over a point dataset partitioned across a fixed group of cooperating
// processes.
//
// Each process owns a shard of points. A construction round samples
// the global dataset into a coarse top-level tree, auctions its leaves
// so every process owns exactly one spatial region, migrates points
// between processes until each shard matches its region, and finally
// assembles a shallow global summary tree over the per-process region
// centroids. Afterwards a read-only traversal cursor walks the indexed
// local shard.
//
// The group runs SPMD: every process executes the same call sequence
// and every phase boundary is a blocking collective. There is no
// partial-failure recovery; a stalled process stalls the group, bounded
// only by the caller's context.
package disttree

import "github.com/hupe1980/disttree/distance"

// Metric selects the distance function used throughout a construction
// round.
type Metric = distance.Metric

// Re-exported metric values.
const (
	MetricL2     = distance.MetricL2
	MetricCosine = distance.MetricCosine
	MetricDot    = distance.MetricDot
)
