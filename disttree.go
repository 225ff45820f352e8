package disttree

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/disttree/comm"
	"github.com/hupe1980/disttree/loader"
	"github.com/hupe1980/disttree/table"
	"github.com/hupe1980/disttree/util"
)

// DistributedTable owns one process's shard of a dataset partitioned
// across a fixed group of cooperating processes, plus the group-wide
// bookkeeping: the entry-count directory and, after IndexData, the
// global summary tree.
//
// The protocol is SPMD: every process of the group constructs its own
// DistributedTable, calls Init, and then calls IndexData concurrently
// with its peers. All collective phases block until the whole group
// arrives; a process that never arrives stalls the group (bounded only
// by the context).
type DistributedTable struct {
	opts    options
	logger  *Logger
	metrics MetricsCollector
	rng     *util.RNG

	group comm.Group
	dim   int

	owned     *table.Table
	global    *table.Table
	directory []int // directory[r] = entry count of rank r
}

// New creates an empty DistributedTable. Call Init to load the shard.
func New(optFns ...Option) *DistributedTable {
	opts := applyOptions(optFns)
	return &DistributedTable{
		opts:    opts,
		logger:  opts.logger,
		metrics: opts.metricsCollector,
		rng:     util.NewRNG(opts.seed),
	}
}

// Init loads this process's shard (keyed by its rank in g) through the
// loader and populates the entry-count directory with a collective
// all-gather. Every rank of g must call Init concurrently.
func (d *DistributedTable) Init(ctx context.Context, l *loader.Loader, base string, g comm.Group) error {
	start := time.Now()
	err := d.init(ctx, l, base, g)
	d.metrics.RecordInit(time.Since(start), err)
	d.logger.WithRank(g.Rank()).LogInit(ctx, d.EntryCount(), g.Size(), err)
	return err
}

func (d *DistributedTable) init(ctx context.Context, l *loader.Loader, base string, g comm.Group) error {
	tbl, err := l.Load(ctx, d.opts.allocator, base, g.Rank())
	if err != nil {
		return err
	}

	// Peers must agree on dimensionality before any phase exchanges
	// point data.
	dims, err := comm.AllGatherInt(ctx, g, tbl.AttributeCount())
	if err != nil {
		tbl.Close()
		return err
	}
	for _, dim := range dims {
		if dim != tbl.AttributeCount() {
			tbl.Close()
			return &GroupMismatchError{Field: "attribute count", Want: tbl.AttributeCount(), Got: dim}
		}
	}

	directory, err := comm.AllGatherInt(ctx, g, tbl.EntryCount())
	if err != nil {
		tbl.Close()
		return err
	}

	if d.owned != nil {
		d.owned.Close()
	}
	d.owned = tbl
	d.dim = tbl.AttributeCount()
	d.group = g
	d.directory = directory
	d.global = nil
	return nil
}

// IsIndexed reports whether a global summary exists, i.e. IndexData
// has completed at least once since Init.
func (d *DistributedTable) IsIndexed() bool {
	return d.global != nil
}

// EntryCount returns the number of points in the local shard.
func (d *DistributedTable) EntryCount() int {
	if d.owned == nil {
		return 0
	}
	return d.owned.EntryCount()
}

// AttributeCount returns the number of attributes per point.
func (d *DistributedTable) AttributeCount() int {
	return d.dim
}

// LocalTable returns the local shard. The returned table is replaced
// wholesale by IndexData; do not retain it across a construction round.
func (d *DistributedTable) LocalTable() *table.Table {
	return d.owned
}

// GlobalSummary returns the summary table, one point per process, each
// equal to that process's shard-root centroid. Nil before IndexData.
func (d *DistributedTable) GlobalSummary() *table.Table {
	return d.global
}

// LocalEntryCount returns the number of points owned by the given
// rank, per the directory refreshed at Init and after each IndexData.
// Out-of-range ranks return -1 and a typed error instead of reading
// out of bounds.
func (d *DistributedTable) LocalEntryCount(rank int) (int, error) {
	if d.directory == nil {
		return -1, ErrNotInitialized
	}
	if rank < 0 || rank >= len(d.directory) {
		return -1, &InvalidRankError{Rank: rank, Limit: len(d.directory)}
	}
	return d.directory[rank], nil
}

// IndexData runs the full construction protocol: rebalances points
// across the group, indexes the local shard with the given leaf size,
// and assembles the global summary. All processes of g must call it
// concurrently with the same parameters.
//
// The shard buffer is replaced; cursors and table references obtained
// before the call are invalid afterwards.
func (d *DistributedTable) IndexData(ctx context.Context, g comm.Group, metric Metric, leafSize int, sampleProbability float64) error {
	start := time.Now()
	err := d.indexData(ctx, g, metric, leafSize, sampleProbability)
	d.metrics.RecordIndex(time.Since(start), err)
	if g != nil {
		d.logger.WithRank(g.Rank()).LogIndex(ctx, d.EntryCount(), time.Since(start), err)
	}
	return err
}

func (d *DistributedTable) indexData(ctx context.Context, g comm.Group, metric Metric, leafSize int, sampleProbability float64) error {
	if d.owned == nil || g == nil {
		return ErrNotInitialized
	}
	if sampleProbability <= 0 || sampleProbability > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidSampleProbability, sampleProbability)
	}
	if leafSize < 1 {
		return fmt.Errorf("invalid leaf size %d", leafSize)
	}
	if g.Size() != len(d.directory) {
		return &GroupMismatchError{Field: "group size", Want: len(d.directory), Got: g.Size()}
	}

	// Fail fast on peers that entered the protocol with a different
	// shape; without this check a mismatch deadlocks in a later phase.
	sizes, err := comm.AllGatherInt(ctx, g, g.Size())
	if err != nil {
		return err
	}
	for _, s := range sizes {
		if s != g.Size() {
			return &GroupMismatchError{Field: "group size", Want: g.Size(), Got: s}
		}
	}
	dims, err := comm.AllGatherInt(ctx, g, d.dim)
	if err != nil {
		return err
	}
	for _, dim := range dims {
		if dim != d.dim {
			return &GroupMismatchError{Field: "attribute count", Want: d.dim, Got: dim}
		}
	}

	return d.rebalanceAndIndex(ctx, g, metric, leafSize, sampleProbability)
}

// Close releases the shard and the global summary. Buffers return to
// whichever allocator produced them; arena memory is reclaimed when
// the owning allocator closes.
func (d *DistributedTable) Close() error {
	if d.owned != nil {
		d.owned.Close()
		d.owned = nil
	}
	if d.global != nil {
		d.global.Close()
		d.global = nil
	}
	d.directory = nil
	return nil
}
