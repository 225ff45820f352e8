package disttree

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/disttree/auction"
	"github.com/hupe1980/disttree/comm"
	"github.com/hupe1980/disttree/distance"
	"github.com/hupe1980/disttree/internal/fragment"
	"github.com/hupe1980/disttree/kmeans"
	"github.com/hupe1980/disttree/model"
	"github.com/hupe1980/disttree/table"
	"github.com/hupe1980/disttree/tree"
)

// rebalanceAndIndex runs the seven collectively synchronized phases of
// a construction round. Every phase ends on a blocking collective, so
// no rank enters phase k+1 before the whole group finishes phase k.
func (d *DistributedTable) rebalanceAndIndex(ctx context.Context, g comm.Group, metric Metric, leafSize int, sampleProbability float64) error {
	size := g.Size()
	log := d.logger.WithRank(g.Rank())

	dist, err := distance.Provider(metric)
	if err != nil {
		return err
	}

	// Phase 1: subset sampling.
	phaseStart := time.Now()
	sample := d.sampleShard(sampleProbability)
	d.recordPhase(ctx, log, "sampling", phaseStart)

	// Phase 2: sample aggregation at rank 0.
	phaseStart = time.Now()
	aggregated, err := d.aggregateSamples(ctx, g, sample)
	if err != nil {
		return err
	}
	if err := g.Barrier(ctx); err != nil {
		return err
	}
	d.recordPhase(ctx, log, "aggregation", phaseStart)

	// Phase 3: top-level sample tree and leaf broadcast.
	phaseStart = time.Now()
	candidates, err := d.broadcastCandidates(ctx, g, aggregated)
	if err != nil {
		return err
	}
	if len(candidates) < size {
		candidates = d.replenishLeaves(candidates, size)
	}
	d.recordPhase(ctx, log, "leaf_broadcast", phaseStart)

	// Phase 4: local affinity voting over the full shard.
	phaseStart = time.Now()
	affinity := d.voteAffinity(dist, candidates)
	d.recordPhase(ctx, log, "affinity_voting", phaseStart)

	// Phase 5: auction assignment. One process owns every leaf; with a
	// single process the assignment is trivially leaf 0.
	phaseStart = time.Now()
	won := 0
	if size > 1 {
		won, err = auction.Assign(ctx, g, affinity, 1/float64(size))
		if err != nil {
			return err
		}
	}
	d.recordPhase(ctx, log, "auction", phaseStart)

	// Phase 6: bounded-neighborhood rebalancing and migration. A group
	// of one skips the neighbor exchange entirely.
	if size > 1 {
		phaseStart = time.Now()
		res, err := kmeans.Compute(ctx, g, metric, d.owned, size, kmeans.DefaultIterations, candidates[won].Center)
		if err != nil {
			return err
		}
		if err := d.migrate(ctx, g, log, res); err != nil {
			return err
		}
		d.recordPhase(ctx, log, "migration", phaseStart)
	}

	// Phase 7: local indexing, global summary, directory refresh.
	phaseStart = time.Now()
	if err := d.owned.IndexData(metric, leafSize, 0); err != nil {
		return err
	}
	if err := d.buildGlobalSummary(ctx, g, metric); err != nil {
		return err
	}
	directory, err := comm.AllGatherInt(ctx, g, d.owned.EntryCount())
	if err != nil {
		return err
	}
	d.directory = directory
	d.recordPhase(ctx, log, "local_index", phaseStart)

	return nil
}

func (d *DistributedTable) recordPhase(ctx context.Context, log *Logger, phase string, start time.Time) {
	elapsed := time.Since(start)
	d.metrics.RecordPhase(phase, elapsed)
	log.LogPhase(ctx, phase, elapsed)
}

// sampleShard draws max(floor(p*n), 1) local points without
// replacement, or none from an empty shard. The partial Fisher-Yates
// pass touches only the drawn slots, O(k) not O(n).
func (d *DistributedTable) sampleShard(p float64) []float32 {
	n := d.owned.EntryCount()
	if n == 0 {
		return nil
	}
	k := int(math.Floor(p * float64(n)))
	if k < 1 {
		k = 1
	}

	rows := d.rng.SampleIndices(n, k)
	sample := make([]float32, 0, k*d.dim)
	for _, row := range rows {
		sample = append(sample, d.owned.Row(int(row))...)
	}
	return sample
}

// aggregateSamples gathers every rank's sample at rank 0 and assembles
// them into one matrix, each rank's block at the offset its gathered
// count dictates. Non-root ranks return nil.
func (d *DistributedTable) aggregateSamples(ctx context.Context, g comm.Group, sample []float32) ([]float32, error) {
	counts, err := comm.GatherInt(ctx, g, 0, len(sample)/d.dim)
	if err != nil {
		return nil, err
	}
	parts, err := g.Gather(ctx, 0, encodeMatrix(sample))
	if err != nil {
		return nil, err
	}
	if g.Rank() != 0 {
		return nil, nil
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	aggregated := make([]float32, 0, total*d.dim)
	for r, part := range parts {
		block, err := decodeMatrix(part)
		if err != nil {
			return nil, err
		}
		if len(block) != counts[r]*d.dim {
			return nil, fmt.Errorf("rank %d sent %d sample values, count promises %d", r, len(block), counts[r]*d.dim)
		}
		aggregated = append(aggregated, block...)
	}
	return aggregated, nil
}

// broadcastCandidates builds the top-level tree over the aggregated
// sample on rank 0 (leaf size 1, leaf-count target = group size) and
// broadcasts its leaf bounds. Point data never leaves rank 0; only
// centroids and radii travel.
func (d *DistributedTable) broadcastCandidates(ctx context.Context, g comm.Group, aggregated []float32) ([]tree.Bound, error) {
	var payload []byte
	if g.Rank() == 0 && len(aggregated) > 0 {
		root, _, err := tree.Build(aggregated, d.dim, 1, g.Size())
		if err != nil {
			return nil, err
		}
		leaves := tree.LeafNodes(root, nil)
		bounds := make([]tree.Bound, len(leaves))
		for i, leaf := range leaves {
			bounds[i] = *leaf.Bound()
		}
		payload = encodeBounds(bounds, d.dim)
	}

	payload, err := g.Broadcast(ctx, 0, payload)
	if err != nil {
		return nil, err
	}
	candidates, err := decodeBounds(payload, d.dim)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrEmptyCandidateSet
	}
	return candidates, nil
}

// replenishLeaves pads the candidate set with synthetic leaves until
// it holds one per process. Each synthetic leaf is the average of s
// randomly chosen existing centroids, s drawn once per padding round;
// synthetic leaves carry no radius and no points.
func (d *DistributedTable) replenishLeaves(candidates []tree.Bound, groupSize int) []tree.Bound {
	existing := len(candidates)
	s := 1
	if existing > 1 {
		s = max(1, d.rng.Intn(existing))
	}

	for len(candidates) < groupSize {
		center := make([]float32, d.dim)
		for j := 0; j < s; j++ {
			src := candidates[d.rng.Intn(existing)].Center
			for dd := range center {
				center[dd] += src[dd]
			}
		}
		inv := 1.0 / float32(s)
		for dd := range center {
			center[dd] *= inv
		}
		candidates = append(candidates, tree.NewBound(center))
	}
	return candidates
}

// voteAffinity classifies every point of the full local shard against
// the candidate leaves by nearest centroid, producing this process's
// per-leaf affinity counts.
func (d *DistributedTable) voteAffinity(dist distance.Func, candidates []tree.Bound) []float64 {
	affinity := make([]float64, len(candidates))
	for i := 0; i < d.owned.EntryCount(); i++ {
		row := d.owned.Row(i)
		best, bestLeaf := float32(math.Inf(1)), 0
		for j := range candidates {
			if dd := candidates[j].MidDistanceSq(dist, row); dd < best {
				best = dd
				bestLeaf = j
			}
		}
		affinity[bestLeaf]++
	}
	return affinity
}

// migrate ships every local point to the rank the clustering converged
// it onto and assembles the new shard. Fragments to rank-i carry tag i
// and fragments to rank+i carry tag radius+i, so a sender/receiver
// pair never disagrees on a tag. Receives run strictly ordered: left
// neighbors nearest first, the local copy, then right neighbors.
// Send buffers stay untouched until every send completes; the closing
// barrier ends the phase.
func (d *DistributedTable) migrate(ctx context.Context, g comm.Group, log *Logger, res *kmeans.Result) error {
	me, size := g.Rank(), g.Size()
	radius := size
	left := min(me, radius)
	right := min(size-1-me, radius)

	outbound := make(map[int]*roaring.Bitmap)
	var kept []uint32
	for row, dest := range res.Assignments {
		if int(dest) == me {
			kept = append(kept, uint32(row))
			continue
		}
		bm, ok := outbound[int(dest)]
		if !ok {
			bm = roaring.New()
			outbound[int(dest)] = bm
		}
		bm.Add(uint32(row))
	}

	newTbl, err := table.New(d.opts.allocator, d.dim, res.TotalOwned)
	if err != nil {
		return err
	}

	// Non-blocking sends to every neighbor in the window, empty
	// fragments included so every receiver can post a matching receive.
	start := time.Now()
	var requests []*comm.Request
	var payloads [][]byte // keeps send buffers alive until WaitAll
	sent, bytesSent := 0, int64(0)

	send := func(dest, tag int) error {
		bm := outbound[dest]
		if bm == nil {
			bm = roaring.New()
		}
		frag, err := fragment.Extract(d.owned, bm)
		if err != nil {
			return err
		}
		payload, err := frag.Encode()
		if err != nil {
			return err
		}
		if err := d.opts.controller.AcquireNetwork(ctx, len(payload)); err != nil {
			return err
		}
		req, err := g.Isend(ctx, dest, tag, payload)
		if err != nil {
			return err
		}
		requests = append(requests, req)
		payloads = append(payloads, payload)
		sent += frag.Count()
		bytesSent += int64(len(payload))
		return nil
	}

	for i := 1; i <= left; i++ {
		if err := send(me-i, i); err != nil {
			newTbl.Close()
			return err
		}
	}
	for i := 1; i <= right; i++ {
		if err := send(me+i, radius+i); err != nil {
			newTbl.Close()
			return err
		}
	}

	// Strictly ordered receives, each fragment written at the running
	// offset. The left neighbor rank-i sent rightward, so its fragment
	// carries tag radius+i; the right neighbor rank+i sent leftward
	// with tag i.
	offset := 0
	received := 0
	receive := func(from, tag int) error {
		payload, err := g.Recv(ctx, from, tag)
		if err != nil {
			return err
		}
		frag, err := fragment.Decode(payload)
		if err != nil {
			return err
		}
		if frag.Dim != d.dim {
			return &GroupMismatchError{Field: "attribute count", Want: d.dim, Got: frag.Dim}
		}
		for j := 0; j < frag.Count(); j++ {
			if offset >= newTbl.EntryCount() {
				return fmt.Errorf("migration overflow: rank %d sent more points than clustering assigned here", from)
			}
			newTbl.SetRow(offset, frag.Data[j*d.dim:(j+1)*d.dim])
			newTbl.SetID(offset, frag.IDs[j])
			offset++
		}
		received += frag.Count()
		return nil
	}

	for i := 1; i <= left; i++ {
		if err := receive(me-i, radius+i); err != nil {
			newTbl.Close()
			return err
		}
	}

	// Locally retained points copy straight across, no network hop.
	for _, row := range kept {
		if offset >= newTbl.EntryCount() {
			newTbl.Close()
			return fmt.Errorf("migration overflow: local points exceed the clustering total")
		}
		newTbl.SetRow(offset, d.owned.Row(int(row)))
		newTbl.SetID(offset, d.owned.ID(int(row)))
		offset++
	}

	for i := 1; i <= right; i++ {
		if err := receive(me+i, i); err != nil {
			newTbl.Close()
			return err
		}
	}

	if offset != res.TotalOwned {
		newTbl.Close()
		return fmt.Errorf("migration assembled %d points, clustering assigned %d", offset, res.TotalOwned)
	}

	if err := comm.WaitAll(ctx, requests); err != nil {
		newTbl.Close()
		return err
	}
	if err := g.Barrier(ctx); err != nil {
		newTbl.Close()
		return err
	}

	// The old buffer returns to its allocator; the new one becomes the
	// owned shard. Never two live owners.
	d.owned.Close()
	d.owned = newTbl

	d.metrics.RecordMigration(sent, bytesSent, time.Since(start))
	log.LogMigration(ctx, sent, received, len(kept))
	return nil
}

// buildGlobalSummary all-gathers every rank's shard-root centroid into
// a fresh summary table, one point per process, indexed with leaf
// size 1.
func (d *DistributedTable) buildGlobalSummary(ctx context.Context, g comm.Group, metric Metric) error {
	center, err := d.owned.RootCenter()
	if err != nil {
		return err
	}

	parts, err := g.AllGather(ctx, encodeMatrix(center))
	if err != nil {
		return err
	}

	global, err := table.New(d.opts.allocator, d.dim, g.Size())
	if err != nil {
		return err
	}
	for r, part := range parts {
		row, err := decodeMatrix(part)
		if err != nil {
			global.Close()
			return err
		}
		if len(row) != d.dim {
			global.Close()
			return &GroupMismatchError{Field: "attribute count", Want: d.dim, Got: len(row)}
		}
		global.SetRow(r, row)
		global.SetID(r, model.PointID{Rank: int32(r), Index: 0})
	}
	if err := global.IndexData(metric, 1, 0); err != nil {
		global.Close()
		return err
	}

	if d.global != nil {
		d.global.Close()
	}
	d.global = global
	return nil
}

func encodeMatrix(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeMatrix(p []byte) ([]float32, error) {
	if len(p)%4 != 0 {
		return nil, fmt.Errorf("matrix payload has %d bytes", len(p))
	}
	v := make([]float32, len(p)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return v, nil
}

// encodeBounds packs candidate leaves as count, then per leaf the
// centroid and radius.
func encodeBounds(bounds []tree.Bound, dim int) []byte {
	buf := make([]byte, 4+len(bounds)*(dim+1)*4)
	binary.LittleEndian.PutUint32(buf, uint32(len(bounds)))
	off := 4
	for _, b := range bounds {
		for _, x := range b.Center {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(x))
			off += 4
		}
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(b.Radius))
		off += 4
	}
	return buf
}

func decodeBounds(p []byte, dim int) ([]tree.Bound, error) {
	if len(p) == 0 {
		return nil, nil
	}
	if len(p) < 4 {
		return nil, fmt.Errorf("bound payload has %d bytes", len(p))
	}
	count := int(binary.LittleEndian.Uint32(p))
	if len(p) != 4+count*(dim+1)*4 {
		return nil, fmt.Errorf("bound payload has %d bytes for %d leaves of dim %d", len(p), count, dim)
	}

	bounds := make([]tree.Bound, count)
	off := 4
	for i := range bounds {
		center := make([]float32, dim)
		for dd := range center {
			center[dd] = math.Float32frombits(binary.LittleEndian.Uint32(p[off:]))
			off += 4
		}
		bounds[i].Center = center
		bounds[i].Radius = math.Float32frombits(binary.LittleEndian.Uint32(p[off:]))
		off += 4
	}
	return bounds, nil
}
