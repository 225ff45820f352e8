// Package kmeans refines the leaf assignment produced by the auction.
// Each rank owns one centroid, seeded with the leaf it won, and every
// local point converges onto the centroid of a rank within a bounded
// neighborhood. Centroid updates are global: all ranks contribute their
// partial sums through an all-gather each iteration.
package kmeans

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/disttree/comm"
	"github.com/hupe1980/disttree/distance"
	"github.com/hupe1980/disttree/table"
)

// DefaultIterations is the fixed refinement length of the protocol.
const DefaultIterations = 10

// Result describes the converged assignment from one rank's view.
type Result struct {
	// TotalOwned is the number of points group-wide that converged onto
	// this rank's centroid.
	TotalOwned int

	// Assignments maps each local row to the destination rank its point
	// converged onto. Empty for an empty shard.
	Assignments []int32

	// Centroid is this rank's centroid after the final update.
	Centroid []float32
}

// Compute runs the bounded-neighborhood refinement. seed is this rank's
// starting centroid, radius bounds how far (in ranks) a point may move,
// and iterations fixes the round count; every rank must pass the same
// radius and iterations.
func Compute(ctx context.Context, g comm.Group, metric distance.Metric, tbl *table.Table, radius, iterations int, seed []float32) (*Result, error) {
	dim := tbl.AttributeCount()
	if len(seed) != dim {
		return nil, fmt.Errorf("kmeans: seed has %d attributes, table has %d", len(seed), dim)
	}
	if radius < 0 {
		return nil, fmt.Errorf("kmeans: negative radius %d", radius)
	}
	if iterations < 1 {
		return nil, fmt.Errorf("kmeans: invalid iteration count %d", iterations)
	}

	dist, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	me, size := g.Rank(), g.Size()
	lo := me - min(me, radius)
	hi := me + min(size-1-me, radius)

	centroid := make([]float32, dim)
	copy(centroid, seed)

	n := tbl.EntryCount()
	assignments := make([]int32, n)
	totalOwned := 0

	for it := 0; it < iterations; it++ {
		parts, err := g.AllGather(ctx, encodeVector(centroid))
		if err != nil {
			return nil, err
		}
		centroids := make([][]float32, size)
		for r, p := range parts {
			c, err := decodeVector(p, dim)
			if err != nil {
				return nil, err
			}
			centroids[r] = c
		}

		counts := make([]int64, size)
		sums := make([]float32, size*dim)
		for i := 0; i < n; i++ {
			row := tbl.Row(i)
			best, bestRank := float32(math.Inf(1)), lo
			for r := lo; r <= hi; r++ {
				if d := dist(row, centroids[r]); d < best {
					best = d
					bestRank = r
				}
			}
			assignments[i] = int32(bestRank)
			counts[bestRank]++
			base := bestRank * dim
			for d, v := range row {
				sums[base+d] += v
			}
		}

		statParts, err := g.AllGather(ctx, encodeStats(counts, sums, dim))
		if err != nil {
			return nil, err
		}

		var owned int64
		accum := make([]float64, dim)
		for _, p := range statParts {
			cnt, sum, err := decodeStats(p, size, dim, me)
			if err != nil {
				return nil, err
			}
			owned += cnt
			for d := range accum {
				accum[d] += float64(sum[d])
			}
		}

		totalOwned = int(owned)
		if owned > 0 {
			for d := range centroid {
				centroid[d] = float32(accum[d] / float64(owned))
			}
		}
	}

	return &Result{TotalOwned: totalOwned, Assignments: assignments, Centroid: centroid}, nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(p []byte, dim int) ([]float32, error) {
	if len(p) != dim*4 {
		return nil, fmt.Errorf("kmeans: vector payload has %d bytes, expected %d", len(p), dim*4)
	}
	v := make([]float32, dim)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return v, nil
}

// encodeStats packs one (count, partial sum) pair per destination rank.
func encodeStats(counts []int64, sums []float32, dim int) []byte {
	buf := make([]byte, len(counts)*(8+dim*4))
	off := 0
	for r, c := range counts {
		binary.LittleEndian.PutUint64(buf[off:], uint64(c))
		off += 8
		for d := 0; d < dim; d++ {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(sums[r*dim+d]))
			off += 4
		}
	}
	return buf
}

// decodeStats extracts the (count, partial sum) pair addressed to rank
// dest from one sender's stats payload.
func decodeStats(p []byte, size, dim, dest int) (int64, []float32, error) {
	record := 8 + dim*4
	if len(p) != size*record {
		return 0, nil, fmt.Errorf("kmeans: stats payload has %d bytes, expected %d", len(p), size*record)
	}
	off := dest * record
	cnt := int64(binary.LittleEndian.Uint64(p[off:]))
	off += 8
	sum := make([]float32, dim)
	for d := range sum {
		sum[d] = math.Float32frombits(binary.LittleEndian.Uint32(p[off:]))
		off += 4
	}
	return cnt, sum, nil
}
