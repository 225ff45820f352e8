package tree

import (
	"math"

	"github.com/hupe1980/disttree/distance"
)

// Bound describes a spatial region: the centroid of the points it was
// computed from and the maximal distance from the centroid to any of
// them. Synthetic candidate regions carry a centroid only (zero
// radius).
type Bound struct {
	Center []float32
	Radius float32
}

// NewBound creates a bound with the given centroid and no radius.
func NewBound(center []float32) Bound {
	return Bound{Center: center}
}

// MidDistanceSq returns the distance from point to the bound's center
// under the given distance function. For the L2 provider this is the
// squared mid-distance used by affinity voting.
func (b *Bound) MidDistanceSq(dist distance.Func, point []float32) float32 {
	return dist(b.Center, point)
}

// computeBound fills b with the centroid and covering radius of the
// rows data[idx[i]] for i in [begin, end).
func computeBound(data []float32, dim int, idx []int32, begin, end int, b *Bound) {
	if b.Center == nil {
		b.Center = make([]float32, dim)
	}
	for d := 0; d < dim; d++ {
		b.Center[d] = 0
	}
	b.Radius = 0

	n := end - begin
	if n <= 0 {
		return
	}

	for i := begin; i < end; i++ {
		row := data[int(idx[i])*dim : (int(idx[i])+1)*dim]
		for d := 0; d < dim; d++ {
			b.Center[d] += row[d]
		}
	}
	inv := 1.0 / float32(n)
	for d := 0; d < dim; d++ {
		b.Center[d] *= inv
	}

	var maxSq float32
	for i := begin; i < end; i++ {
		row := data[int(idx[i])*dim : (int(idx[i])+1)*dim]
		if d := distance.SquaredL2(b.Center, row); d > maxSq {
			maxSq = d
		}
	}
	b.Radius = float32(math.Sqrt(float64(maxSq)))
}
