package util

import "math/rand"

// RNG struct encapsulates the random number generator and seed.
type RNG struct {
	rand *rand.Rand
	seed int64
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)), // nolint gosec
		seed: seed,
	}
}

// Intn returns a uniform value in [0, n).
func (r *RNG) Intn(n int) int {
	return r.rand.Intn(n)
}

// Float32 returns a uniform value in [0, 1).
func (r *RNG) Float32() float32 {
	return r.rand.Float32()
}

// GenerateRandomVectors generates random vectors using the given RNG.
func (r *RNG) GenerateRandomVectors(num int, dimensions int) [][]float32 {
	vectors := make([][]float32, num)
	for i := range vectors {
		vectors[i] = make([]float32, dimensions)
		for j := range vectors[i] {
			vectors[i][j] = r.rand.Float32()
		}
	}

	return vectors
}

// GenerateRandomMatrix generates num*dimensions values in row-major
// order, the layout shard files use.
func (r *RNG) GenerateRandomMatrix(num int, dimensions int) []float32 {
	data := make([]float32, num*dimensions)
	for i := range data {
		data[i] = r.rand.Float32()
	}
	return data
}

// SampleIndices draws k distinct indices from [0, n) using a partial
// Fisher-Yates pass; only the first k slots of the permutation are
// materialized. k must not exceed n.
func (r *RNG) SampleIndices(n, k int) []int32 {
	idx := make([]int32, n)
	for i := range idx {
		idx[i] = int32(i)
	}
	for i := 0; i < k; i++ {
		j := i + r.rand.Intn(n-i)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx[:k]
}
