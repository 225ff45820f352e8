package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRandomVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.GenerateRandomVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.LessOrEqual(t, v[0][0], float32(1.0))
	assert.GreaterOrEqual(t, v[1][0], float32(0.0))
}

func TestSampleIndices(t *testing.T) {
	rng := NewRNG(42)

	s := rng.SampleIndices(100, 10)
	assert.Equal(t, 10, len(s))

	seen := make(map[int32]bool)
	for _, i := range s {
		assert.GreaterOrEqual(t, i, int32(0))
		assert.Less(t, i, int32(100))
		assert.False(t, seen[i], "index %d drawn twice", i)
		seen[i] = true
	}

	// Full draw is a permutation.
	full := rng.SampleIndices(5, 5)
	assert.ElementsMatch(t, []int32{0, 1, 2, 3, 4}, full)
}

func TestSampleIndicesDeterministicPerSeed(t *testing.T) {
	a := NewRNG(7).SampleIndices(50, 8)
	b := NewRNG(7).SampleIndices(50, 8)
	assert.Equal(t, a, b)
}
