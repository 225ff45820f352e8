package distance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 6, 3}
	assert.InDelta(t, 25.0, SquaredL2(a, b), 1e-4)
	assert.InDelta(t, 0.0, SquaredL2(a, a), 1e-6)
}

func TestDot(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.InDelta(t, 32.0, Dot(a, b), 1e-5)
}

func TestNormalizeL2InPlace(t *testing.T) {
	v := []float32{3, 4}
	require.True(t, NormalizeL2InPlace(v))
	assert.InDelta(t, 0.6, v[0], 1e-5)
	assert.InDelta(t, 0.8, v[1], 1e-5)

	zero := []float32{0, 0}
	assert.False(t, NormalizeL2InPlace(zero))
	assert.False(t, NormalizeL2InPlace(nil))
}

func TestProvider(t *testing.T) {
	fn, err := Provider(MetricL2)
	require.NoError(t, err)
	assert.InDelta(t, 25.0, fn([]float32{0, 0}, []float32{3, 4}), 1e-4)

	fn, err = Provider(MetricDot)
	require.NoError(t, err)
	// Negated dot: larger dot products sort as closer.
	assert.Less(t, fn([]float32{1, 0}, []float32{1, 0}), fn([]float32{1, 0}, []float32{0, 1}))

	_, err = Provider(Metric(42))
	assert.Error(t, err)
}

func TestMetricString(t *testing.T) {
	assert.Equal(t, "L2", MetricL2.String())
	assert.Equal(t, "Cosine", MetricCosine.String())
	assert.Equal(t, "Dot", MetricDot.String())
	assert.Equal(t, "Unknown(42)", Metric(42).String())
}
