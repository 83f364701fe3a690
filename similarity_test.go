package main

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const simEpsilon = 1e-5

func TestDotProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.InDelta(t, 32.0, dotProduct(a, b), simEpsilon)
}

func TestDotProductTail(t *testing.T) {
	// Lengths around the 4-lane tile boundary exercise the tail path.
	for _, n := range []int{1, 2, 3, 4, 5, 7, 8, 9, 16, 17} {
		a := make([]float32, n)
		b := make([]float32, n)
		var want float32
		for i := 0; i < n; i++ {
			a[i] = float32(i + 1)
			b[i] = float32(2 * (i + 1))
			want += a[i] * b[i]
		}
		assert.InDelta(t, float64(want), float64(dotProduct(a, b)), simEpsilon, "len %d", n)
	}
}

func TestCosineSimilarityBounds(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	neg := []float32{-1, -2, -3, -4}

	assert.InDelta(t, 1.0, float64(cosineSimilarity(a, a)), simEpsilon)
	assert.InDelta(t, -1.0, float64(cosineSimilarity(a, neg)), simEpsilon)

	got := cosineSimilarity([]float32{0.3, -0.9, 2.1}, []float32{1.4, 0.2, -0.7})
	assert.GreaterOrEqual(t, float64(got), -1.0-simEpsilon)
	assert.LessOrEqual(t, float64(got), 1.0+simEpsilon)
}

func TestCosineSimilarityOrthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.InDelta(t, 0.0, float64(cosineSimilarity(a, b)), simEpsilon)
}

func TestCosineSimilarityZeroMagnitude(t *testing.T) {
	zero := []float32{0, 0, 0}
	assert.Equal(t, float32(0), cosineSimilarity(zero, []float32{1, 2, 3}))
	assert.Equal(t, float32(0), cosineSimilarity([]float32{1, 2, 3}, zero))
	assert.Equal(t, float32(0), cosineSimilarity(zero, zero))
}

func TestEuclideanDistance(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	assert.InDelta(t, 5.0, float64(euclideanDistance(a, b)), simEpsilon)
	assert.Equal(t, float32(0), euclideanDistance(b, b))
}

func TestMagnitude(t *testing.T) {
	assert.InDelta(t, math.Sqrt(14), float64(magnitude([]float32{1, 2, 3})), simEpsilon)
	assert.Equal(t, float32(0), magnitude([]float32{0, 0}))
}
