package main

import "math"

// Similarity kernels over equal-length f32 vectors. Callers guarantee
// matching lengths; the embedding index enforces its dimension before any
// kernel runs.

// dotProduct computes the componentwise product sum. The body is tiled
// four lanes wide so the compiler can keep it straight-line; the tail is
// handled separately.
func dotProduct(a, b []float32) float32 {
	n := len(a)
	var sum float32

	tiled := n - n%4
	for i := 0; i < tiled; i += 4 {
		sum += a[i]*b[i] +
			a[i+1]*b[i+1] +
			a[i+2]*b[i+2] +
			a[i+3]*b[i+3]
	}
	for i := tiled; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// magnitude returns the Euclidean norm of v.
func magnitude(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return float32(math.Sqrt(float64(sum)))
}

// cosineSimilarity returns dot(a,b) / (|a|·|b|) in [-1, 1], or 0 when
// either magnitude is zero.
func cosineSimilarity(a, b []float32) float32 {
	dot := dotProduct(a, b)
	denom := magnitude(a) * magnitude(b)
	if denom == 0 {
		return 0
	}
	return dot / denom
}

// euclideanDistance returns the L2 distance between a and b.
func euclideanDistance(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}
