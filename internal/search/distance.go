// Package search implements brute-force top-K nearest-neighbor search over
// the vector store: a streamed scan with a per-query bounded max-heap, fused
// and deduplicated across multiple queries in one call.
package search

// squaredL2 computes the squared Euclidean distance between two equal-length
// vectors, 8-way unrolled to keep the inner loop free of dependency chains
// (grounded on the dot-product kernel's unrolling shape, adapted from
// multiply-accumulate to subtract-square-accumulate).
func squaredL2(q, e []float32) float32 {
	n := len(q)
	var s0, s1, s2, s3, s4, s5, s6, s7 float32
	i := 0
	for ; i <= n-8; i += 8 {
		d0 := q[i] - e[i]
		d1 := q[i+1] - e[i+1]
		d2 := q[i+2] - e[i+2]
		d3 := q[i+3] - e[i+3]
		d4 := q[i+4] - e[i+4]
		d5 := q[i+5] - e[i+5]
		d6 := q[i+6] - e[i+6]
		d7 := q[i+7] - e[i+7]
		s0 += d0 * d0
		s1 += d1 * d1
		s2 += d2 * d2
		s3 += d3 * d3
		s4 += d4 * d4
		s5 += d5 * d5
		s6 += d6 * d6
		s7 += d7 * d7
	}
	for ; i < n; i++ {
		d := q[i] - e[i]
		s0 += d * d
	}
	return (s0 + s1 + s2 + s3) + (s4 + s5 + s6 + s7)
}

// scoreFromDistance converts a squared-L2 distance between two unit-norm
// vectors into a cosine-similarity-equivalent score in [-1, 1]:
// ||a-b||^2 = 2 - 2*cos(a,b) when ||a||=||b||=1, so cos = 1 - d/2.
func scoreFromDistance(d float32) float32 {
	return 1 - d/2
}
