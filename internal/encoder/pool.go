package encoder

import "math"

// meanPoolNormalize computes the masked mean-pool of one sample's hidden
// states (seqLen x hidden) over attention_mask (length seqLen, 1 = real
// token), then L2-normalizes the result (§4.2). Returns a unit vector of
// length hidden (within float epsilon).
func meanPoolNormalize(hidden []float32, seqLen, hiddenDim int, mask []int64) []float32 {
	pooled := make([]float64, hiddenDim)
	var maskSum float64
	for pos := 0; pos < seqLen; pos++ {
		if mask[pos] == 0 {
			continue
		}
		maskSum++
		row := hidden[pos*hiddenDim : pos*hiddenDim+hiddenDim]
		for d, v := range row {
			pooled[d] += float64(v)
		}
	}
	if maskSum < 1e-9 {
		maskSum = 1e-9
	}

	out := make([]float32, hiddenDim)
	var norm float64
	for d := range pooled {
		v := pooled[d] / maskSum
		out[d] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm < 1e-12 {
		norm = 1e-12
	}
	invNorm := float32(1.0 / norm)
	for d := range out {
		out[d] *= invNorm
	}
	return out
}
