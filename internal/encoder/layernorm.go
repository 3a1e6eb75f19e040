package encoder

import "math"

// layerNorm normalizes each row of x (rows x cols, modified in place) to
// zero mean / unit variance, then applies the learned affine (weight, bias).
func layerNorm(x []float32, rows, cols int, weight, bias []float32, eps float64) {
	for r := 0; r < rows; r++ {
		row := x[r*cols : r*cols+cols]

		var mean float64
		for _, v := range row {
			mean += float64(v)
		}
		mean /= float64(cols)

		var variance float64
		for _, v := range row {
			d := float64(v) - mean
			variance += d * d
		}
		variance /= float64(cols)

		invStd := 1.0 / math.Sqrt(variance+eps)
		for c := range row {
			normalized := (float64(row[c]) - mean) * invStd
			row[c] = float32(normalized)*weight[c] + bias[c]
		}
	}
}
