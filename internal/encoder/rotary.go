package encoder

import "math"

// rotaryTable holds precomputed cos/sin angles for every (position, pair)
// combination up to maxLen, avoiding repeated trig calls per forward pass.
type rotaryTable struct {
	cos, sin [][]float32 // [position][pairIndex]
	pairs    int         // rotaryDims / 2
}

// newRotaryTable builds angle tables for rotaryDims dimensions (must be
// even) over positions [0, maxLen), using theta_i = base^(-2i/rotaryDims).
func newRotaryTable(maxLen, rotaryDims int, base float64) *rotaryTable {
	pairs := rotaryDims / 2
	cos := make([][]float32, maxLen)
	sin := make([][]float32, maxLen)
	invFreq := make([]float64, pairs)
	for i := 0; i < pairs; i++ {
		invFreq[i] = 1.0 / math.Pow(base, float64(2*i)/float64(rotaryDims))
	}
	for pos := 0; pos < maxLen; pos++ {
		cos[pos] = make([]float32, pairs)
		sin[pos] = make([]float32, pairs)
		for i := 0; i < pairs; i++ {
			angle := float64(pos) * invFreq[i]
			cos[pos][i] = float32(math.Cos(angle))
			sin[pos][i] = float32(math.Sin(angle))
		}
	}
	return &rotaryTable{cos: cos, sin: sin, pairs: pairs}
}

// applyRotary rotates the first rotaryDims components of each position's
// head_dim-sized vector in mat (seqLen x headDim, row-major, modified in
// place). interleaved=true rotates adjacent pairs (2i, 2i+1); otherwise it
// rotates the half-split layout (i, i+pairs) used by NeoX-style models.
func applyRotary(mat []float32, seqLen, headDim int, table *rotaryTable, interleaved bool) {
	for pos := 0; pos < seqLen; pos++ {
		row := mat[pos*headDim : pos*headDim+headDim]
		cosRow := table.cos[pos]
		sinRow := table.sin[pos]
		for i := 0; i < table.pairs; i++ {
			var i1, i2 int
			if interleaved {
				i1, i2 = 2*i, 2*i+1
			} else {
				i1, i2 = i, i+table.pairs
			}
			x1, x2 := row[i1], row[i2]
			c, s := cosRow[i], sinRow[i]
			row[i1] = x1*c - x2*s
			row[i2] = x2*c + x1*s
		}
	}
}
