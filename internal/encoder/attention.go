package encoder

import (
	"math"

	"gorgonia.org/tensor"
)

// extractCols copies the [start, start+width) column range out of a
// row-major (rows x cols) matrix into a contiguous (rows x width) buffer.
// Needed because per-head slices of Q/K/V are column ranges, which aren't
// contiguous in row-major storage.
func extractCols(src []float32, rows, cols, start, width int) []float32 {
	out := make([]float32, rows*width)
	for r := 0; r < rows; r++ {
		copy(out[r*width:r*width+width], src[r*cols+start:r*cols+start+width])
	}
	return out
}

// writeCols writes a contiguous (rows x width) buffer back into the
// [start, start+width) column range of a row-major (rows x cols) matrix.
func writeCols(dst []float32, rows, cols, start, width int, src []float32) {
	for r := 0; r < rows; r++ {
		copy(dst[r*cols+start:r*cols+start+width], src[r*width:r*width+width])
	}
}

// transpose returns the transpose of an (rows x cols) row-major matrix.
func transpose(src []float32, rows, cols int) []float32 {
	out := make([]float32, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[c*rows+r] = src[r*cols+c]
		}
	}
	return out
}

// softmaxRows applies softmax along the last axis of an (rows x cols)
// matrix, in place.
func softmaxRows(x []float32, rows, cols int) {
	for r := 0; r < rows; r++ {
		row := x[r*cols : r*cols+cols]
		maxV := row[0]
		for _, v := range row[1:] {
			if v > maxV {
				maxV = v
			}
		}
		var sum float64
		for i, v := range row {
			e := math.Exp(float64(v - maxV))
			row[i] = float32(e)
			sum += e
		}
		if sum == 0 {
			sum = 1e-9
		}
		invSum := float32(1.0 / sum)
		for i := range row {
			row[i] *= invSum
		}
	}
}

// selfAttention runs fused-QKV, rotary, scaled-dot-product multi-head
// attention for one sample. x is (seqLen x hidden), additiveMask is length
// seqLen (one bias per key position, broadcast over all query rows, §4.2).
// Returns the (seqLen x hidden) attention output before the output
// projection's residual add.
func (l *layerParams) selfAttention(engine tensor.Engine, x []float32, seqLen, hidden, heads, headDim int, rotaryDims int, interleaved bool, table *rotaryTable, additiveMask []float32) ([]float32, error) {
	xm := newDense(engine, seqLen, hidden, x)
	wqkv := newDense(engine, hidden, 3*hidden, l.WqkvWeight)
	qkvT, err := matmul(xm, wqkv)
	if err != nil {
		return nil, err
	}
	qkv := floats(qkvT)
	if l.WqkvBias != nil {
		addBiasRows(qkv, seqLen, 3*hidden, l.WqkvBias)
	}

	q := extractCols(qkv, seqLen, 3*hidden, 0, hidden)
	k := extractCols(qkv, seqLen, 3*hidden, hidden, hidden)
	v := extractCols(qkv, seqLen, 3*hidden, 2*hidden, hidden)

	out := make([]float32, seqLen*hidden)
	scale := float32(1.0 / math.Sqrt(float64(headDim)))

	for h := 0; h < heads; h++ {
		qh := extractCols(q, seqLen, hidden, h*headDim, headDim)
		kh := extractCols(k, seqLen, hidden, h*headDim, headDim)
		vh := extractCols(v, seqLen, hidden, h*headDim, headDim)

		if rotaryDims > 0 {
			applyRotary(qh, seqLen, headDim, table, interleaved)
			applyRotary(kh, seqLen, headDim, table, interleaved)
		}

		qhM := newDense(engine, seqLen, headDim, qh)
		khT := newDense(engine, headDim, seqLen, transpose(kh, seqLen, headDim))
		scoresT, err := matmul(qhM, khT)
		if err != nil {
			return nil, err
		}
		scores := floats(scoresT)
		for i := range scores {
			scores[i] *= scale
		}
		if additiveMask != nil {
			for r := 0; r < seqLen; r++ {
				row := scores[r*seqLen : r*seqLen+seqLen]
				addInPlace(row, additiveMask)
			}
		}
		softmaxRows(scores, seqLen, seqLen)

		scoresM := newDense(engine, seqLen, seqLen, scores)
		vhM := newDense(engine, seqLen, headDim, vh)
		ohT, err := matmul(scoresM, vhM)
		if err != nil {
			return nil, err
		}
		writeCols(out, seqLen, hidden, h*headDim, headDim, floats(ohT))
	}

	outM := newDense(engine, seqLen, hidden, out)
	projW := newDense(engine, hidden, hidden, l.OutProjWeight)
	projT, err := matmul(outM, projW)
	if err != nil {
		return nil, err
	}
	return floats(projT), nil
}
