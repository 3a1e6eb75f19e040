package encoder

import (
	"fmt"

	"gorgonia.org/tensor"
)

// newDense builds a row-major 2D float32 tensor from a flat backing slice,
// bound to engine (the CPU StdEng, or an injected GPU-backed Engine).
func newDense(engine tensor.Engine, rows, cols int, data []float32) *tensor.Dense {
	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(data), tensor.WithEngine(engine))
}

// floats returns the flat float32 backing of t. Panics if t isn't float32 —
// every tensor in this package is constructed as float32, so this is an
// invariant violation, not a runtime input error.
func floats(t *tensor.Dense) []float32 {
	return t.Data().([]float32)
}

// matmul multiplies two 2D float32 tensors with gorgonia's tensor engine.
// This is the one operation in the encoder delegated to the tensor library
// rather than a hand-rolled loop: it's the only one where a real matmul
// kernel (blocking, possibly BLAS- or GPU-backed via the injected Device)
// meaningfully outperforms naive Go.
func matmul(a, b *tensor.Dense) (*tensor.Dense, error) {
	out, err := tensor.MatMul(a, b)
	if err != nil {
		return nil, fmt.Errorf("matmul %v x %v: %w", a.Shape(), b.Shape(), err)
	}
	dense, ok := out.(*tensor.Dense)
	if !ok {
		return nil, fmt.Errorf("matmul: unexpected result type %T", out)
	}
	return dense, nil
}

// addBiasRows adds bias (length cols) to every row of x (rows x cols), in place.
func addBiasRows(x []float32, rows, cols int, bias []float32) {
	for r := 0; r < rows; r++ {
		row := x[r*cols : r*cols+cols]
		for c := range row {
			row[c] += bias[c]
		}
	}
}

// addInPlace computes a += b elementwise; a and b must be the same length.
func addInPlace(a, b []float32) {
	for i := range a {
		a[i] += b[i]
	}
}

// mulInPlace computes a *= b elementwise; a and b must be the same length.
func mulInPlace(a, b []float32) {
	for i := range a {
		a[i] *= b[i]
	}
}
