package encoder

import (
	"math"

	"gorgonia.org/tensor"
)

// silu computes x * sigmoid(x) elementwise, in place.
func silu(x []float32) {
	for i, v := range x {
		x[i] = v * float32(1.0/(1.0+math.Exp(-float64(v))))
	}
}

// gatedMLP computes fc2(silu(fc12(x)) * fc11(x)) for one sample (§4.2, §GLOSSARY).
// x is (seqLen x hidden); fc11/fc12 project hidden -> inner, fc2 projects
// inner -> hidden.
func (l *layerParams) gatedMLP(engine tensor.Engine, x []float32, seqLen, hidden, inner int) ([]float32, error) {
	xm := newDense(engine, seqLen, hidden, x)

	fc11W := newDense(engine, hidden, inner, l.Fc11Weight)
	aT, err := matmul(xm, fc11W)
	if err != nil {
		return nil, err
	}
	a := floats(aT)
	if l.Fc11Bias != nil {
		addBiasRows(a, seqLen, inner, l.Fc11Bias)
	}

	fc12W := newDense(engine, hidden, inner, l.Fc12Weight)
	bT, err := matmul(xm, fc12W)
	if err != nil {
		return nil, err
	}
	b := floats(bT)
	if l.Fc12Bias != nil {
		addBiasRows(b, seqLen, inner, l.Fc12Bias)
	}

	silu(b)
	mulInPlace(b, a) // b now holds silu(fc12(x)) * fc11(x)

	gatedM := newDense(engine, seqLen, inner, b)
	fc2W := newDense(engine, inner, hidden, l.Fc2Weight)
	outT, err := matmul(gatedM, fc2W)
	if err != nil {
		return nil, err
	}
	out := floats(outT)
	if l.Fc2Bias != nil {
		addBiasRows(out, seqLen, hidden, l.Fc2Bias)
	}
	return out, nil
}
