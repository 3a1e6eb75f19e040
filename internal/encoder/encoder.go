// Package encoder implements the 12-layer BERT-variant transformer described
// in the spec: rotary positional encoding, SwiGLU feed-forward, post-norm
// residuals, masked mean-pool + L2 normalize. It is a pure function of its
// parameters and its inputs — it holds no per-call state, and nothing
// touches the tensor engine until Graph.Eval is called.
package encoder

import "fmt"

// layerParams holds one transformer block's parameters, keyed exactly as
// the weight archive names them (§4.3). Linear weights are stored in the
// matmul's (in, out) layout; LoadParam transposes them from the checkpoint's
// (out, in) layout on the way in (see internal/encoder/params.go).
type layerParams struct {
	WqkvWeight    []float32 // [hidden, 3*hidden]
	WqkvBias      []float32 // optional [3*hidden]
	OutProjWeight []float32 // [hidden, hidden]
	Norm1Weight   []float32 // [hidden]
	Norm1Bias     []float32 // [hidden]
	Fc11Weight    []float32 // [hidden, inner]
	Fc11Bias      []float32 // optional [inner]
	Fc12Weight    []float32 // [hidden, inner]
	Fc12Bias      []float32 // optional [inner]
	Fc2Weight     []float32 // [inner, hidden]
	Fc2Bias       []float32 // optional [hidden]
	Norm2Weight   []float32 // [hidden]
	Norm2Bias     []float32 // [hidden]
}

// Encoder is the loaded, ready-to-run transformer. Construct with New, load
// weights into it via LoadParam (see internal/weights), then call Forward.
type Encoder struct {
	cfg            Config
	device         *Device
	wordEmbeddings []float32 // [vocab, hidden]
	embLNWeight    []float32 // [hidden]
	embLNBias      []float32 // [hidden]
	layers         []layerParams
	rotaryDims     int
	rotary         *rotaryTable
}

// New allocates an Encoder for cfg with zeroed parameters; weights must be
// loaded afterward (see internal/weights.Load).
func New(cfg Config, device *Device) *Encoder {
	if device == nil {
		device = CPU()
	}
	rotaryDims := int(cfg.RotaryEmbFraction * float64(cfg.HeadDim()))
	rotaryDims -= rotaryDims % 2 // rotary pairs must be whole
	return &Encoder{
		cfg:        cfg,
		device:     device,
		layers:     make([]layerParams, cfg.NLayer),
		rotaryDims: rotaryDims,
		rotary:     newRotaryTable(MaxSeqLen, rotaryDims, cfg.RotaryEmbBase),
	}
}

// MaxSeqLen mirrors tokenize.MaxLen; duplicated as a plain constant here so
// this package has no dependency on internal/tokenize (the encoder only
// needs to know the table needs to cover this many rotary positions).
const MaxSeqLen = 128

// HiddenBatch is the result of a deferred Forward call: Rows is populated
// only after the owning Graph's Eval has run.
type HiddenBatch struct {
	Rows [][]float32 // one (seqLen x hidden) flattened row-major hidden state per sample
	Mask [][]int64   // attention mask threaded through for pooling
}

// Forward enqueues one embedding-lookup + N-block forward pass per sample
// onto g. It returns immediately; Rows are empty until g.Eval() succeeds.
func (e *Encoder) Forward(g *Graph, ids, mask [][]int64) (*HiddenBatch, error) {
	b := len(ids)
	hb := &HiddenBatch{Rows: make([][]float32, b), Mask: mask}
	hidden := e.cfg.NEmbd

	for i := 0; i < b; i++ {
		i := i
		g.defer_(func() error {
			row, err := e.forwardOne(ids[i], mask[i], hidden)
			if err != nil {
				return fmt.Errorf("forward sample %d: %w", i, err)
			}
			hb.Rows[i] = row
			return nil
		})
	}
	return hb, nil
}

func (e *Encoder) forwardOne(ids, mask []int64, hidden int) ([]float32, error) {
	seqLen := len(ids)
	engine := e.device.Engine()

	x := make([]float32, seqLen*hidden)
	for pos, id := range ids {
		if int(id) < 0 || int(id)*hidden+hidden > len(e.wordEmbeddings) {
			return nil, fmt.Errorf("token id %d out of vocab range", id)
		}
		copy(x[pos*hidden:pos*hidden+hidden], e.wordEmbeddings[int(id)*hidden:int(id)*hidden+hidden])
	}
	layerNorm(x, seqLen, hidden, e.embLNWeight, e.embLNBias, e.cfg.LayerNormEpsilon)

	additiveMask := make([]float32, seqLen)
	for i, m := range mask {
		if m == 0 {
			additiveMask[i] = -1e4
		}
	}

	heads := e.cfg.NHead
	headDim := e.cfg.HeadDim()

	for li := range e.layers {
		l := &e.layers[li]

		attnOut, err := l.selfAttention(engine, x, seqLen, hidden, heads, headDim, e.rotaryDims, e.cfg.RotaryEmbInterleaved, e.rotary, additiveMask)
		if err != nil {
			return nil, fmt.Errorf("layer %d attention: %w", li, err)
		}
		addInPlace(attnOut, x)
		layerNorm(attnOut, seqLen, hidden, l.Norm1Weight, l.Norm1Bias, e.cfg.LayerNormEpsilon)
		x = attnOut

		mlpOut, err := l.gatedMLP(engine, x, seqLen, hidden, e.cfg.NInner)
		if err != nil {
			return nil, fmt.Errorf("layer %d mlp: %w", li, err)
		}
		addInPlace(mlpOut, x)
		layerNorm(mlpOut, seqLen, hidden, l.Norm2Weight, l.Norm2Bias, e.cfg.LayerNormEpsilon)
		x = mlpOut
	}

	return x, nil
}

// PoolNormalize runs masked mean-pool + L2 normalize over every row of hb,
// after the owning Graph has been evaluated. Output order matches input
// order; each row is a unit vector of length D (§4.2).
func (hb *HiddenBatch) PoolNormalize(hidden int) [][]float32 {
	out := make([][]float32, len(hb.Rows))
	for i, row := range hb.Rows {
		out[i] = meanPoolNormalize(row, len(hb.Mask[i]), hidden, hb.Mask[i])
	}
	return out
}

// Dim returns the encoder's hidden dimension (D in the spec).
func (e *Encoder) Dim() int { return e.cfg.NEmbd }
