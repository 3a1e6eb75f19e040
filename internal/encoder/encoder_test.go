package encoder

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func tinyConfig() Config {
	return Config{
		VocabSize:            32,
		NEmbd:                8,
		NHead:                2,
		NLayer:               2,
		NInner:               16,
		LayerNormEpsilon:     1e-12,
		RotaryEmbBase:        10000,
		RotaryEmbFraction:    1.0,
		RotaryEmbInterleaved: false,
		QKVProjBias:          true,
		MLPFc1Bias:           true,
		MLPFc2Bias:           true,
	}
}

// fillWeights populates every parameter slot with a small deterministic pattern so
// forward passes are reproducible without a real checkpoint.
func fillWeights(t *testing.T, e *Encoder) {
	t.Helper()
	hidden := e.cfg.NEmbd
	inner := e.cfg.NInner
	vocab := e.cfg.VocabSize

	pattern := func(n int, scale float32) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = scale * float32(math.Sin(float64(i)+1))
		}
		return out
	}

	require.NoError(t, e.LoadParam("embeddings.word_embeddings.weight", pattern(vocab*hidden, 0.01), []int{vocab, hidden}))
	require.NoError(t, e.LoadParam("emb_ln.weight", ones(hidden), []int{hidden}))
	require.NoError(t, e.LoadParam("emb_ln.bias", make([]float32, hidden), []int{hidden}))

	for i := 0; i < e.cfg.NLayer; i++ {
		p := layerPrefix(i)
		require.NoError(t, e.LoadParam(p+"attn.Wqkv.weight", pattern(hidden*3*hidden, 0.01), []int{3 * hidden, hidden}))
		require.NoError(t, e.LoadParam(p+"attn.Wqkv.bias", make([]float32, 3*hidden), []int{3 * hidden}))
		require.NoError(t, e.LoadParam(p+"attn.out_proj.weight", pattern(hidden*hidden, 0.01), []int{hidden, hidden}))
		require.NoError(t, e.LoadParam(p+"mlp.fc11.weight", pattern(hidden*inner, 0.01), []int{inner, hidden}))
		require.NoError(t, e.LoadParam(p+"mlp.fc11.bias", make([]float32, inner), []int{inner}))
		require.NoError(t, e.LoadParam(p+"mlp.fc12.weight", pattern(hidden*inner, 0.01), []int{inner, hidden}))
		require.NoError(t, e.LoadParam(p+"mlp.fc12.bias", make([]float32, inner), []int{inner}))
		require.NoError(t, e.LoadParam(p+"mlp.fc2.weight", pattern(inner*hidden, 0.01), []int{hidden, inner}))
		require.NoError(t, e.LoadParam(p+"mlp.fc2.bias", make([]float32, hidden), []int{hidden}))
		require.NoError(t, e.LoadParam(p+"norm1.weight", ones(hidden), []int{hidden}))
		require.NoError(t, e.LoadParam(p+"norm1.bias", make([]float32, hidden), []int{hidden}))
		require.NoError(t, e.LoadParam(p+"norm2.weight", ones(hidden), []int{hidden}))
		require.NoError(t, e.LoadParam(p+"norm2.bias", make([]float32, hidden), []int{hidden}))
	}
	require.Empty(t, e.Missing())
}

func ones(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func layerPrefix(i int) string {
	return "encoder.layers." + itoa(i) + "."
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	digits := ""
	for i > 0 {
		digits = string(rune('0'+i%10)) + digits
		i /= 10
	}
	return digits
}

// TestLoadParamAcceptsNomicBertCheckpointShapes exercises LoadParam with the
// literal tensor shapes a real nomic-bert-style safetensors checkpoint
// publishes for its Linear layers: (out_features, in_features), e.g.
// Wqkv.weight is (3*hidden, hidden) and fc11/fc12.weight is (inner, hidden).
// The old (in, out) shape must now be rejected so a regression back to it is
// caught immediately rather than silently loading a transposed matrix.
func TestLoadParamAcceptsNomicBertCheckpointShapes(t *testing.T) {
	cfg := Config{
		VocabSize: 30528, NEmbd: 768, NHead: 12, NLayer: 1, NInner: 3072,
		LayerNormEpsilon: 1e-12, RotaryEmbBase: 1000, RotaryEmbFraction: 1.0,
	}
	e := New(cfg, CPU())

	require.NoError(t, e.LoadParam("encoder.layers.0.attn.Wqkv.weight", make([]float32, 3*768*768), []int{3 * 768, 768}))
	require.NoError(t, e.LoadParam("encoder.layers.0.attn.out_proj.weight", make([]float32, 768*768), []int{768, 768}))
	require.NoError(t, e.LoadParam("encoder.layers.0.mlp.fc11.weight", make([]float32, 3072*768), []int{3072, 768}))
	require.NoError(t, e.LoadParam("encoder.layers.0.mlp.fc12.weight", make([]float32, 3072*768), []int{3072, 768}))
	require.NoError(t, e.LoadParam("encoder.layers.0.mlp.fc2.weight", make([]float32, 768*3072), []int{768, 3072}))

	err := e.LoadParam("encoder.layers.0.mlp.fc11.weight", make([]float32, 768*3072), []int{768, 3072})
	require.Error(t, err)
}

// TestLoadParamTransposesToMatmulLayout verifies LoadParam's transpose lands
// the checkpoint's (out, in) data in the (in, out) layout attention.go/
// mlp.go's matmuls expect, using a rectangular (hidden != inner) layer so a
// transpose bug can't hide behind a square matrix.
func TestLoadParamTransposesToMatmulLayout(t *testing.T) {
	e := New(tinyConfig(), CPU())
	hidden, inner := e.cfg.NEmbd, e.cfg.NInner

	raw := make([]float32, hidden*inner)
	for i := range raw {
		raw[i] = float32(i)
	}
	require.NoError(t, e.LoadParam("encoder.layers.0.mlp.fc2.weight", raw, []int{hidden, inner}))

	want := transpose(raw, hidden, inner)
	require.Equal(t, want, e.layers[0].Fc2Weight)
}

func TestForwardDeterministic(t *testing.T) {
	e := New(tinyConfig(), CPU())
	fillWeights(t, e)

	ids := [][]int64{{1, 4, 7, 0}}
	mask := [][]int64{{1, 1, 1, 0}}

	g1 := newGraph()
	hb1, err := e.Forward(g1, ids, mask)
	require.NoError(t, err)
	require.NoError(t, g1.Eval())
	out1 := hb1.PoolNormalize(e.Dim())

	g2 := newGraph()
	hb2, err := e.Forward(g2, ids, mask)
	require.NoError(t, err)
	require.NoError(t, g2.Eval())
	out2 := hb2.PoolNormalize(e.Dim())

	require.Equal(t, out1, out2)
}

func TestForwardUnitNorm(t *testing.T) {
	e := New(tinyConfig(), CPU())
	fillWeights(t, e)

	ids := [][]int64{{1, 4, 7, 0}}
	mask := [][]int64{{1, 1, 1, 0}}

	g := newGraph()
	hb, err := e.Forward(g, ids, mask)
	require.NoError(t, err)
	require.NoError(t, g.Eval())
	out := hb.PoolNormalize(e.Dim())

	var norm float64
	for _, v := range out[0] {
		norm += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
}

// TestForwardPaddingInvariance asserts that appending masked-out pad tokens
// does not change the pooled embedding (property: padding invariance).
func TestForwardPaddingInvariance(t *testing.T) {
	e := New(tinyConfig(), CPU())
	fillWeights(t, e)

	short := [][]int64{{1, 4, 7}}
	shortMask := [][]int64{{1, 1, 1}}
	padded := [][]int64{{1, 4, 7, 0, 0}}
	paddedMask := [][]int64{{1, 1, 1, 0, 0}}

	g1 := newGraph()
	hb1, err := e.Forward(g1, short, shortMask)
	require.NoError(t, err)
	require.NoError(t, g1.Eval())
	out1 := hb1.PoolNormalize(e.Dim())

	g2 := newGraph()
	hb2, err := e.Forward(g2, padded, paddedMask)
	require.NoError(t, err)
	require.NoError(t, g2.Eval())
	out2 := hb2.PoolNormalize(e.Dim())

	for i := range out1[0] {
		require.InDelta(t, out1[0][i], out2[0][i], 1e-4)
	}
}
