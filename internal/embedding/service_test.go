package embedding

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/screenager/siftd/internal/encoder"
	"github.com/screenager/siftd/internal/tokenize"
)

func tinyVocab(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "vocab.txt")
	lines := []string{
		"[UNK]", "[CLS]", "[SEP]", "[PAD]",
		"rate", "limit", "##ing", "function", "go", "code", "search",
	}
	require.NoError(t, os.WriteFile(path, []byte(joinLines(lines)), 0o644))
	return path
}

func joinLines(lines []string) string {
	out := ""
	for _, l := range lines {
		out += l + "\n"
	}
	return out
}

func tinyService(t *testing.T) (*Service, func()) {
	t.Helper()
	dir := t.TempDir()
	vocabPath := tinyVocab(t, dir)

	tok, err := tokenize.New(vocabPath)
	require.NoError(t, err)

	cfg := encoder.Config{
		VocabSize:            16,
		NEmbd:                8,
		NHead:                2,
		NLayer:               1,
		NInner:               16,
		LayerNormEpsilon:     1e-12,
		RotaryEmbBase:        10000,
		RotaryEmbFraction:    1.0,
		RotaryEmbInterleaved: false,
	}
	enc := encoder.New(cfg, encoder.CPU())
	fillTinyEncoder(t, enc, cfg)

	svc := New(tok, enc)
	return svc, tok.Close
}

// fillTinyEncoder populates every required parameter with a small
// deterministic pattern, mirroring internal/encoder's own test fixture.
func fillTinyEncoder(t *testing.T, enc *encoder.Encoder, cfg encoder.Config) {
	t.Helper()
	hidden := cfg.NEmbd
	inner := cfg.NInner
	vocab := cfg.VocabSize

	pattern := func(n int, scale float32) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = scale * float32(math.Sin(float64(i)+1))
		}
		return out
	}
	ones := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = 1
		}
		return out
	}

	require.NoError(t, enc.LoadParam("embeddings.word_embeddings.weight", pattern(vocab*hidden, 0.01), []int{vocab, hidden}))
	require.NoError(t, enc.LoadParam("emb_ln.weight", ones(hidden), []int{hidden}))
	require.NoError(t, enc.LoadParam("emb_ln.bias", make([]float32, hidden), []int{hidden}))

	p := "encoder.layers.0."
	require.NoError(t, enc.LoadParam(p+"attn.Wqkv.weight", pattern(hidden*3*hidden, 0.01), []int{3 * hidden, hidden}))
	require.NoError(t, enc.LoadParam(p+"attn.out_proj.weight", pattern(hidden*hidden, 0.01), []int{hidden, hidden}))
	require.NoError(t, enc.LoadParam(p+"mlp.fc11.weight", pattern(hidden*inner, 0.01), []int{inner, hidden}))
	require.NoError(t, enc.LoadParam(p+"mlp.fc12.weight", pattern(hidden*inner, 0.01), []int{inner, hidden}))
	require.NoError(t, enc.LoadParam(p+"mlp.fc2.weight", pattern(inner*hidden, 0.01), []int{hidden, inner}))
	require.NoError(t, enc.LoadParam(p+"norm1.weight", ones(hidden), []int{hidden}))
	require.NoError(t, enc.LoadParam(p+"norm1.bias", make([]float32, hidden), []int{hidden}))
	require.NoError(t, enc.LoadParam(p+"norm2.weight", ones(hidden), []int{hidden}))
	require.NoError(t, enc.LoadParam(p+"norm2.bias", make([]float32, hidden), []int{hidden}))
	require.Empty(t, enc.Missing())
}

func TestEmbedUnitNorm(t *testing.T) {
	svc, closeFn := tinyService(t)
	defer closeFn()

	vecs, err := svc.Embed([]string{"rate limiting function", "search code"}, ModeDocument)
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	for _, v := range vecs {
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		require.InDelta(t, 1.0, math.Sqrt(norm), 1e-4)
	}
}

func TestEmbedQueryPrefixChangesVector(t *testing.T) {
	svc, closeFn := tinyService(t)
	defer closeFn()

	text := "rate limiting"
	docVecs, err := svc.Embed([]string{text}, ModeDocument)
	require.NoError(t, err)
	queryVecs, err := svc.Embed([]string{text}, ModeQuery)
	require.NoError(t, err)

	require.NotEqual(t, docVecs[0], queryVecs[0])
}

func TestEmbedEmptyInput(t *testing.T) {
	svc, closeFn := tinyService(t)
	defer closeFn()

	vecs, err := svc.Embed(nil, ModeDocument)
	require.NoError(t, err)
	require.Nil(t, vecs)
}

func TestEmbedSubBatchOrderPreserved(t *testing.T) {
	svc, closeFn := tinyService(t)
	defer closeFn()

	texts := make([]string, SubBatchSize+5)
	for i := range texts {
		if i%2 == 0 {
			texts[i] = "rate limiting"
		} else {
			texts[i] = "search code function"
		}
	}
	vecs, err := svc.Embed(texts, ModeDocument)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i := 2; i < len(texts); i += 2 {
		require.Equal(t, vecs[0], vecs[i])
	}
}
