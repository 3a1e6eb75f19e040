package weights

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeSafetensors assembles a minimal valid safetensors file containing a
// single F32 tensor, for use as fixture data.
func writeSafetensors(t *testing.T, path, key string, shape []int, data []float32) {
	t.Helper()

	raw := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*4:i*4+4], math.Float32bits(v))
	}

	header := map[string]any{
		key: map[string]any{
			"dtype":        "F32",
			"shape":        shape,
			"data_offsets": [2]int{0, len(raw)},
		},
	}
	headerBytes, err := json.Marshal(header)
	require.NoError(t, err)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, binary.Write(f, binary.LittleEndian, uint64(len(headerBytes))))
	_, err = f.Write(headerBytes)
	require.NoError(t, err)
	_, err = f.Write(raw)
	require.NoError(t, err)
}

func TestOpenAndFloat32RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.safetensors")
	want := []float32{1, -2, 0.5, 3.25}
	writeSafetensors(t, path, "emb_ln.weight", []int{4}, want)

	arc, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, []string{"emb_ln.weight"}, arc.Keys())
	require.Equal(t, []int{4}, arc.Shape("emb_ln.weight"))

	got, err := arc.Float32("emb_ln.weight")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestFloat32UnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.safetensors")
	writeSafetensors(t, path, "emb_ln.weight", []int{2}, []float32{1, 2})

	arc, err := Open(path)
	require.NoError(t, err)

	_, err = arc.Float32("does.not.exist")
	require.Error(t, err)
}

func TestFloat16ToFloat32Basics(t *testing.T) {
	require.InDelta(t, 0.0, float16ToFloat32(0x0000), 1e-9)
	require.InDelta(t, 1.0, float16ToFloat32(0x3c00), 1e-3)
	require.InDelta(t, -2.0, float16ToFloat32(0xc000), 1e-3)
}

// fakeEncoder is a narrow stand-in for *encoder.Encoder satisfying
// paramSetter, used to test apply without depending on real model math.
type fakeEncoder struct {
	seen    map[string][]float32
	require []string
}

func (f *fakeEncoder) LoadParam(path string, data []float32, shape []int) error {
	if f.seen == nil {
		f.seen = map[string][]float32{}
	}
	f.seen[path] = data
	return nil
}

func (f *fakeEncoder) RequiredKeys() []string { return f.require }

func (f *fakeEncoder) Missing() []string {
	var missing []string
	for _, k := range f.require {
		if _, ok := f.seen[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

func TestApplyReportsMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.safetensors")
	writeSafetensors(t, path, "emb_ln.weight", []int{2}, []float32{1, 2})

	arc, err := Open(path)
	require.NoError(t, err)

	fe := &fakeEncoder{require: []string{"emb_ln.weight", "emb_ln.bias"}}
	err = apply(arc, fe)
	require.Error(t, err)
	var malformed *MalformedError
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, []string{"emb_ln.bias"}, malformed.Missing)
}

func TestApplySatisfied(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model.safetensors")
	writeSafetensors(t, path, "emb_ln.weight", []int{2}, []float32{1, 2})

	arc, err := Open(path)
	require.NoError(t, err)

	fe := &fakeEncoder{require: []string{"emb_ln.weight"}}
	require.NoError(t, apply(arc, fe))
	require.Equal(t, []float32{1, 2}, fe.seen["emb_ln.weight"])
}
