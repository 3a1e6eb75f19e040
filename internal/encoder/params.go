package encoder

import (
	"fmt"
	"strconv"
	"strings"
)

// LoadParam assigns one leaf tensor from the weight archive (§4.3) into the
// encoder's parameter tree, keyed by the literal path the checkpoint uses.
// Shape is validated against the encoder's config before the value is
// stored; a mismatch is a fatal load error.
func (e *Encoder) LoadParam(path string, data []float32, shape []int) error {
	hidden := e.cfg.NEmbd
	inner := e.cfg.NInner

	switch {
	case path == "embeddings.word_embeddings.weight":
		if err := checkShape(path, shape, e.cfg.VocabSize, hidden); err != nil {
			return err
		}
		e.wordEmbeddings = data
		return nil
	case path == "emb_ln.weight":
		if err := checkShape(path, shape, hidden); err != nil {
			return err
		}
		e.embLNWeight = data
		return nil
	case path == "emb_ln.bias":
		if err := checkShape(path, shape, hidden); err != nil {
			return err
		}
		e.embLNBias = data
		return nil
	}

	if !strings.HasPrefix(path, "encoder.layers.") {
		return nil // extra keys are ignored (§4.3)
	}

	rest := strings.TrimPrefix(path, "encoder.layers.")
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 {
		return nil
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil || idx < 0 || idx >= len(e.layers) {
		return &WeightsError{Msg: fmt.Sprintf("layer index out of range in key %q", path)}
	}
	l := &e.layers[idx]
	leaf := parts[1]

	// Checkpoint Linear weights arrive as (out_features, in_features), the
	// PyTorch/MLX nn.Linear convention; checkShape validates against that
	// shape and transpose() below stores them as (in, out) so the matmuls in
	// attention.go/mlp.go can compute x @ W directly.
	switch leaf {
	case "attn.Wqkv.weight":
		if err := checkShape(path, shape, 3*hidden, hidden); err != nil {
			return err
		}
		l.WqkvWeight = transpose(data, 3*hidden, hidden)
	case "attn.Wqkv.bias":
		if err := checkShape(path, shape, 3*hidden); err != nil {
			return err
		}
		l.WqkvBias = data
	case "attn.out_proj.weight":
		if err := checkShape(path, shape, hidden, hidden); err != nil {
			return err
		}
		l.OutProjWeight = transpose(data, hidden, hidden)
	case "mlp.fc11.weight":
		if err := checkShape(path, shape, inner, hidden); err != nil {
			return err
		}
		l.Fc11Weight = transpose(data, inner, hidden)
	case "mlp.fc11.bias":
		if err := checkShape(path, shape, inner); err != nil {
			return err
		}
		l.Fc11Bias = data
	case "mlp.fc12.weight":
		if err := checkShape(path, shape, inner, hidden); err != nil {
			return err
		}
		l.Fc12Weight = transpose(data, inner, hidden)
	case "mlp.fc12.bias":
		if err := checkShape(path, shape, inner); err != nil {
			return err
		}
		l.Fc12Bias = data
	case "mlp.fc2.weight":
		if err := checkShape(path, shape, hidden, inner); err != nil {
			return err
		}
		l.Fc2Weight = transpose(data, hidden, inner)
	case "mlp.fc2.bias":
		if err := checkShape(path, shape, hidden); err != nil {
			return err
		}
		l.Fc2Bias = data
	case "norm1.weight":
		if err := checkShape(path, shape, hidden); err != nil {
			return err
		}
		l.Norm1Weight = data
	case "norm1.bias":
		if err := checkShape(path, shape, hidden); err != nil {
			return err
		}
		l.Norm1Bias = data
	case "norm2.weight":
		if err := checkShape(path, shape, hidden); err != nil {
			return err
		}
		l.Norm2Weight = data
	case "norm2.bias":
		if err := checkShape(path, shape, hidden); err != nil {
			return err
		}
		l.Norm2Bias = data
	}
	return nil
}

// RequiredKeys lists every key LoadParam must have seen before the encoder
// is usable, honoring the configured bias flags (§4.3: bias presence is
// configurable and absent keys are only required when the bias is enabled).
func (e *Encoder) RequiredKeys() []string {
	keys := []string{"embeddings.word_embeddings.weight", "emb_ln.weight", "emb_ln.bias"}
	for i := range e.layers {
		p := fmt.Sprintf("encoder.layers.%d.", i)
		keys = append(keys,
			p+"attn.Wqkv.weight",
			p+"attn.out_proj.weight",
			p+"mlp.fc11.weight",
			p+"mlp.fc12.weight",
			p+"mlp.fc2.weight",
			p+"norm1.weight", p+"norm1.bias",
			p+"norm2.weight", p+"norm2.bias",
		)
		if e.cfg.QKVProjBias {
			keys = append(keys, p+"attn.Wqkv.bias")
		}
		if e.cfg.MLPFc1Bias {
			keys = append(keys, p+"mlp.fc11.bias", p+"mlp.fc12.bias")
		}
		if e.cfg.MLPFc2Bias {
			keys = append(keys, p+"mlp.fc2.bias")
		}
	}
	return keys
}

// Missing returns the subset of RequiredKeys not yet populated, for a
// descriptive WeightsMalformed error after a load pass.
func (e *Encoder) Missing() []string {
	var missing []string
	for _, k := range e.RequiredKeys() {
		if !e.has(k) {
			missing = append(missing, k)
		}
	}
	return missing
}

func (e *Encoder) has(path string) bool {
	switch path {
	case "embeddings.word_embeddings.weight":
		return e.wordEmbeddings != nil
	case "emb_ln.weight":
		return e.embLNWeight != nil
	case "emb_ln.bias":
		return e.embLNBias != nil
	}
	if !strings.HasPrefix(path, "encoder.layers.") {
		return true
	}
	rest := strings.TrimPrefix(path, "encoder.layers.")
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 {
		return true
	}
	idx, err := strconv.Atoi(parts[0])
	if err != nil || idx < 0 || idx >= len(e.layers) {
		return false
	}
	l := &e.layers[idx]
	switch parts[1] {
	case "attn.Wqkv.weight":
		return l.WqkvWeight != nil
	case "attn.Wqkv.bias":
		return l.WqkvBias != nil
	case "attn.out_proj.weight":
		return l.OutProjWeight != nil
	case "mlp.fc11.weight":
		return l.Fc11Weight != nil
	case "mlp.fc11.bias":
		return l.Fc11Bias != nil
	case "mlp.fc12.weight":
		return l.Fc12Weight != nil
	case "mlp.fc12.bias":
		return l.Fc12Bias != nil
	case "mlp.fc2.weight":
		return l.Fc2Weight != nil
	case "mlp.fc2.bias":
		return l.Fc2Bias != nil
	case "norm1.weight":
		return l.Norm1Weight != nil
	case "norm1.bias":
		return l.Norm1Bias != nil
	case "norm2.weight":
		return l.Norm2Weight != nil
	case "norm2.bias":
		return l.Norm2Bias != nil
	}
	return true
}

func checkShape(path string, got []int, want ...int) error {
	if len(got) != len(want) {
		return &ConfigError{Msg: fmt.Sprintf("%s: expected rank %d, got shape %v", path, len(want), got)}
	}
	for i, w := range want {
		if got[i] != w {
			return &ConfigError{Msg: fmt.Sprintf("%s: expected shape %v, got %v", path, want, got)}
		}
	}
	return nil
}

// WeightsError reports a weight archive key that names a layer index out of
// range for the configured encoder. The facade maps this to
// engine.WeightsMalformed.
type WeightsError struct {
	Msg string
}

func (e *WeightsError) Error() string { return "encoder: weights malformed: " + e.Msg }
