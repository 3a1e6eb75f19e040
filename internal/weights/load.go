package weights

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/screenager/siftd/internal/encoder"
)

// paramSetter is the subset of *encoder.Encoder this package depends on,
// kept narrow so tests can exercise Load against a fake.
type paramSetter interface {
	LoadParam(path string, data []float32, shape []int) error
	RequiredKeys() []string
	Missing() []string
}

// Load reads model.safetensors from modelDir and populates enc's parameter
// tree. It is a fatal error for the file to be absent (WeightsMissing at the
// facade layer), for any required key to be missing after the pass
// (WeightsMalformed), or for a tensor's shape not to match the config
// (ConfigInvalid).
func Load(modelDir string, enc *encoder.Encoder) error {
	path := filepath.Join(modelDir, "model.safetensors")
	if _, err := os.Stat(path); err != nil {
		return &NotFoundError{Path: path}
	}

	arc, err := Open(path)
	if err != nil {
		return err
	}

	return apply(arc, enc)
}

func apply(arc *Archive, enc paramSetter) error {
	for _, key := range arc.Keys() {
		vec, err := arc.Float32(key)
		if err != nil {
			return fmt.Errorf("weights: %w", err)
		}
		if err := enc.LoadParam(key, vec, arc.Shape(key)); err != nil {
			return fmt.Errorf("weights: loading %q: %w", key, err)
		}
	}

	if missing := enc.Missing(); len(missing) > 0 {
		return &MalformedError{Missing: missing}
	}
	return nil
}

// NotFoundError reports that no safetensors checkpoint exists at the
// expected path. The facade maps this to engine.WeightsMissing.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("weights: no checkpoint at %s", e.Path)
}

// MalformedError reports that the checkpoint parsed but left required
// parameters unset. The facade maps this to engine.WeightsMalformed.
type MalformedError struct {
	Missing []string
}

func (e *MalformedError) Error() string {
	if len(e.Missing) == 1 {
		return fmt.Sprintf("weights: missing required tensor %q", e.Missing[0])
	}
	return fmt.Sprintf("weights: missing %d required tensors (first: %q)", len(e.Missing), e.Missing[0])
}
