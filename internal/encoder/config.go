package encoder

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config mirrors the recognized fields of a checkpoint's config.json (§6).
// Unknown fields are ignored by encoding/json's default decode behavior.
type Config struct {
	VocabSize            int     `json:"vocab_size"`
	NEmbd                int     `json:"n_embd"`
	NHead                int     `json:"n_head"`
	NLayer               int     `json:"n_layer"`
	NInner               int     `json:"n_inner"`
	LayerNormEpsilon     float64 `json:"layer_norm_epsilon"`
	RotaryEmbBase        float64 `json:"rotary_emb_base"`
	RotaryEmbFraction    float64 `json:"rotary_emb_fraction"`
	RotaryEmbInterleaved bool    `json:"rotary_emb_interleaved"`
	QKVProjBias          bool    `json:"qkv_proj_bias"`
	MLPFc1Bias           bool    `json:"mlp_fc1_bias"`
	MLPFc2Bias           bool    `json:"mlp_fc2_bias"`
	Prenorm              bool    `json:"prenorm"`
}

// HeadDim returns n_embd / n_head.
func (c Config) HeadDim() int {
	return c.NEmbd / c.NHead
}

// LoadConfig reads and validates config.json at path, applying defaults for
// optional fields (§6).
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigError{Msg: fmt.Sprintf("read %s: %v", path, err)}
	}

	cfg := Config{
		NInner:            0, // resolved to 4*n_embd below if left at zero
		LayerNormEpsilon:  1e-12,
		RotaryEmbBase:     10000,
		RotaryEmbFraction: 1.0,
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, &ConfigError{Msg: fmt.Sprintf("parse %s: %v", path, err)}
	}

	if cfg.VocabSize <= 0 {
		return Config{}, &ConfigError{Msg: "vocab_size is required and must be positive"}
	}
	if cfg.NEmbd <= 0 {
		return Config{}, &ConfigError{Msg: "n_embd is required and must be positive"}
	}
	if cfg.NHead <= 0 || cfg.NEmbd%cfg.NHead != 0 {
		return Config{}, &ConfigError{Msg: "n_head is required and must divide n_embd"}
	}
	if cfg.NLayer <= 0 {
		return Config{}, &ConfigError{Msg: "n_layer is required and must be positive"}
	}
	if cfg.RotaryEmbFraction <= 0 || cfg.RotaryEmbFraction > 1 {
		return Config{}, &ConfigError{Msg: "rotary_emb_fraction must be in (0,1]"}
	}
	if cfg.Prenorm {
		return Config{}, &ConfigError{Msg: "prenorm=true is not supported; this encoder only implements post-norm residuals"}
	}
	if cfg.NInner == 0 {
		cfg.NInner = 4 * cfg.NEmbd
	}

	return cfg, nil
}

// ConfigError reports a malformed config.json or an unsupported setting.
// The facade maps this to engine.ConfigInvalid.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "encoder: config invalid: " + e.Msg }
