// Package tokenize turns strings into the dense id/mask matrices the
// encoder expects: fixed length, right-padded, attention mask marking real
// tokens. No dynamic shapes cross the package boundary.
package tokenize

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/daulet/tokenizers"
)

// MaxLen is the fixed sequence length every batch is padded or truncated to.
const MaxLen = 128

// Batch holds dense [B][MaxLen] id and mask matrices for one call to Encode.
type Batch struct {
	InputIDs      [][]int64
	AttentionMask [][]int64
}

// Adapter wraps a HuggingFace tokenizer, falling back to a pure-Go WordPiece
// implementation when only a vocab.txt is available (see wordpiece.go).
type Adapter struct {
	hf   *tokenizers.Tokenizer
	wp   *wordPieceTokenizer
	hfOn bool
}

// New loads a tokenizer spec from specPath. A tokenizer.json is preferred;
// a vocab.txt falls back to the WordPiece implementation.
func New(specPath string) (*Adapter, error) {
	switch filepath.Base(specPath) {
	case "tokenizer.json":
		tk, err := tokenizers.FromFile(specPath)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer %s: %w", specPath, err)
		}
		return &Adapter{hf: tk, hfOn: true}, nil
	case "vocab.txt":
		wp, err := loadWordPiece(specPath, MaxLen)
		if err != nil {
			return nil, fmt.Errorf("load vocab %s: %w", specPath, err)
		}
		return &Adapter{wp: wp}, nil
	default:
		// Unknown filename: try tokenizer.json semantics first since that's
		// the more capable path, then fall back.
		if tk, err := tokenizers.FromFile(specPath); err == nil {
			return &Adapter{hf: tk, hfOn: true}, nil
		}
		if _, err := os.Stat(specPath); err != nil {
			return nil, fmt.Errorf("tokenizer spec not found at %s", specPath)
		}
		wp, err := loadWordPiece(specPath, MaxLen)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer spec %s: %w", specPath, err)
		}
		return &Adapter{wp: wp}, nil
	}
}

// Close releases the underlying tokenizer.
func (a *Adapter) Close() {
	if a.hf != nil {
		a.hf.Close()
	}
}

// Encode tokenizes texts into a dense, padded/truncated batch.
func (a *Adapter) Encode(texts []string) (Batch, error) {
	ids := make([][]int64, len(texts))
	mask := make([][]int64, len(texts))
	for i, text := range texts {
		var rowIDs, rowMask []int64
		if a.hfOn {
			enc := a.hf.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
			rowIDs = toInt64(enc.IDs)
			rowMask = toInt64(enc.AttentionMask)
		} else {
			rowIDs, rowMask = a.wp.encode(text)
		}
		ids[i] = padOrTruncate(rowIDs, MaxLen)
		mask[i] = padOrTruncate(rowMask, MaxLen)
	}
	return Batch{InputIDs: ids, AttentionMask: mask}, nil
}

func toInt64(v []uint32) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}

// padOrTruncate truncates to maxLen or right-pads with zeros.
func padOrTruncate(v []int64, maxLen int) []int64 {
	out := make([]int64, maxLen)
	n := len(v)
	if n > maxLen {
		n = maxLen
	}
	copy(out, v[:n])
	return out
}

// WithQueryPrefix returns texts with prefix prepended to each, used by the
// embedding service for query-mode batches.
func WithQueryPrefix(prefix string, texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = prefix + t
	}
	return out
}
