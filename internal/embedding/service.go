// Package embedding turns code fragments into unit-norm vectors using the
// tokenizer and tensor encoder packages. It is the sub-batching, prefix-
// handling orchestration layer; the actual tokenization and transformer math
// live in internal/tokenize and internal/encoder.
package embedding

import (
	"fmt"

	"github.com/screenager/siftd/internal/encoder"
	"github.com/screenager/siftd/internal/tokenize"
)

// Mode selects document-side or query-side embedding. Query text is
// prefixed with QueryPrefix before tokenization; document text is not.
type Mode int

const (
	ModeDocument Mode = iota
	ModeQuery
)

// QueryPrefix is prepended to query text for asymmetric retrieval — the
// encoder was trained expecting queries and documents to be distinguished
// this way.
const QueryPrefix = "Represent this query for searching relevant code: "

// SubBatchSize bounds memory and per-call latency; large Embed calls are
// split into chunks of this size and run independently through the encoder.
const SubBatchSize = 32

// Service ties a tokenizer adapter to a loaded encoder. Construct one per
// loaded model; it is safe for concurrent use once built, as both the
// tokenizer and the encoder are pure functions of their inputs.
type Service struct {
	tok *tokenize.Adapter
	enc *encoder.Encoder
}

// New builds a Service from an already-open tokenizer adapter and a loaded
// encoder. Both must outlive the Service.
func New(tok *tokenize.Adapter, enc *encoder.Encoder) *Service {
	return &Service{tok: tok, enc: enc}
}

// Embed returns one unit-norm vector per input text, in input order. Texts
// are processed in sub-batches of SubBatchSize; a failure in any sub-batch
// aborts the whole call, since sub-batching is an implementation detail
// invisible to the caller.
func (s *Service) Embed(texts []string, mode Mode) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prepared := texts
	if mode == ModeQuery {
		prepared = tokenize.WithQueryPrefix(QueryPrefix, texts)
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(prepared); start += SubBatchSize {
		end := start + SubBatchSize
		if end > len(prepared) {
			end = len(prepared)
		}
		rows, err := s.embedSubBatch(prepared[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding: sub-batch [%d:%d]: %w", start, end, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (s *Service) embedSubBatch(texts []string) ([][]float32, error) {
	batch, err := s.tok.Encode(texts)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}

	g := encoder.NewGraph()
	hb, err := s.enc.Forward(g, batch.InputIDs, batch.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	if err := g.Eval(); err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}

	return hb.PoolNormalize(s.enc.Dim()), nil
}
