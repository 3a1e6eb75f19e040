package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/screenager/siftd/internal/embedding"
)

// Embedder is the subset of internal/embedding.Service this package depends
// on, kept narrow so tests can exercise IndexSymbols against a fake without
// loading a real tokenizer/encoder (the same pattern internal/weights uses
// for its paramSetter interface).
type Embedder interface {
	Embed(texts []string, mode embedding.Mode) ([][]float32, error)
}

// IndexSymbols embeds every batch entry's EmbeddingText through svc, then
// inserts all resulting rows in a single transaction with a prepared
// statement. A failure embedding any entry — or inserting any row — aborts
// the whole call; there is no partial commit.
func (s *Store) IndexSymbols(ctx context.Context, svc Embedder, batch []SymbolInput) error {
	if len(batch) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	texts := make([]string, len(batch))
	for i, b := range batch {
		texts[i] = b.EmbeddingText
	}

	vecs, err := svc.Embed(texts, embedding.ModeDocument)
	if err != nil {
		return fmt.Errorf("store: embed symbols: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO symbols (file_path, line, name, kind, language, end_line, signature, embedding_text, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path, line) DO UPDATE SET
			name           = excluded.name,
			kind           = excluded.kind,
			language       = excluded.language,
			end_line       = excluded.end_line,
			signature      = excluded.signature,
			embedding_text = excluded.embedding_text,
			embedding      = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, b := range batch {
		blob := encodeEmbedding(vecs[i])
		var endLine any
		if b.EndLine != nil {
			endLine = *b.EndLine
		}
		var signature any
		if b.Signature != "" {
			signature = b.Signature
		}
		if _, err := stmt.Exec(b.FilePath, b.Line, b.Name, b.Kind, b.Language, endLine, signature, b.EmbeddingText, blob); err != nil {
			return fmt.Errorf("store: insert symbol %s:%d: %w", b.FilePath, b.Line, err)
		}
	}
	return tx.Commit()
}

// encodeEmbedding packs a vector as consecutive little-endian float32s,
// the on-disk layout the search engine's scan expects.
func encodeEmbedding(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(out[i*4:i*4+4], math.Float32bits(f))
	}
	return out
}

// decodeEmbedding unpacks a little-endian float32 blob back into a vector.
func decodeEmbedding(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
