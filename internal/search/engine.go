package search

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/screenager/siftd/internal/store"
)

// fanoutFactor governs how many candidates each query keeps internally
// before fusion, so that when queries disagree the surviving set after
// dedup is still likely to have topK distinct rows.
const fanoutFactor = 1.5

// Filters narrows a search to a subset of indexed symbols. An empty field
// means "no filter" for that dimension.
type Filters struct {
	Language   string
	Kind       string
	PathPrefix string
}

// Result is one fused, scored hit. EndLine and Signature are nil/empty when
// the underlying symbol row had no value recorded (§6: `end_line?`,
// `signature?`).
type Result struct {
	FilePath  string
	Line      int
	Name      string
	Kind      string
	Language  string
	EndLine   *int
	Signature string
	Score     float32
}

// Search runs a brute-force nearest-neighbor scan over the store for each
// query vector, keeping a bounded max-heap per query, then fuses all
// queries' surviving candidates by (file_path, line, name) — keeping the
// maximum score on collision — filters by threshold, and returns the
// topK highest-scoring results (stable ordering, ties broken by first-seen
// order).
func Search(ctx context.Context, db *store.Store, queries [][]float32, topK int, threshold float32, filters Filters) ([]Result, error) {
	if len(queries) == 0 || topK <= 0 {
		return nil, nil
	}

	perQueryK := topK
	if len(queries) > 1 {
		perQueryK = int(math.Ceil(fanoutFactor * float64(topK)))
	}

	fused := make(map[string]candidate)
	seq := 0

	for _, q := range queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits, err := searchOne(db, q, perQueryK, filters)
		if err != nil {
			return nil, err
		}
		for _, c := range hits {
			key := c.FilePath + ":" + fmt.Sprint(c.Line) + ":" + c.Name
			if existing, ok := fused[key]; !ok || c.Score > existing.Score {
				if !ok {
					c.seq = seq
					seq++
				} else {
					c.seq = existing.seq
				}
				fused[key] = c
			}
		}
	}

	results := make([]candidate, 0, len(fused))
	for _, c := range fused {
		if c.Score >= threshold {
			results = append(results, c)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].seq < results[j].seq
	})

	if len(results) > topK {
		results = results[:topK]
	}

	out := make([]Result, len(results))
	for i, c := range results {
		out[i] = Result{
			FilePath:  c.FilePath,
			Line:      c.Line,
			Name:      c.Name,
			Kind:      c.Kind,
			Language:  c.Language,
			EndLine:   c.EndLine,
			Signature: c.Signature,
			Score:     c.Score,
		}
	}
	return out, nil
}

func searchOne(db *store.Store, query []float32, k int, filters Filters) ([]candidate, error) {
	rows, err := db.QuerySymbols(filters.Language, filters.Kind, filters.PathPrefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bh := newBoundedHeap(k)
	seq := 0

	for rows.Next() {
		var filePath, name, kind, language string
		var line int
		var endLine sql.NullInt64
		var signature sql.NullString
		var blob []byte
		if err := rows.Scan(&filePath, &line, &name, &kind, &language, &endLine, &signature, &blob); err != nil {
			return nil, fmt.Errorf("search: scan row: %w", err)
		}
		vec := decodeEmbedding(blob)
		if len(vec) != len(query) {
			continue // dimension mismatch: skip rather than panic on a malformed row
		}

		var endLinePtr *int
		if endLine.Valid {
			v := int(endLine.Int64)
			endLinePtr = &v
		}

		dist := squaredL2(query, vec)
		bh.Offer(candidate{
			FilePath:  filePath,
			Line:      line,
			Name:      name,
			Kind:      kind,
			Language:  language,
			EndLine:   endLinePtr,
			Signature: signature.String,
			Score:     scoreFromDistance(dist),
			seq:       seq,
		})
		seq++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: iterate rows: %w", err)
	}

	return bh.Items(), nil
}

// decodeEmbedding unpacks a little-endian float32 blob, mirroring the
// layout internal/store writes.
func decodeEmbedding(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(b[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}
	return out
}
