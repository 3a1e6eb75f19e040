package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/screenager/siftd/internal/embedding"
)

// fakeService satisfies Embedder without depending on internal/encoder at
// all: every embedding is the one-hot vector for a hash of the text,
// letting tests assert exact round-trips.
type fakeService struct{ dim int }

func (f *fakeService) Embed(texts []string, mode embedding.Mode) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		h := 0
		for _, c := range t {
			h = (h*31 + int(c)) % f.dim
		}
		if h < 0 {
			h += f.dim
		}
		v[h] = 1
		out[i] = v
	}
	return out, nil
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, "test-model", 8)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenInitializesSchema(t *testing.T) {
	s := openTestStore(t)
	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, 0, stats.NumFiles)
	require.Equal(t, 0, stats.NumSymbols)
}

func TestUpsertAndGetAllFiles(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.UpsertFiles([]FileRow{
		{Path: "a.go", Hash: "h1", Language: "go", SymbolCount: 2, IndexedAt: 1000},
		{Path: "b.go", Hash: "h2", Language: "", SymbolCount: 0, IndexedAt: 1001},
	}))

	rows, err := s.GetAllFiles()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byPath := map[string]FileRow{}
	for _, r := range rows {
		byPath[r.Path] = r
	}
	require.Equal(t, "h1", byPath["a.go"].Hash)
	require.Equal(t, "go", byPath["a.go"].Language)
	require.Equal(t, 2, byPath["a.go"].SymbolCount)
	require.Equal(t, "", byPath["b.go"].Language)
}

func TestUpsertFilesIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	row := FileRow{Path: "a.go", Hash: "h1", Language: "go", SymbolCount: 1, IndexedAt: 1000}
	require.NoError(t, s.UpsertFiles([]FileRow{row}))

	row.Hash = "h2"
	row.SymbolCount = 5
	require.NoError(t, s.UpsertFiles([]FileRow{row}))

	rows, err := s.GetAllFiles()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "h2", rows[0].Hash)
	require.Equal(t, 5, rows[0].SymbolCount)
}

func TestIndexSymbolsEndToEnd(t *testing.T) {
	s := openTestStore(t)
	svc := &fakeService{dim: 8}

	end := 5
	batch := []SymbolInput{
		{FilePath: "a.go", Line: 1, Name: "Foo", Kind: "function", Language: "go", EndLine: &end, Signature: "func Foo()", EmbeddingText: "foo text"},
		{FilePath: "a.go", Line: 10, Name: "Bar", Kind: "function", Language: "go", EmbeddingText: "bar text"},
	}
	require.NoError(t, s.IndexSymbols(context.Background(), svc, batch))

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, 2, stats.NumSymbols)

	rows, err := s.QuerySymbols("", "", "")
	require.NoError(t, err)
	defer rows.Close()

	seen := map[string]bool{}
	for rows.Next() {
		var filePath, name, kind, language string
		var line int
		var endLine *int64
		var signature *string
		var blob []byte
		require.NoError(t, rows.Scan(&filePath, &line, &name, &kind, &language, &endLine, &signature, &blob))
		seen[name] = true
		if name == "Foo" {
			require.NotNil(t, endLine)
			require.Equal(t, int64(5), *endLine)
			require.NotNil(t, signature)
			require.Equal(t, "func Foo()", *signature)
		} else {
			require.Nil(t, endLine)
		}
		require.Len(t, decodeEmbedding(blob), 8)
	}
	require.NoError(t, rows.Err())
	require.True(t, seen["Foo"])
	require.True(t, seen["Bar"])
}

func TestDeleteFilesRemovesSymbols(t *testing.T) {
	s := openTestStore(t)
	svc := &fakeService{dim: 8}

	require.NoError(t, s.IndexSymbols(context.Background(), svc, []SymbolInput{
		{FilePath: "a.go", Line: 1, Name: "A", Kind: "function", Language: "go", EmbeddingText: "a"},
		{FilePath: "b.go", Line: 1, Name: "B", Kind: "function", Language: "go", EmbeddingText: "b"},
	}))
	require.NoError(t, s.UpsertFiles([]FileRow{
		{Path: "a.go", Hash: "h1", SymbolCount: 1, IndexedAt: 1},
		{Path: "b.go", Hash: "h2", SymbolCount: 1, IndexedAt: 2},
	}))

	require.NoError(t, s.DeleteFiles([]string{"a.go"}))

	stats, err := s.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.NumFiles)
	require.Equal(t, 1, stats.NumSymbols)

	files, err := s.GetAllFiles()
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "b.go", files[0].Path)
}
