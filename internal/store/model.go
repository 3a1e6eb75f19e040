package store

// FileRow is one row of the files table: per-file bookkeeping used for
// change detection between index runs. Language is empty when unknown.
// SymbolCount and IndexedAt are supplied by the caller — the store does not
// derive SymbolCount from the symbols table itself (§3: the invariant that
// it equals the row count for that path is a caller responsibility).
type FileRow struct {
	Path        string
	Hash        string
	Language    string
	SymbolCount int
	IndexedAt   int64 // milliseconds since epoch
}

// SymbolInput is one symbol awaiting embedding and insertion. EmbeddingText
// is the text IndexSymbols feeds to the embedding service; it is persisted
// verbatim alongside the resulting vector (§3). EndLine is nil when unknown.
type SymbolInput struct {
	FilePath      string
	Line          int
	Name          string
	Kind          string
	Language      string
	EndLine       *int
	Signature     string
	EmbeddingText string
}

// Symbol is one row of the symbols table, as returned by a scan. EndLine is
// nil when the row has no recorded end line.
type Symbol struct {
	FilePath      string
	Line          int
	Name          string
	Kind          string
	Language      string
	EndLine       *int
	Signature     string
	EmbeddingText string
	Embedding     []float32
}

// Meta holds the database's meta table values.
type Meta struct {
	SchemaVersion int
	Model         string
	Dimensions    int
}

// Stats summarizes the current contents of the store.
type Stats struct {
	NumFiles   int
	NumSymbols int
}
