// Package store implements the on-disk vector store: an SQLite-family
// database holding one row per indexed symbol, its metadata, and its
// embedding vector as a little-endian float32 blob.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// pragmas are applied in order on every Open, mirroring the tuning a
// write-heavy embedded index needs: WAL so readers don't block on writer
// commits, a large mmap window so the OS page cache does most of the
// reading, private temp storage, and a sizeable page cache since the
// working set (symbol rows + embeddings) is expected to exceed the SQLite
// default.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA mmap_size = 3000000000",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA cache_size = -64000",
}

// Store wraps a single SQLite connection. modernc.org/sqlite's driver is
// pure Go; no cgo is pulled in beyond what the tokenizer bindings already
// require.
type Store struct {
	db    *sql.DB
	model string
	dim   int
}

// Open creates parent directories if needed, opens (or creates) the
// database at path, applies the tuning pragmas, and initializes or
// migrates the schema. model and dimensions are recorded in the meta table
// on every open so a later reader can tell which checkpoint produced the
// embeddings.
func Open(path string, model string, dimensions int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite serializes writers regardless; avoid driver-level contention

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: apply %q: %w", p, err)
		}
	}

	if err := ensureSchema(db, model, dimensions); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, model: model, dim: dimensions}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
