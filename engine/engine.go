// Package engine is the facade (C7): a process-wide, mutex-guarded entry
// point over the tokenizer, encoder, and vector store that the rest of this
// module implements. Every public method acquires the lock, so the
// observable effect order across calls equals the call order (§5).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/screenager/siftd/internal/embedding"
	"github.com/screenager/siftd/internal/encoder"
	"github.com/screenager/siftd/internal/search"
	"github.com/screenager/siftd/internal/store"
	"github.com/screenager/siftd/internal/tokenize"
	"github.com/screenager/siftd/internal/weights"
)

// Filters re-exports internal/search's filter set so callers never need to
// import an internal package.
type Filters = search.Filters

// SearchResult is one scored hit returned to the host.
type SearchResult struct {
	FilePath  string
	Line      int
	Name      string
	Kind      string
	Language  string
	EndLine   *int
	Signature string
	Score     float32
}

// SymbolInput is one symbol submitted to IndexSymbols.
type SymbolInput struct {
	EmbeddingText string
	FilePath      string
	Name          string
	Kind          string
	Language      string
	Line          int
	EndLine       *int
	Signature     string
}

// FileInput is one file row submitted to UpsertFiles.
type FileInput struct {
	Path        string
	Hash        string
	Language    string
	SymbolCount int
}

// FileRow is one row of the files table, as returned by GetAllFiles.
type FileRow = store.FileRow

// Stats summarizes the current contents of the store.
type Stats = store.Stats

// Engine holds one (encoder, tokenizer, db) triple guarded by mu; every
// public method acquires it for the duration of the call. New returns a
// fresh, independent Engine on every call; the package does not enforce a
// single instance per process. A panic while the lock is held poisons the
// engine permanently (§5 "Failure of the lock").
type Engine struct {
	mu sync.Mutex

	logger *slog.Logger

	initialized bool
	poisoned    bool

	modelDir string
	tok      *tokenize.Adapter
	enc      *encoder.Encoder
	svc      *embedding.Service

	db *store.Store
}

// New constructs an Engine. Init must be called before any other method.
func New() *Engine {
	return &Engine{logger: slog.Default()}
}

// SetLogger overrides the engine's slog.Logger, used for debug records of
// elapsed time per completed Init, IndexSymbols and Search call. There are no
// separate records for the tokenize/forward/eval/pool phases inside a call.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// withLock runs fn while holding mu, recovering a panic into LockPoisoned
// and marking the engine permanently unusable (§5).
func (e *Engine) withLock(fn func() error) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.poisoned {
		return newErr(LockPoisoned, "engine lock was poisoned by a prior panic", nil)
	}

	defer func() {
		if r := recover(); r != nil {
			e.poisoned = true
			err = newErr(LockPoisoned, fmt.Sprintf("recovered panic: %v", r), nil)
		}
	}()

	return fn()
}

// Init loads config.json and model.safetensors from modelDir, builds the
// tokenizer and encoder, and readies the embedding service. It may be
// called at most once per Engine (§6).
func (e *Engine) Init(modelDir, tokenizerPath string) error {
	return e.withLock(func() error {
		if e.initialized {
			return newErr(AlreadyInitialized, "Init already called on this engine", nil)
		}

		start := time.Now()

		cfgPath := filepath.Join(modelDir, "config.json")
		cfg, err := encoder.LoadConfig(cfgPath)
		if err != nil {
			return newErr(ConfigInvalid, "loading "+cfgPath, err)
		}

		tok, err := tokenize.New(tokenizerPath)
		if err != nil {
			return newErr(ConfigInvalid, "loading tokenizer "+tokenizerPath, err)
		}

		enc := encoder.New(cfg, encoder.CPU())
		if err := weights.Load(modelDir, enc); err != nil {
			tok.Close()
			return mapWeightsError(err)
		}

		e.modelDir = modelDir
		e.tok = tok
		e.enc = enc
		e.svc = embedding.New(tok, enc)
		e.initialized = true

		e.logger.Debug("siftd: init complete",
			"model_dir", modelDir,
			"n_layer", cfg.NLayer,
			"n_embd", cfg.NEmbd,
			"elapsed", time.Since(start))
		return nil
	})
}

// mapWeightsError maps internal/weights' typed errors onto the facade's
// error kinds (§7).
func mapWeightsError(err error) error {
	var encWeightsErr *encoder.WeightsError
	if errors.As(err, &encWeightsErr) {
		return newErr(WeightsMalformed, "weight archive malformed", err)
	}
	switch err.(type) {
	case *weights.NotFoundError:
		return newErr(WeightsMissing, "weight archive not found", err)
	case *weights.MalformedError:
		return newErr(WeightsMalformed, "weight archive incomplete", err)
	default:
		return newErr(ConfigInvalid, "loading weights", err)
	}
}

// OpenDB opens (or creates) the SQLite-family database at path, applying
// pragmas and initializing/migrating the schema (§6).
func (e *Engine) OpenDB(path string) error {
	return e.withLock(func() error {
		if !e.initialized {
			return newErr(NotInitialized, "OpenDB called before Init", nil)
		}
		db, err := store.Open(path, e.modelDir, e.enc.Dim())
		if err != nil {
			return newErr(StoreError, "opening "+path, err)
		}
		e.db = db
		return nil
	})
}

// CloseDB releases the store's connection. Safe to call when no DB is open.
func (e *Engine) CloseDB() error {
	return e.withLock(func() error {
		if e.db == nil {
			return nil
		}
		err := e.db.Close()
		e.db = nil
		if err != nil {
			return newErr(StoreError, "closing db", err)
		}
		return nil
	})
}

func (e *Engine) requireDB() (*store.Store, error) {
	if !e.initialized {
		return nil, newErr(NotInitialized, "called before Init", nil)
	}
	if e.db == nil {
		return nil, newErr(NotInitialized, "called before OpenDB", nil)
	}
	return e.db, nil
}

// UpsertFiles inserts or updates file bookkeeping rows in one transaction.
func (e *Engine) UpsertFiles(files []FileInput) error {
	return e.withLock(func() error {
		db, err := e.requireDB()
		if err != nil {
			return err
		}
		rows := make([]store.FileRow, len(files))
		for i, f := range files {
			rows[i] = store.FileRow{
				Path:        f.Path,
				Hash:        f.Hash,
				Language:    f.Language,
				SymbolCount: f.SymbolCount,
				IndexedAt:   time.Now().UnixMilli(),
			}
		}
		if err := db.UpsertFiles(rows); err != nil {
			return newErr(StoreError, "upserting files", err)
		}
		return nil
	})
}

// DeleteFiles removes the named files and every symbol indexed under them,
// in a single transaction.
func (e *Engine) DeleteFiles(paths []string) error {
	return e.withLock(func() error {
		db, err := e.requireDB()
		if err != nil {
			return err
		}
		if err := db.DeleteFiles(paths); err != nil {
			return newErr(StoreError, "deleting files", err)
		}
		return nil
	})
}

// IndexSymbols embeds every batch entry's EmbeddingText in sub-batches of
// 32 (§4.4) and inserts all resulting rows in one transaction (§4.5). A
// failure embedding or inserting any entry aborts the whole call.
func (e *Engine) IndexSymbols(ctx context.Context, batch []SymbolInput) error {
	return e.withLock(func() error {
		db, err := e.requireDB()
		if err != nil {
			return err
		}
		inputs := make([]store.SymbolInput, len(batch))
		for i, b := range batch {
			inputs[i] = store.SymbolInput{
				FilePath:      b.FilePath,
				Line:          b.Line,
				Name:          b.Name,
				Kind:          b.Kind,
				Language:      b.Language,
				EndLine:       b.EndLine,
				Signature:     b.Signature,
				EmbeddingText: b.EmbeddingText,
			}
		}

		start := time.Now()
		if err := db.IndexSymbols(ctx, e.svc, inputs); err != nil {
			if ctx.Err() != nil {
				return newErr(StoreError, "index_symbols: context canceled", err)
			}
			return mapEmbedOrStoreError(err)
		}
		e.logger.Debug("siftd: index_symbols complete", "count", len(batch), "elapsed", time.Since(start))
		return nil
	})
}

// mapEmbedOrStoreError distinguishes an embedding-pipeline failure (tensor
// runtime, tokenizer) from a store failure by the "store: embed symbols:"
// prefix internal/store.IndexSymbols wraps embedding errors with.
func mapEmbedOrStoreError(err error) error {
	if strings.Contains(err.Error(), "store: embed symbols:") {
		return newErr(DeviceError, "embedding symbols", err)
	}
	return newErr(StoreError, "indexing symbols", err)
}

// Search embeds each query string in query mode, scans the store once per
// query, fuses and deduplicates the results, and returns the top_k
// highest-scoring rows (§4.6). An empty query list returns an empty result
// without error (§7).
func (e *Engine) Search(ctx context.Context, queries []string, topK int, threshold float32, filters Filters) ([]SearchResult, error) {
	var out []SearchResult
	err := e.withLock(func() error {
		if len(queries) == 0 {
			return nil
		}
		db, err := e.requireDB()
		if err != nil {
			return err
		}

		start := time.Now()
		vecs, err := e.svc.Embed(queries, embedding.ModeQuery)
		if err != nil {
			return newErr(DeviceError, "embedding query", err)
		}

		results, err := search.Search(ctx, db, vecs, topK, threshold, filters)
		if err != nil {
			return newErr(StoreError, "searching", err)
		}
		e.logger.Debug("siftd: search complete", "queries", len(queries), "top_k", topK, "hits", len(results), "elapsed", time.Since(start))

		out = make([]SearchResult, len(results))
		for i, r := range results {
			out[i] = SearchResult{
				FilePath:  r.FilePath,
				Line:      r.Line,
				Name:      r.Name,
				Kind:      r.Kind,
				Language:  r.Language,
				EndLine:   r.EndLine,
				Signature: r.Signature,
				Score:     r.Score,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetAllFiles returns every row in the files table.
func (e *Engine) GetAllFiles() ([]FileRow, error) {
	var out []FileRow
	err := e.withLock(func() error {
		db, err := e.requireDB()
		if err != nil {
			return err
		}
		rows, err := db.GetAllFiles()
		if err != nil {
			return newErr(StoreError, "listing files", err)
		}
		out = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetStats reports symbol and file counts.
func (e *Engine) GetStats() (Stats, error) {
	var out Stats
	err := e.withLock(func() error {
		db, err := e.requireDB()
		if err != nil {
			return err
		}
		stats, err := db.Stats()
		if err != nil {
			return newErr(StoreError, "computing stats", err)
		}
		out = stats
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return out, nil
}
