package store

import (
	"database/sql"
	"fmt"
	"strings"
)

// UpsertFiles inserts or updates a batch of file rows in a single
// transaction.
func (s *Store) UpsertFiles(batch []FileRow) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO files (path, hash, language, symbol_count, indexed_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			hash         = excluded.hash,
			language     = excluded.language,
			symbol_count = excluded.symbol_count,
			indexed_at   = excluded.indexed_at
	`)
	if err != nil {
		return fmt.Errorf("store: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, f := range batch {
		var language any
		if f.Language != "" {
			language = f.Language
		}
		if _, err := stmt.Exec(f.Path, f.Hash, language, f.SymbolCount, f.IndexedAt); err != nil {
			return fmt.Errorf("store: upsert %s: %w", f.Path, err)
		}
	}
	return tx.Commit()
}

// DeleteFiles removes the named files and any symbols indexed under them,
// in a single transaction.
func (s *Store) DeleteFiles(paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	delFile, err := tx.Prepare(`DELETE FROM files WHERE path = ?`)
	if err != nil {
		return fmt.Errorf("store: prepare delete file: %w", err)
	}
	defer delFile.Close()

	delSymbols, err := tx.Prepare(`DELETE FROM symbols WHERE file_path = ?`)
	if err != nil {
		return fmt.Errorf("store: prepare delete symbols: %w", err)
	}
	defer delSymbols.Close()

	for _, path := range paths {
		if _, err := delSymbols.Exec(path); err != nil {
			return fmt.Errorf("store: delete symbols for %s: %w", path, err)
		}
		if _, err := delFile.Exec(path); err != nil {
			return fmt.Errorf("store: delete file %s: %w", path, err)
		}
	}
	return tx.Commit()
}

// GetAllFiles returns every row in the files table.
func (s *Store) GetAllFiles() ([]FileRow, error) {
	rows, err := s.db.Query(`SELECT path, hash, language, symbol_count, indexed_at FROM files`)
	if err != nil {
		return nil, fmt.Errorf("store: query files: %w", err)
	}
	defer rows.Close()

	var out []FileRow
	for rows.Next() {
		var f FileRow
		var language sql.NullString
		if err := rows.Scan(&f.Path, &f.Hash, &language, &f.SymbolCount, &f.IndexedAt); err != nil {
			return nil, fmt.Errorf("store: scan file row: %w", err)
		}
		f.Language = language.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// Stats reports the current row counts.
func (s *Store) Stats() (Stats, error) {
	var stats Stats
	if err := s.db.QueryRow(`SELECT count(*) FROM files`).Scan(&stats.NumFiles); err != nil {
		return Stats{}, fmt.Errorf("store: count files: %w", err)
	}
	if err := s.db.QueryRow(`SELECT count(*) FROM symbols`).Scan(&stats.NumSymbols); err != nil {
		return Stats{}, fmt.Errorf("store: count symbols: %w", err)
	}
	return stats, nil
}

// QuerySymbols streams every symbol row matching the given filters (empty
// string skips that filter; pathPrefix matches file paths under the
// directory pathPrefix, i.e. `file_path LIKE pathPrefix || '/%'`). The caller owns the returned *sql.Rows and must
// close it; columns are (file_path, line, name, kind, language, end_line,
// signature, embedding) in that order, with embedding as a little-endian
// float32 blob. end_line and signature are materialized after the other
// fixed-width metadata columns; embedding is last so a filter predicate
// rejects a row before its BLOB page is touched (§3 Ownership, §9 Clustered
// storage).
func (s *Store) QuerySymbols(language, kind, pathPrefix string) (*sql.Rows, error) {
	query := `SELECT file_path, line, name, kind, language, end_line, signature, embedding FROM symbols`
	var clauses []string
	var args []any

	if language != "" {
		clauses = append(clauses, "language = ?")
		args = append(args, language)
	}
	if kind != "" {
		clauses = append(clauses, "kind = ?")
		args = append(args, kind)
	}
	if pathPrefix != "" {
		clauses = append(clauses, "file_path LIKE ?")
		args = append(args, pathPrefix+"/%")
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query symbols: %w", err)
	}
	return rows, nil
}
