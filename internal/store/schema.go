package store

import (
	"database/sql"
	"fmt"
)

// schemaVersion is bumped whenever the DDL below changes shape. A mismatch
// against the stored meta.schema_version triggers a drop-and-recreate of
// every table; there is no incremental migration path, since the store
// only ever holds a derived index that can be rebuilt from source.
const schemaVersion = 4

const ddl = `
CREATE TABLE meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE files (
	path         TEXT PRIMARY KEY,
	hash         TEXT NOT NULL,
	language     TEXT,
	symbol_count INTEGER NOT NULL,
	indexed_at   INTEGER NOT NULL
);

CREATE TABLE symbols (
	file_path      TEXT NOT NULL,
	line           INTEGER NOT NULL,
	name           TEXT NOT NULL,
	kind           TEXT NOT NULL,
	language       TEXT NOT NULL,
	end_line       INTEGER,
	signature      TEXT,
	embedding_text TEXT NOT NULL,
	embedding      BLOB NOT NULL,
	PRIMARY KEY (file_path, line)
) WITHOUT ROWID;

CREATE INDEX idx_symbols_language ON symbols(language);
CREATE INDEX idx_symbols_kind ON symbols(kind);
`

// ensureSchema drops and recreates meta/files/symbols when the stored
// schema version is absent or stale, then unconditionally rewrites the meta
// row (schema_version, model, dimensions) to match the running binary.
func ensureSchema(db *sql.DB, model string, dimensions int) error {
	current, err := readSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}

	if current != schemaVersion {
		if err := dropAll(db); err != nil {
			return fmt.Errorf("store: drop stale schema: %w", err)
		}
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("store: create schema: %w", err)
		}
	}

	if err := writeMeta(db, model, dimensions); err != nil {
		return fmt.Errorf("store: write meta: %w", err)
	}
	return nil
}

// readSchemaVersion returns 0 (never matches a real schemaVersion) if the
// meta table doesn't exist yet or holds no schema_version row.
func readSchemaVersion(db *sql.DB) (int, error) {
	var exists int
	err := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='meta'`).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var value string
	err = db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var version int
	if _, err := fmt.Sscanf(value, "%d", &version); err != nil {
		return 0, nil // unparsable value is treated as "no version"
	}
	return version, nil
}

func dropAll(db *sql.DB) error {
	for _, table := range []string{"symbols", "files", "meta"} {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + table); err != nil {
			return err
		}
	}
	return nil
}

func writeMeta(db *sql.DB, model string, dimensions int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	rows := map[string]string{
		"schema_version": fmt.Sprintf("%d", schemaVersion),
		"model":          model,
		"dimensions":     fmt.Sprintf("%d", dimensions),
	}
	for key, value := range rows {
		if _, err := stmt.Exec(key, value); err != nil {
			return err
		}
	}
	return tx.Commit()
}
