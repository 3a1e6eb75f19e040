package store

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchemaMigrationDropsStaleData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path, "model-v1", 8)
	require.NoError(t, err)
	require.NoError(t, s1.UpsertFiles([]FileRow{{Path: "a.go", Hash: "h", SymbolCount: 0, IndexedAt: 1}}))
	require.NoError(t, s1.Close())

	db2, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db2.Exec(`UPDATE meta SET value = '1' WHERE key = 'schema_version'`)
	require.NoError(t, err)
	require.NoError(t, db2.Close())

	s2, err := Open(path, "model-v1", 8)
	require.NoError(t, err)
	defer s2.Close()

	stats, err := s2.Stats()
	require.NoError(t, err)
	require.Equal(t, 0, stats.NumFiles)
}
