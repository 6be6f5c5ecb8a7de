package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteIndex persists the syntactic index across process restarts
// (SPEC_FULL.md section C.5): the in-memory Store's syntacticIndex map
// satisfies the same lookup/put contract, backed by a modernc.org/sqlite
// database instead of a map so a caching compiler invocation in a new
// process can still short-circuit on a hit from a prior run.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (creating if necessary) a SQLite-backed
// syntactic index at path.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening syntactic index database: %w", err)
	}
	idx := &SQLiteIndex{db: db}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *SQLiteIndex) initSchema() error {
	_, err := idx.db.Exec(`
		CREATE TABLE IF NOT EXISTS syntactic_index (
			syntactic_hash TEXT NOT NULL,
			registry_hash  TEXT NOT NULL,
			structural_hash TEXT NOT NULL,
			PRIMARY KEY (syntactic_hash, registry_hash)
		)
	`)
	return err
}

func (idx *SQLiteIndex) Close() error { return idx.db.Close() }

// LookupSyntactic mirrors Store.LookupSyntactic, backed by the database.
func (idx *SQLiteIndex) LookupSyntactic(syntacticHash, registryHash string) (string, bool) {
	var structuralHash string
	err := idx.db.QueryRow(`
		SELECT structural_hash FROM syntactic_index WHERE syntactic_hash = ? AND registry_hash = ?
	`, syntacticHash, registryHash).Scan(&structuralHash)
	if err != nil {
		return "", false
	}
	return structuralHash, true
}

// PutSyntacticIndex mirrors Store.PutSyntacticIndex, backed by the
// database.
func (idx *SQLiteIndex) PutSyntacticIndex(syntacticHash, registryHash, structuralHash string) {
	idx.db.Exec(`
		INSERT INTO syntactic_index (syntactic_hash, registry_hash, structural_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(syntactic_hash, registry_hash) DO UPDATE SET
			structural_hash = excluded.structural_hash
	`, syntacticHash, registryHash, structuralHash)
}
