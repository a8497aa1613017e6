// Package index maintains a cross-file dependency database for a Fortran
// source tree: which scopes each file defines, which modules each scope
// uses, and which procedures each scope calls. Queries answer build-order
// and impact questions (what must compile before this file, who breaks if
// this routine changes) without re-parsing anything.
package index

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Querier abstracts *sql.DB and *sql.Tx so index methods work in both contexts.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Index wraps a SQLite connection holding the dependency database.
type Index struct {
	db     *sql.DB
	q      Querier // active querier: db or tx
	dbPath string
}

// OpenPath opens or creates the dependency database at the given path.
func OpenPath(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	ix := &Index{db: db, dbPath: dbPath}
	ix.q = ix.db
	if err := ix.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return ix, nil
}

// OpenMemory opens an in-memory dependency database (for testing).
func OpenMemory() (*Index, error) {
	db, err := sql.Open("sqlite", ":memory:?_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	ix := &Index{db: db, dbPath: ":memory:"}
	ix.q = ix.db
	if err := ix.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return ix, nil
}

// WithTransaction executes fn within a single SQLite transaction. The
// callback receives a transaction-scoped Index; the receiver's q field is
// never mutated, so concurrent readers on the same Index are unaffected.
func (ix *Index) WithTransaction(fn func(txIx *Index) error) error {
	tx, err := ix.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	txIx := &Index{db: ix.db, q: tx, dbPath: ix.dbPath}
	if err := fn(txIx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Close closes the database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

func (ix *Index) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		indexed_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS scopes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file TEXT NOT NULL REFERENCES files(path) ON DELETE CASCADE,
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		UNIQUE(file, path)
	);

	CREATE INDEX IF NOT EXISTS idx_scopes_name ON scopes(kind, name);
	CREATE INDEX IF NOT EXISTS idx_scopes_path ON scopes(path);

	CREATE TABLE IF NOT EXISTS uses (
		scope_id INTEGER NOT NULL REFERENCES scopes(id) ON DELETE CASCADE,
		module TEXT NOT NULL,
		only TEXT DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_uses_module ON uses(module);

	CREATE TABLE IF NOT EXISTS calls (
		scope_id INTEGER NOT NULL REFERENCES scopes(id) ON DELETE CASCADE,
		callee TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_calls_callee ON calls(callee);
	`
	if _, err := ix.q.Exec(schema); err != nil {
		return err
	}
	return nil
}
