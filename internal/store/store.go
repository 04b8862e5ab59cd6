package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	gocache "github.com/patrickmn/go-cache"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial audits table with request/verification columns
const schemaVersion = 1

const (
	manifestCacheTTL   = 5 * time.Minute
	manifestCacheSweep = 10 * time.Minute
)

// SchemaVersionError reports an index written by a newer schema than
// this build understands. The fix is upgrading the binary, never
// downgrading the database.
type SchemaVersionError struct {
	OnDisk    int
	Supported int
}

func (e *SchemaVersionError) Error() string {
	return fmt.Sprintf("audit index schema version %d is newer than supported version %d: upgrade receipts",
		e.OnDisk, e.Supported)
}

// Store is the audit store: pack directories under a root plus a
// SQLite search index. Safe for concurrent use; SQLite serializes
// writers through a single connection.
type Store struct {
	root  string
	db    *sql.DB
	cache *gocache.Cache
}

// Open prepares the pack root and opens (creating if needed) the index
// database. Idempotent: an existing store opens in place, with
// migrations applied upward when its schema is older than this build.
func Open(root, indexPath string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}

	db, err := sql.Open("sqlite3", indexPath)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to index: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		root:  root,
		db:    db,
		cache: gocache.New(manifestCacheTTL, manifestCacheSweep),
	}, nil
}

// Close releases the index connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Root returns the pack root directory.
func (s *Store) Root() string {
	return s.root
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema gates on the stored schema version, creates missing
// tables, and records the version this build writes.
func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > schemaVersion {
		return &SchemaVersionError{OnDisk: version, Supported: schemaVersion}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	// Migrations run upward from the stored version. Version 1 is the
	// base schema, created above; later versions slot in here.

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
