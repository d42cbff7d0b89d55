package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Repository schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added UNIQUE index on source_aspects(scope, kind, identifier)
const currentSchemaVersion = 1

// Repository provides durable storage for the synchronized graph.
// Uses SQLite with WAL mode for concurrent read access.
type Repository struct {
	db  *sql.DB
	hub Hub
}

// Open creates or opens a repository database at the given path.
// Applies required pragmas and migrations automatically; safe to call on an
// existing repository.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement (aspect/relationship cascade on element delete)
func Open(path string) (*Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to repository: %w", err)
	}

	// SQLite supports one writer at a time; keep a single connection to
	// avoid SQLITE_BUSY during the run.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Repository{db: db, hub: LocalHub{}}, nil
}

// SetHub attaches the remote hub collaborator. The default is LocalHub, which
// makes every remote operation a no-op for repositories without a remote.
func (r *Repository) SetHub(h Hub) {
	if h == nil {
		h = LocalHub{}
	}
	r.hub = h
}

// Hub returns the attached hub collaborator.
func (r *Repository) Hub() Hub { return r.hub }

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer Repository methods when available.
func (r *Repository) DB() *sql.DB {
	return r.db
}

// Commit records a named checkpoint in the repository's commit log. Each
// orchestrator phase commits independently so an interrupted run resumes from
// the next phase.
func (r *Repository) Commit(ctx context.Context, description string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO commits (description) VALUES (?)`, description)
	if err != nil {
		return fmt.Errorf("commit %q: %w", description, err)
	}
	return nil
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
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the provenance uniqueness index for databases created
// before the schema.sql constraint existed.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_aspects_identity
		ON source_aspects(scope, kind, identifier)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}
