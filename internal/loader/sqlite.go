package loader

import (
	"database/sql"
	"fmt"
	"os"
	"slices"

	_ "github.com/mattn/go-sqlite3"

	"github.com/karsol/graft/internal/ir"
)

// SQLiteLoader reads a relational source file: one table per entity, all
// columns text. Matches the sqlite flavor of the source fixtures.
type SQLiteLoader struct {
	PK                 PKConfig
	RelationshipTables []string

	db      *sql.DB
	version string
}

var _ Loader = (*SQLiteLoader)(nil)

// Open opens the source database read-only.
func (l *SQLiteLoader) Open(conn Connection) error {
	if conn.Kind != "file" {
		return fmt.Errorf("sqlite loader: unsupported connection kind %q", conn.Kind)
	}
	if _, err := os.Stat(conn.Filepath); err != nil {
		return fmt.Errorf("source file %q: %w", conn.Filepath, err)
	}
	version, err := fileVersion(conn.Filepath)
	if err != nil {
		return err
	}
	db, err := sql.Open("sqlite3", "file:"+conn.Filepath+"?mode=ro")
	if err != nil {
		return fmt.Errorf("source file %q: %w", conn.Filepath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("source file %q: %w", conn.Filepath, err)
	}
	l.db = db
	l.version = version
	return nil
}

// Close closes the source database.
func (l *SQLiteLoader) Close() error {
	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Entities reads every non-relationship table.
func (l *SQLiteLoader) Entities() ([]*ir.Entity, error) {
	return l.build(false)
}

// Relationships reads the tables named in RelationshipTables.
func (l *SQLiteLoader) Relationships() ([]*ir.Entity, error) {
	return l.build(true)
}

func (l *SQLiteLoader) build(relationships bool) ([]*ir.Entity, error) {
	if l.db == nil {
		return nil, fmt.Errorf("sqlite loader: not open")
	}
	tables, err := l.tableNames()
	if err != nil {
		return nil, err
	}
	var out []*ir.Entity
	for _, table := range tables {
		if slices.Contains(l.RelationshipTables, table) != relationships {
			continue
		}
		entity, err := l.readTable(table)
		if err != nil {
			return nil, err
		}
		out = append(out, entity)
	}
	return out, nil
}

func (l *SQLiteLoader) tableNames() ([]string, error) {
	rows, err := l.db.Query(
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (l *SQLiteLoader) readTable(table string) (*ir.Entity, error) {
	rows, err := l.db.Query(fmt.Sprintf("SELECT * FROM %q", table))
	if err != nil {
		return nil, fmt.Errorf("read table %q: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read table %q: %w", table, err)
	}

	pk := l.PK.Resolve(table)
	var instances []*ir.Instance
	rowIdx := 0
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		scan := make([]any, len(cols))
		for i := range values {
			scan[i] = &values[i]
		}
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("read table %q: %w", table, err)
		}
		data := make(map[string]any, len(cols))
		for i, col := range cols {
			if values[i].Valid {
				data[col] = values[i].String
			} else {
				data[col] = nil
			}
		}
		inst, err := ir.NewInstance(table, pk, data, l.version)
		if err != nil {
			return nil, fmt.Errorf("table %q row %d: %w", table, rowIdx, err)
		}
		instances = append(instances, inst)
		rowIdx++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read table %q: %w", table, err)
	}
	return ir.NewEntity(table, instances), nil
}

// PrimaryKey resolves the primary-key attribute for an entity.
func (l *SQLiteLoader) PrimaryKey(entityKey string) string { return l.PK.Resolve(entityKey) }

// Version returns the source file mtime token.
func (l *SQLiteLoader) Version() string { return l.version }
