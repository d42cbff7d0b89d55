package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SchemaVersion is a persisted schema's (read, write, minor) triple.
type SchemaVersion struct {
	Read  int `json:"read"`
	Write int `json:"write"`
	Minor int `json:"minor"`
}

// String renders the version in RR.WW.mm form.
func (v SchemaVersion) String() string {
	return fmt.Sprintf("%02d.%02d.%02d", v.Read, v.Write, v.Minor)
}

// FindSchema returns the persisted version and serialized definition of a
// schema, or ok=false when no schema of that name has been imported yet.
func (r *Repository) FindSchema(ctx context.Context, name string) (SchemaVersion, string, bool, error) {
	var v SchemaVersion
	var definition string
	err := r.db.QueryRowContext(ctx, `
		SELECT read_version, write_version, minor_version, definition
		FROM schemas WHERE name = ?
	`, name).Scan(&v.Read, &v.Write, &v.Minor, &definition)
	if errors.Is(err, sql.ErrNoRows) {
		return SchemaVersion{}, "", false, nil
	}
	if err != nil {
		return SchemaVersion{}, "", false, fmt.Errorf("find schema %q: %w", name, err)
	}
	return v, definition, true, nil
}

// ImportSchema persists a schema definition at the given version, replacing
// any previous version of the same name.
func (r *Repository) ImportSchema(ctx context.Context, name string, v SchemaVersion, definition string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO schemas (name, read_version, write_version, minor_version, definition)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			read_version = excluded.read_version,
			write_version = excluded.write_version,
			minor_version = excluded.minor_version,
			definition = excluded.definition
	`, name, v.Read, v.Write, v.Minor, definition)
	if err != nil {
		return fmt.Errorf("import schema %q: %w", name, err)
	}
	return nil
}
