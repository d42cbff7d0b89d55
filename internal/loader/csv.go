package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/karsol/graft/internal/ir"
)

// CSVLoader reads one CSV file as one entity. The entity key is the file base
// name without extension; the first record is the header row.
type CSVLoader struct {
	PK PKConfig

	entityKey string
	version   string
	rows      []map[string]any
}

var _ Loader = (*CSVLoader)(nil)

// Open reads and parses the source file.
func (l *CSVLoader) Open(conn Connection) error {
	if conn.Kind != "file" {
		return fmt.Errorf("csv loader: unsupported connection kind %q", conn.Kind)
	}
	version, err := fileVersion(conn.Filepath)
	if err != nil {
		return err
	}
	f, err := os.Open(conn.Filepath)
	if err != nil {
		return fmt.Errorf("source file %q: %w", conn.Filepath, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("parse %q: %w", conn.Filepath, err)
	}

	var rows []map[string]any
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parse %q: %w", conn.Filepath, err)
		}
		row := make(map[string]any, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	base := filepath.Base(conn.Filepath)
	l.entityKey = strings.TrimSuffix(base, filepath.Ext(base))
	l.version = version
	l.rows = rows
	return nil
}

// Close releases the parsed rows.
func (l *CSVLoader) Close() error {
	l.rows = nil
	return nil
}

// Entities returns the single entity parsed from the file.
func (l *CSVLoader) Entities() ([]*ir.Entity, error) {
	if l.entityKey == "" {
		return nil, fmt.Errorf("csv loader: not open")
	}
	pk := l.PK.Resolve(l.entityKey)
	instances := make([]*ir.Instance, 0, len(l.rows))
	for i, row := range l.rows {
		inst, err := ir.NewInstance(l.entityKey, pk, row, l.version)
		if err != nil {
			return nil, fmt.Errorf("file %q row %d: %w", l.entityKey, i, err)
		}
		instances = append(instances, inst)
	}
	return []*ir.Entity{ir.NewEntity(l.entityKey, instances)}, nil
}

// Relationships always returns nothing: a flat CSV file carries no join
// sheets.
func (l *CSVLoader) Relationships() ([]*ir.Entity, error) { return nil, nil }

// PrimaryKey resolves the primary-key attribute for an entity.
func (l *CSVLoader) PrimaryKey(entityKey string) string { return l.PK.Resolve(entityKey) }

// Version returns the source file mtime token.
func (l *CSVLoader) Version() string { return l.version }
