package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"

	"github.com/karsol/graft/internal/ir"
)

// JSONLoader reads a JSON document of the shape {"Sheet": [ {row}, ... ]}.
// Sheets named in RelationshipSheets surface as relationship entities; all
// others as plain entities.
type JSONLoader struct {
	PK                 PKConfig
	RelationshipSheets []string

	conn    Connection
	version string
	sheets  map[string][]map[string]any
}

var _ Loader = (*JSONLoader)(nil)

// Open reads and decodes the source document. Numbers decode as json.Number
// so that checksums are independent of float formatting.
func (l *JSONLoader) Open(conn Connection) error {
	if conn.Kind != "file" {
		return fmt.Errorf("json loader: unsupported connection kind %q", conn.Kind)
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

	dec := json.NewDecoder(f)
	dec.UseNumber()
	sheets := make(map[string][]map[string]any)
	if err := dec.Decode(&sheets); err != nil {
		return fmt.Errorf("parse %q: %w", conn.Filepath, err)
	}

	l.conn = conn
	l.version = version
	l.sheets = sheets
	return nil
}

// Close releases the decoded document.
func (l *JSONLoader) Close() error {
	l.sheets = nil
	return nil
}

// Entities returns the non-relationship sheets as IR entities, in sorted
// sheet order for determinism.
func (l *JSONLoader) Entities() ([]*ir.Entity, error) {
	return l.build(false)
}

// Relationships returns the sheets named in RelationshipSheets.
func (l *JSONLoader) Relationships() ([]*ir.Entity, error) {
	return l.build(true)
}

func (l *JSONLoader) build(relationships bool) ([]*ir.Entity, error) {
	if l.sheets == nil {
		return nil, fmt.Errorf("json loader: not open")
	}
	keys := make([]string, 0, len(l.sheets))
	for k := range l.sheets {
		if slices.Contains(l.RelationshipSheets, k) == relationships {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	var out []*ir.Entity
	for _, key := range keys {
		pk := l.PK.Resolve(key)
		instances := make([]*ir.Instance, 0, len(l.sheets[key]))
		for i, row := range l.sheets[key] {
			inst, err := ir.NewInstance(key, pk, row, l.version)
			if err != nil {
				return nil, fmt.Errorf("sheet %q row %d: %w", key, i, err)
			}
			instances = append(instances, inst)
		}
		out = append(out, ir.NewEntity(key, instances))
	}
	return out, nil
}

// PrimaryKey resolves the primary-key attribute for an entity.
func (l *JSONLoader) PrimaryKey(entityKey string) string { return l.PK.Resolve(entityKey) }

// Version returns the source file mtime token.
func (l *JSONLoader) Version() string { return l.version }
