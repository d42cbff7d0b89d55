// Package loader normalizes external data sources into the IR model.
//
// Each loader understands one source format. The engine only depends on the
// Loader contract; concrete readers are interchangeable, and ir.Compare backs
// cross-loader regression tests (the same logical source serialized as JSON
// and as a sqlite file must load into equal models).
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/karsol/graft/internal/ir"
)

// Connection describes how to reach an external source. Tagged union: exactly
// one kind is meaningful at a time.
type Connection struct {
	Kind     string `json:"kind" yaml:"kind"` // "file" | "api"
	Filepath string `json:"filepath,omitempty" yaml:"filepath,omitempty"`
	BaseURL  string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// Data renders the descriptor as an attribute map, the shape the engine
// persists (and change-detects) as the loader-config record.
func (c Connection) Data() map[string]any {
	data := map[string]any{"kind": c.Kind}
	switch c.Kind {
	case "file":
		data["filepath"] = c.Filepath
	case "api":
		data["base_url"] = c.BaseURL
	}
	return data
}

// Validate checks the descriptor shape.
func (c Connection) Validate() error {
	switch c.Kind {
	case "file":
		if c.Filepath == "" {
			return fmt.Errorf("file connection: filepath must not be empty")
		}
	case "api":
		if c.BaseURL == "" {
			return fmt.Errorf("api connection: base_url must not be empty")
		}
	default:
		return fmt.Errorf("unknown connection kind %q", c.Kind)
	}
	return nil
}

// Loader is the contract every source reader satisfies. Open must be called
// before any other method; Close releases the source. Entities and
// Relationships may each be called once per Open.
//
// Loader is a superset of ir.Source, so an opened loader feeds ir.Model.Load
// directly.
type Loader interface {
	Open(conn Connection) error
	Close() error
	Entities() ([]*ir.Entity, error)
	Relationships() ([]*ir.Entity, error)
	// PrimaryKey resolves the primary-key attribute for an entity: the
	// per-entity override when present, the global default otherwise.
	PrimaryKey(entityKey string) string
	// Version returns the opaque freshness token of the open connection,
	// typically the source file modification time.
	Version() string
}

// PKConfig resolves the primary-key attribute per entity, with a global
// default fallback.
type PKConfig struct {
	Default   string            `json:"default" yaml:"default"`
	Overrides map[string]string `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// Resolve returns the primary-key attribute for entityKey.
func (c PKConfig) Resolve(entityKey string) string {
	if pk, ok := c.Overrides[entityKey]; ok {
		return pk
	}
	return c.Default
}

// ForConnection constructs the loader matching a connection descriptor,
// unopened. File connections dispatch on extension; API connections are
// declared in the descriptor grammar but no reader ships for them yet.
func ForConnection(conn Connection, pk PKConfig, relationshipSheets []string) (Loader, error) {
	if err := conn.Validate(); err != nil {
		return nil, err
	}
	if conn.Kind != "file" {
		return nil, fmt.Errorf("no loader available for connection kind %q", conn.Kind)
	}
	switch ext := filepath.Ext(conn.Filepath); ext {
	case ".json":
		return &JSONLoader{PK: pk, RelationshipSheets: relationshipSheets}, nil
	case ".sqlite", ".db":
		return &SQLiteLoader{PK: pk, RelationshipTables: relationshipSheets}, nil
	case ".csv":
		return &CSVLoader{PK: pk}, nil
	default:
		return nil, fmt.Errorf("no loader for source file extension %q", ext)
	}
}

// fileVersion stats the source file and renders its mtime as the version
// token. A missing file is a fatal I/O error carrying the offending path.
func fileVersion(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("source file %q: %w", path, err)
	}
	return info.ModTime().UTC().Format(time.RFC3339Nano), nil
}
