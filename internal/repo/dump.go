package repo

import (
	"context"
	"fmt"
)

// Dump is a full, deterministic snapshot of the synchronized graph, keyed by
// codes rather than row ids so that two repositories built by equivalent runs
// compare equal. Used by the scenario harness for golden comparison.
type Dump struct {
	Schemas       []DumpSchema       `json:"schemas,omitempty"`
	Elements      []DumpElement      `json:"elements,omitempty"`
	Relationships []DumpRelationship `json:"relationships,omitempty"`
}

// DumpSchema is one schema row of a snapshot.
type DumpSchema struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// DumpElement is one element of a snapshot, with its provenance inlined.
type DumpElement struct {
	Code      Code           `json:"code"`
	Class     string         `json:"class"`
	UserLabel string         `json:"user_label,omitempty"`
	Props     map[string]any `json:"props,omitempty"`
	Aspects   []DumpAspect   `json:"aspects,omitempty"`
}

// DumpAspect is one provenance record of a snapshot.
type DumpAspect struct {
	Kind       string `json:"kind"`
	Identifier string `json:"identifier"`
	Version    string `json:"version"`
	Checksum   string `json:"checksum"`
}

// DumpRelationship is one relationship of a snapshot, endpoint codes instead
// of row ids.
type DumpRelationship struct {
	Class  string `json:"class"`
	Source Code   `json:"source"`
	Target Code   `json:"target"`
}

// Snapshot reads the whole repository into a Dump, ordered by code for
// deterministic serialization.
func (r *Repository) Snapshot(ctx context.Context) (*Dump, error) {
	var d Dump

	schemaRows, err := r.db.QueryContext(ctx,
		`SELECT name, read_version, write_version, minor_version FROM schemas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("snapshot schemas: %w", err)
	}
	defer schemaRows.Close()
	for schemaRows.Next() {
		var name string
		var v SchemaVersion
		if err := schemaRows.Scan(&name, &v.Read, &v.Write, &v.Minor); err != nil {
			return nil, fmt.Errorf("snapshot schemas: %w", err)
		}
		d.Schemas = append(d.Schemas, DumpSchema{Name: name, Version: v.String()})
	}
	if err := schemaRows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot schemas: %w", err)
	}

	elemRows, err := r.db.QueryContext(ctx, `
		SELECT id, code_spec, code_scope, code_value, class,
		       COALESCE(model_id, 0), COALESCE(parent_id, 0), user_label, props
		FROM elements
		ORDER BY code_spec, code_scope, code_value
	`)
	if err != nil {
		return nil, fmt.Errorf("snapshot elements: %w", err)
	}
	defer elemRows.Close()

	codeByID := make(map[int64]Code)
	var elementIDs []int64
	for elemRows.Next() {
		el, err := scanElement(elemRows)
		if err != nil {
			return nil, fmt.Errorf("snapshot elements: %w", err)
		}
		codeByID[el.ID] = el.Code
		elementIDs = append(elementIDs, el.ID)
		d.Elements = append(d.Elements, DumpElement{
			Code:      el.Code,
			Class:     el.Class,
			UserLabel: el.UserLabel,
			Props:     el.Props,
		})
	}
	if err := elemRows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot elements: %w", err)
	}

	for i, id := range elementIDs {
		aspects, err := r.aspectsForElement(ctx, id)
		if err != nil {
			return nil, err
		}
		d.Elements[i].Aspects = aspects
	}

	relRows, err := r.db.QueryContext(ctx,
		`SELECT class, source_id, target_id FROM relationships ORDER BY class, source_id, target_id`)
	if err != nil {
		return nil, fmt.Errorf("snapshot relationships: %w", err)
	}
	defer relRows.Close()
	for relRows.Next() {
		var class string
		var sourceID, targetID int64
		if err := relRows.Scan(&class, &sourceID, &targetID); err != nil {
			return nil, fmt.Errorf("snapshot relationships: %w", err)
		}
		d.Relationships = append(d.Relationships, DumpRelationship{
			Class:  class,
			Source: codeByID[sourceID],
			Target: codeByID[targetID],
		})
	}
	if err := relRows.Err(); err != nil {
		return nil, fmt.Errorf("snapshot relationships: %w", err)
	}

	return &d, nil
}

func (r *Repository) aspectsForElement(ctx context.Context, elementID int64) ([]DumpAspect, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, identifier, version, checksum
		FROM source_aspects WHERE element_id = ?
		ORDER BY kind, identifier
	`, elementID)
	if err != nil {
		return nil, fmt.Errorf("snapshot aspects for element %d: %w", elementID, err)
	}
	defer rows.Close()

	var out []DumpAspect
	for rows.Next() {
		var a DumpAspect
		if err := rows.Scan(&a.Kind, &a.Identifier, &a.Version, &a.Checksum); err != nil {
			return nil, fmt.Errorf("snapshot aspects for element %d: %w", elementID, err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
