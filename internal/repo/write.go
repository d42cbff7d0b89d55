package repo

import (
	"context"
	"encoding/json"
	"fmt"
)

// InsertElement inserts a graph record and returns its id. The code triple is
// unique; inserting a second element with the same code is a caller bug and
// surfaces as a constraint error.
func (r *Repository) InsertElement(ctx context.Context, el Element) (int64, error) {
	propsJSON, err := marshalProps(el.Props)
	if err != nil {
		return 0, fmt.Errorf("insert element %q: %w", el.Code.Value, err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO elements
		(code_spec, code_scope, code_value, class, model_id, parent_id, user_label, props)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		el.Code.Spec,
		el.Code.Scope,
		el.Code.Value,
		el.Class,
		nullableID(el.ModelID),
		nullableID(el.ParentID),
		el.UserLabel,
		propsJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("insert element %q: %w", el.Code.Value, err)
	}
	return res.LastInsertId()
}

// UpdateElement replaces the props and user label of an existing element.
func (r *Repository) UpdateElement(ctx context.Context, id int64, props map[string]any, userLabel string) error {
	propsJSON, err := marshalProps(props)
	if err != nil {
		return fmt.Errorf("update element %d: %w", id, err)
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE elements SET props = ?, user_label = ? WHERE id = ?`,
		propsJSON, userLabel, id)
	if err != nil {
		return fmt.Errorf("update element %d: %w", id, err)
	}
	return nil
}

// UpdateElementReference sets a single reference property on an element,
// leaving every other property untouched. Used by foreign-key mappings.
func (r *Repository) UpdateElementReference(ctx context.Context, id int64, property string, targetID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE elements SET props = json_set(props, '$.' || ?, ?) WHERE id = ?`,
		property, targetID, id)
	if err != nil {
		return fmt.Errorf("update element %d reference %q: %w", id, property, err)
	}
	return nil
}

// DeleteElement removes an element. Aspects and relationships referencing it
// cascade.
func (r *Repository) DeleteElement(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM elements WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete element %d: %w", id, err)
	}
	return nil
}

// InsertModel creates the collection backing a group of elements.
func (r *Repository) InsertModel(ctx context.Context, m Model) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO models (modeled_element_id, class, is_definition)
		VALUES (?, ?, ?)
	`, m.ModeledElementID, m.Class, m.IsDefinition)
	if err != nil {
		return 0, fmt.Errorf("insert model for element %d: %w", m.ModeledElementID, err)
	}
	return res.LastInsertId()
}

// InsertRelationship inserts a link-table entry, idempotently. Returns the
// relationship id and whether a new row was inserted: re-inserting the same
// (class, source, target) triple never produces a second row.
func (r *Repository) InsertRelationship(ctx context.Context, rel Relationship) (int64, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO relationships (class, source_id, target_id)
		VALUES (?, ?, ?)
		ON CONFLICT(class, source_id, target_id) DO NOTHING
	`, rel.Class, rel.SourceID, rel.TargetID)
	if err != nil {
		return 0, false, fmt.Errorf("insert relationship %s(%d->%d): %w", rel.Class, rel.SourceID, rel.TargetID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("insert relationship: %w", err)
	}
	if affected > 0 {
		id, err := res.LastInsertId()
		return id, true, err
	}

	var id int64
	err = r.db.QueryRowContext(ctx,
		`SELECT id FROM relationships WHERE class = ? AND source_id = ? AND target_id = ?`,
		rel.Class, rel.SourceID, rel.TargetID).Scan(&id)
	if err != nil {
		return 0, false, fmt.Errorf("lookup relationship after conflict: %w", err)
	}
	return id, false, nil
}

// InsertAspect attaches a provenance side-record to an element.
func (r *Repository) InsertAspect(ctx context.Context, a SourceAspect) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO source_aspects (element_id, scope, kind, identifier, version, checksum)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ElementID, a.Scope, a.Kind, a.Identifier, a.Version, a.Checksum)
	if err != nil {
		return 0, fmt.Errorf("insert aspect (%s, %s): %w", a.Kind, a.Identifier, err)
	}
	return res.LastInsertId()
}

// UpdateAspect replaces the version and checksum of an existing provenance
// record.
func (r *Repository) UpdateAspect(ctx context.Context, id int64, version, checksum string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE source_aspects SET version = ?, checksum = ? WHERE id = ?`,
		version, checksum, id)
	if err != nil {
		return fmt.Errorf("update aspect %d: %w", id, err)
	}
	return nil
}

// RecomputeExtents refreshes the per-model element counts. Runs as the final
// phase of a job.
func (r *Repository) RecomputeExtents(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE models SET element_count =
			(SELECT COUNT(*) FROM elements WHERE elements.model_id = models.id)
	`)
	if err != nil {
		return fmt.Errorf("recompute extents: %w", err)
	}
	return nil
}

func marshalProps(props map[string]any) (string, error) {
	if props == nil {
		return "{}", nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("marshal props: %w", err)
	}
	return string(b), nil
}

// nullableID maps the zero id to NULL so foreign keys stay honest.
func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
