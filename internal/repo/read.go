package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/karsol/graft/internal/locator"
)

// ErrAmbiguousLocator reports a locator matching more than one element.
// Recoverable: the caller skips the instance and continues the run.
var ErrAmbiguousLocator = errors.New("locator matches more than one element")

// ErrNoLocatorMatch reports a locator matching no element. Recoverable like
// ErrAmbiguousLocator.
var ErrNoLocatorMatch = errors.New("locator matches no element")

// FindElementByCode looks up an element by its identity code.
// Returns nil (not an error) when absent.
func (r *Repository) FindElementByCode(ctx context.Context, code Code) (*Element, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code_spec, code_scope, code_value, class,
		       COALESCE(model_id, 0), COALESCE(parent_id, 0), user_label, props
		FROM elements
		WHERE code_spec = ? AND code_scope = ? AND code_value = ?
	`, code.Spec, code.Scope, code.Value)

	el, err := scanElement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find element by code %q: %w", code.Value, err)
	}
	return el, nil
}

// FindElementByID looks up an element by row id. Returns nil when absent.
func (r *Repository) FindElementByID(ctx context.Context, id int64) (*Element, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, code_spec, code_scope, code_value, class,
		       COALESCE(model_id, 0), COALESCE(parent_id, 0), user_label, props
		FROM elements WHERE id = ?
	`, id)

	el, err := scanElement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find element %d: %w", id, err)
	}
	return el, nil
}

// FindElementByLocator runs a uniqueness-checked lookup for a parsed locator.
// Exactly one match returns its id; zero matches returns ErrNoLocatorMatch
// and more than one returns ErrAmbiguousLocator, both recoverable.
func (r *Repository) FindElementByLocator(ctx context.Context, loc locator.Locator) (int64, error) {
	query, params, err := locator.Compile(loc)
	if err != nil {
		return 0, fmt.Errorf("locator %q: %w", loc.String(), err)
	}

	rows, err := r.db.QueryContext(ctx, query, params...)
	if err != nil {
		return 0, fmt.Errorf("locator %q: %w", loc.String(), err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("locator %q: %w", loc.String(), err)
		}
		ids = append(ids, id)
		if len(ids) > 1 {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("locator %q: %w", loc.String(), err)
	}

	switch len(ids) {
	case 0:
		return 0, fmt.Errorf("locator %q: %w", loc.String(), ErrNoLocatorMatch)
	case 1:
		return ids[0], nil
	default:
		return 0, fmt.Errorf("locator %q: %w", loc.String(), ErrAmbiguousLocator)
	}
}

// FindModelForElement returns the model backing the given modeled element,
// or nil when none exists.
func (r *Repository) FindModelForElement(ctx context.Context, elementID int64) (*Model, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, modeled_element_id, class, is_definition, element_count
		FROM models WHERE modeled_element_id = ?
	`, elementID)

	var m Model
	err := row.Scan(&m.ID, &m.ModeledElementID, &m.Class, &m.IsDefinition, &m.ElementCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find model for element %d: %w", elementID, err)
	}
	return &m, nil
}

// FindAspect looks up a provenance record by its identity triple.
// Returns nil when absent.
func (r *Repository) FindAspect(ctx context.Context, scope, kind, identifier string) (*SourceAspect, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, element_id, scope, kind, identifier, version, checksum
		FROM source_aspects
		WHERE scope = ? AND kind = ? AND identifier = ?
	`, scope, kind, identifier)

	var a SourceAspect
	err := row.Scan(&a.ID, &a.ElementID, &a.Scope, &a.Kind, &a.Identifier, &a.Version, &a.Checksum)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find aspect (%s, %s): %w", kind, identifier, err)
	}
	return &a, nil
}

// ListDataAspects returns every provenance record except connection
// descriptors, in element-id order. Input to orphan detection.
func (r *Repository) ListDataAspects(ctx context.Context, scope string) ([]SourceAspect, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, element_id, scope, kind, identifier, version, checksum
		FROM source_aspects
		WHERE scope = ? AND kind != ?
		ORDER BY element_id, id
	`, scope, AspectKindConnection)
	if err != nil {
		return nil, fmt.Errorf("list aspects: %w", err)
	}
	defer rows.Close()

	var out []SourceAspect
	for rows.Next() {
		var a SourceAspect
		if err := rows.Scan(&a.ID, &a.ElementID, &a.Scope, &a.Kind, &a.Identifier, &a.Version, &a.Checksum); err != nil {
			return nil, fmt.Errorf("list aspects: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// IsDefinitionElement reports whether the element lives in a definition
// model. Definition orphans delete in the second phase, after plain records
// that may reference them.
func (r *Repository) IsDefinitionElement(ctx context.Context, elementID int64) (bool, error) {
	var isDef bool
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(m.is_definition, 0)
		FROM elements e LEFT JOIN models m ON m.id = e.model_id
		WHERE e.id = ?
	`, elementID).Scan(&isDef)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("classify element %d: %w", elementID, err)
	}
	return isDef, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElement(row rowScanner) (*Element, error) {
	var el Element
	var propsJSON string
	err := row.Scan(
		&el.ID,
		&el.Code.Spec, &el.Code.Scope, &el.Code.Value,
		&el.Class, &el.ModelID, &el.ParentID, &el.UserLabel, &propsJSON,
	)
	if err != nil {
		return nil, err
	}
	if propsJSON != "" {
		if err := json.Unmarshal([]byte(propsJSON), &el.Props); err != nil {
			return nil, fmt.Errorf("unmarshal props: %w", err)
		}
	}
	return &el, nil
}
