package connector

import (
	"context"

	"github.com/karsol/graft/internal/repo"
)

// ChangeState classifies one instance against the repository.
type ChangeState int

const (
	// ChangeNew: no target record existed for the identity code, or the
	// record carried no provenance for this source.
	ChangeNew ChangeState = iota
	// ChangeChanged: provenance existed but version+checksum differ.
	ChangeChanged
	// ChangeUnchanged: provenance matches; no write was issued.
	ChangeUnchanged
)

func (s ChangeState) String() string {
	switch s {
	case ChangeNew:
		return "new"
	case ChangeChanged:
		return "changed"
	case ChangeUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Provenance is the change-detection input for one instance.
type Provenance struct {
	Scope      string
	Kind       string
	Identifier string
	Version    string
	Checksum   string
}

// detectAndUpsert implements the change-detection and upsert protocol:
//
//  1. No target record under the identity code: insert it, attach a new
//     provenance aspect, state New.
//  2. A record exists but carries no provenance for (scope, kind,
//     identifier): re-adopt it (idempotent re-create of its content) and
//     attach provenance, state New.
//  3. Provenance exists: compare existing version+checksum concatenated
//     against the given pair. Equal means Unchanged and no write; different
//     means update the provenance fields and the record, state Changed.
//
// The concatenated comparison makes a change to either component, or both,
// register as Changed. This is the sole mechanism by which a re-run over
// unchanged data produces zero writes.
func (c *Connector) detectAndUpsert(ctx context.Context, el repo.Element, prov Provenance) (ChangeState, int64, error) {
	existing, err := c.repo.FindElementByCode(ctx, el.Code)
	if err != nil {
		return ChangeUnchanged, 0, err
	}

	if existing == nil {
		id, err := c.repo.InsertElement(ctx, el)
		if err != nil {
			return ChangeUnchanged, 0, err
		}
		if _, err := c.repo.InsertAspect(ctx, repo.SourceAspect{
			ElementID:  id,
			Scope:      prov.Scope,
			Kind:       prov.Kind,
			Identifier: prov.Identifier,
			Version:    prov.Version,
			Checksum:   prov.Checksum,
		}); err != nil {
			return ChangeUnchanged, 0, err
		}
		return ChangeNew, id, nil
	}

	aspect, err := c.repo.FindAspect(ctx, prov.Scope, prov.Kind, prov.Identifier)
	if err != nil {
		return ChangeUnchanged, 0, err
	}

	if aspect == nil {
		if err := c.repo.UpdateElement(ctx, existing.ID, mergeProps(existing.Props, el.Props), el.UserLabel); err != nil {
			return ChangeUnchanged, 0, err
		}
		if _, err := c.repo.InsertAspect(ctx, repo.SourceAspect{
			ElementID:  existing.ID,
			Scope:      prov.Scope,
			Kind:       prov.Kind,
			Identifier: prov.Identifier,
			Version:    prov.Version,
			Checksum:   prov.Checksum,
		}); err != nil {
			return ChangeUnchanged, 0, err
		}
		return ChangeNew, existing.ID, nil
	}

	if aspect.Version+aspect.Checksum == prov.Version+prov.Checksum {
		return ChangeUnchanged, existing.ID, nil
	}

	if err := c.repo.UpdateAspect(ctx, aspect.ID, prov.Version, prov.Checksum); err != nil {
		return ChangeUnchanged, 0, err
	}
	if err := c.repo.UpdateElement(ctx, existing.ID, mergeProps(existing.Props, el.Props), el.UserLabel); err != nil {
		return ChangeUnchanged, 0, err
	}
	return ChangeChanged, existing.ID, nil
}

// mergeProps overlays the mapped props onto the stored ones. Stored keys the
// mapping did not produce survive an update; reference properties set during
// the related-element phase live outside the mapped set and must not be
// erased when the source row changes.
func mergeProps(stored, mapped map[string]any) map[string]any {
	if len(stored) == 0 {
		return mapped
	}
	merged := make(map[string]any, len(stored)+len(mapped))
	for k, v := range stored {
		merged[k] = v
	}
	for k, v := range mapped {
		merged[k] = v
	}
	return merged
}
