package connector

import (
	"context"
)

// syncOrphans deletes target records whose source rows disappeared: every
// provenance record in scope (connection descriptors excluded) whose element
// was not touched this run marks an orphan.
//
// Deletion is two-phase: plain records first, then records living in
// definition models, since the former may still reference the latter. With
// deletion disabled by configuration, orphans survive and a warning is
// logged per element.
func (c *Connector) syncOrphans(ctx context.Context) error {
	if err := c.enterChannel(ctx, c.scope); err != nil {
		return err
	}

	aspects, err := c.repo.ListDataAspects(ctx, c.scope)
	if err != nil {
		return c.fail(ErrCodeRepository, err)
	}

	orphaned := make(map[int64]bool)
	var plain, definition []int64
	for _, a := range aspects {
		if c.seen[a.ElementID] || orphaned[a.ElementID] {
			continue
		}
		orphaned[a.ElementID] = true

		if !c.cfg.DeleteOrphans {
			c.summary.OrphansRetained++
			c.log.Warn("orphaned element retained, deletion disabled",
				"element_id", a.ElementID, "kind", a.Kind, "identifier", a.Identifier)
			continue
		}

		isDef, err := c.repo.IsDefinitionElement(ctx, a.ElementID)
		if err != nil {
			return c.fail(ErrCodeRepository, err)
		}
		if isDef {
			definition = append(definition, a.ElementID)
		} else {
			plain = append(plain, a.ElementID)
		}
	}

	for _, id := range append(plain, definition...) {
		if err := c.repo.DeleteElement(ctx, id); err != nil {
			return c.fail(ErrCodeRepository, err)
		}
		c.summary.OrphansDeleted++
		c.log.Info("orphaned element deleted", "element_id", id)
	}

	return c.persistPhase(ctx, "orphan sync")
}
