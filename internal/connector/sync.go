package connector

import (
	"context"
	"fmt"

	"github.com/karsol/graft/internal/dmo"
	"github.com/karsol/graft/internal/ir"
	"github.com/karsol/graft/internal/locator"
	"github.com/karsol/graft/internal/node"
	"github.com/karsol/graft/internal/repo"
	"github.com/karsol/graft/internal/schema"
)

// Internal framework classes for records not driven by a DMO.
const (
	classSubject      = "graft:Subject"
	classLoaderConfig = "graft:ExternalSource"
)

// rootScope is the code scope of subject elements themselves.
const rootScope = "root"

// syncLoader persists the connection descriptor and decides the job-level
// fast path: an unchanged descriptor (same version and checksum) means the
// source did not change and the rest of the run is skipped.
func (c *Connector) syncLoader(ctx context.Context, subject *node.SubjectNode) error {
	if err := c.enterChannel(ctx, ""); err != nil {
		return err
	}

	if err := c.ensureSubject(ctx, subject); err != nil {
		return c.fail(ErrCodeRepository, err)
	}

	loaderNode := c.tree.LoaderFor(subject)
	if loaderNode == nil {
		return c.fail(ErrCodeLoader, fmt.Errorf("subject %q has no loader node", subject.Key()))
	}

	if err := c.ldr.Open(loaderNode.Connection); err != nil {
		return c.fail(ErrCodeLoader, err)
	}

	descriptor := loaderNode.Connection.Data()
	checksum, err := ir.ConnectionChecksum(descriptor)
	if err != nil {
		c.ldr.Close()
		return c.fail(ErrCodeLoader, err)
	}

	state, _, err := c.detectAndUpsert(ctx, repo.Element{
		Code:      repo.Code{Spec: repo.CodeSpecInternal, Scope: c.scope, Value: loaderNode.Key()},
		Class:     classLoaderConfig,
		ParentID:  c.subjectID,
		UserLabel: loaderNode.Key(),
		Props:     descriptor,
	}, Provenance{
		Scope:      c.scope,
		Kind:       repo.AspectKindConnection,
		Identifier: loaderNode.Key(),
		Version:    c.ldr.Version(),
		Checksum:   checksum,
	})
	if err != nil {
		c.ldr.Close()
		return c.fail(ErrCodeRepository, err)
	}

	if state == ChangeUnchanged {
		c.summary.FastPath = true
		c.ldr.Close()
	} else if err := c.model.Load(c.ldr); err != nil {
		return c.fail(ErrCodeLoader, err)
	}

	return c.persistPhase(ctx, "loader sync")
}

// ensureSubject creates the subject element on first contact and resolves
// the run's code scope from its id.
func (c *Connector) ensureSubject(ctx context.Context, subject *node.SubjectNode) error {
	code := repo.Code{Spec: repo.CodeSpecInternal, Scope: rootScope, Value: subject.Key()}
	existing, err := c.repo.FindElementByCode(ctx, code)
	if err != nil {
		return err
	}
	if existing != nil {
		c.subjectID = existing.ID
	} else {
		id, err := c.repo.InsertElement(ctx, repo.Element{
			Code:      code,
			Class:     classSubject,
			UserLabel: subject.Key(),
		})
		if err != nil {
			return err
		}
		c.subjectID = id
	}
	c.scope = scopeID(c.subjectID)
	return nil
}

// syncDomainSchemas makes sure every configured domain schema is present in
// the repository. Domain schemas are pre-built; only their presence is
// managed here, never their content.
func (c *Connector) syncDomainSchemas(ctx context.Context) error {
	if len(c.cfg.DomainSchemas) == 0 {
		return nil
	}
	if err := c.enterChannel(ctx, ""); err != nil {
		return err
	}
	for _, name := range c.cfg.DomainSchemas {
		_, _, exists, err := c.repo.FindSchema(ctx, name)
		if err != nil {
			return c.fail(ErrCodeSchema, err)
		}
		if exists {
			continue
		}
		v := repo.SchemaVersion{Read: 1, Write: 0, Minor: 0}
		def := fmt.Sprintf(`{"name":%q,"version":{"read":1,"write":0,"minor":0},"classes":[]}`, name)
		if err := c.repo.ImportSchema(ctx, name, v, def); err != nil {
			return c.fail(ErrCodeSchema, err)
		}
		c.log.Info("domain schema imported", "schema", name)
	}
	return c.persistPhase(ctx, "domain schema sync")
}

// syncDynamicSchema runs the schema-evolution protocol over the embedded
// class definitions accumulated by the tree.
func (c *Connector) syncDynamicSchema(ctx context.Context) error {
	if err := c.enterChannel(ctx, ""); err != nil {
		return err
	}

	synchronizer := &schema.Synchronizer{
		Repo:       c.repo,
		Registry:   c.registry,
		Name:       c.cfg.DynamicSchemaName,
		References: c.cfg.DomainSchemas,
	}
	state, err := synchronizer.Sync(ctx, c.tree.PendingClasses(), c.tree.PendingRelClasses())
	if err != nil {
		return c.fail(ErrCodeSchema, err)
	}
	c.summary.SchemaState = state
	c.log.Info("dynamic schema synchronized", "schema", c.cfg.DynamicSchemaName, "state", state.String())

	return c.persistPhase(ctx, "schema sync")
}

// syncData walks the node tree in execution order inside a channel rooted at
// the subject.
func (c *Connector) syncData(ctx context.Context, subject *node.SubjectNode) error {
	if err := c.enterChannel(ctx, c.scope); err != nil {
		return err
	}

	for _, n := range c.tree.ExecutionOrder(subject) {
		var err error
		switch v := n.(type) {
		case *node.LoaderNode:
			// Already synchronized in the LoaderSync phase.
		case *node.ModelNode:
			err = c.syncModel(ctx, v)
		case *node.ElementNode:
			err = c.syncElement(ctx, v)
		case *node.RelationshipNode:
			err = c.syncRelationship(ctx, v)
		case *node.RelatedElementNode:
			err = c.syncRelatedElement(ctx, v)
		}
		if err != nil {
			return c.fail(ErrCodeRepository, err)
		}
	}

	return c.persistPhase(ctx, "data sync")
}

// syncModel materializes a group: one backing partition element and one
// collection row. Idempotent; nothing here is DMO-driven or change-tracked.
func (c *Connector) syncModel(ctx context.Context, m *node.ModelNode) error {
	code := repo.Code{Spec: repo.CodeSpecInternal, Scope: c.scope, Value: m.Key()}
	existing, err := c.repo.FindElementByCode(ctx, code)
	if err != nil {
		return err
	}

	var elementID int64
	if existing != nil {
		elementID = existing.ID
		row, err := c.repo.FindModelForElement(ctx, elementID)
		if err != nil {
			return err
		}
		if row == nil {
			return fmt.Errorf("model node %q: backing element %d has no model row", m.Key(), elementID)
		}
		c.modelIDs[m.Key()] = row.ID
	} else {
		elementID, err = c.repo.InsertElement(ctx, repo.Element{
			Code:      code,
			Class:     m.PartitionClass,
			ParentID:  c.subjectID,
			UserLabel: m.Key(),
		})
		if err != nil {
			return err
		}
		modelID, err := c.repo.InsertModel(ctx, repo.Model{
			ModeledElementID: elementID,
			Class:            m.ModelClass,
			IsDefinition:     m.IsDefinition,
		})
		if err != nil {
			return err
		}
		c.modelIDs[m.Key()] = modelID
	}
	c.modelElems[m.Key()] = elementID
	return nil
}

// syncElement synchronizes every matching IR instance of an element node.
func (c *Connector) syncElement(ctx context.Context, e *node.ElementNode) error {
	instances, err := c.model.InstancesMatching(e.DMO.IREntity, e.DMO.DoSyncInstance)
	if err != nil {
		return err
	}

	owner := owningModel(e)
	modelID, ok := c.modelIDs[owner.Key()]
	if !ok {
		return fmt.Errorf("element node %q: owning model %q not synchronized", e.Key(), owner.Key())
	}

	for _, inst := range instances {
		props := make(map[string]any, len(inst.Data))
		for k, v := range inst.Data {
			props[k] = v
		}
		// Integrator transform runs last so its overrides win over the
		// framework defaults.
		if e.DMO.ModifyProps != nil {
			e.DMO.ModifyProps(props, inst)
		}

		state, id, err := c.detectAndUpsert(ctx, repo.Element{
			Code:      repo.Code{Spec: repo.CodeSpecInstance, Scope: c.scope, Value: inst.Key()},
			Class:     e.DMO.Class.Name,
			ModelID:   modelID,
			UserLabel: inst.Key(),
			Props:     props,
		}, Provenance{
			Scope:      c.scope,
			Kind:       inst.EntityKey,
			Identifier: inst.Key(),
			Version:    inst.Version,
			Checksum:   inst.Checksum(),
		})
		if err != nil {
			return err
		}

		switch state {
		case ChangeNew:
			c.summary.ElementsNew++
		case ChangeChanged:
			c.summary.ElementsChanged++
		case ChangeUnchanged:
			c.summary.ElementsUnchanged++
		}
		c.elementIDs[inst.Key()] = id
		c.seen[id] = true
		c.log.Debug("element synchronized", "node", e.Key(), "instance", inst.Key(), "state", state.String())
	}
	return nil
}

// syncRelationship inserts link-table relationship instances. Relationships
// are never updated: an existing (class, source, target) triple is skipped.
// Endpoint resolution failures are recoverable and skip the single instance.
func (c *Connector) syncRelationship(ctx context.Context, rn *node.RelationshipNode) error {
	instances, err := c.model.InstancesMatching(rn.DMO.IREntity, rn.DMO.DoSyncInstance)
	if err != nil {
		return err
	}

	for _, inst := range instances {
		sourceID, resolveErr := c.resolveEndpoint(ctx, rn.Key(), rn.DMO.From, rn.Source, inst)
		if resolveErr == nil {
			var targetID int64
			targetID, resolveErr = c.resolveEndpoint(ctx, rn.Key(), rn.DMO.To, rn.Target, inst)
			if resolveErr == nil {
				cacheKey := fmt.Sprintf("%s|%d|%d", rn.DMO.Class.Name, sourceID, targetID)
				if _, dup := c.relIDs[cacheKey]; dup {
					c.summary.RelationshipsSkipped++
					continue
				}
				id, inserted, err := c.repo.InsertRelationship(ctx, repo.Relationship{
					Class:    rn.DMO.Class.Name,
					SourceID: sourceID,
					TargetID: targetID,
				})
				if err != nil {
					return err
				}
				c.relIDs[cacheKey] = id
				if inserted {
					c.summary.RelationshipsInserted++
				} else {
					c.summary.RelationshipsSkipped++
				}
				continue
			}
		}
		// Recoverable: one bad row never aborts the run. Resolution is
		// retried from scratch on the next run.
		c.summary.ResolutionSkips++
		c.log.Warn("relationship instance skipped", "node", rn.Key(), "instance", inst.Key(), "error", resolveErr)
	}
	return nil
}

// syncRelatedElement sets a reference property on the source-side record
// instead of inserting a relationship row. The update is skipped when the
// property already holds the resolved id, keeping re-runs write-free.
func (c *Connector) syncRelatedElement(ctx context.Context, rn *node.RelatedElementNode) error {
	instances, err := c.model.InstancesMatching(rn.DMO.IREntity, rn.DMO.DoSyncInstance)
	if err != nil {
		return err
	}

	for _, inst := range instances {
		sourceID, resolveErr := c.resolveEndpoint(ctx, rn.Key(), rn.DMO.From, rn.Source, inst)
		var targetID int64
		if resolveErr == nil {
			targetID, resolveErr = c.resolveEndpoint(ctx, rn.Key(), rn.DMO.To, rn.Target, inst)
		}
		if resolveErr != nil {
			c.summary.ResolutionSkips++
			c.log.Warn("related-element instance skipped", "node", rn.Key(), "instance", inst.Key(), "error", resolveErr)
			continue
		}

		current, err := c.repo.FindElementByID(ctx, sourceID)
		if err != nil {
			return err
		}
		if current != nil && referenceEquals(current.Props[rn.DMO.ReferenceProperty], targetID) {
			continue
		}
		if err := c.repo.UpdateElementReference(ctx, sourceID, rn.DMO.ReferenceProperty, targetID); err != nil {
			return err
		}
		c.summary.ReferencesSet++
	}
	return nil
}

// resolveEndpoint finds the element id of one relationship side. IR-backed
// sides build the counterpart's identity code from the side attribute;
// target-resident sides parse the attribute as a structured locator and run
// a uniqueness-checked lookup.
func (c *Connector) resolveEndpoint(ctx context.Context, nodeKey string, ep dmo.Endpoint, counterpart *node.ElementNode, inst *ir.Instance) (int64, error) {
	value, ok := inst.Get(ep.Attr)
	if !ok {
		return 0, &ResolveError{NodeKey: nodeKey, InstanceKey: inst.Key(), Attr: ep.Attr,
			Err: fmt.Errorf("attribute not present")}
	}

	switch ep.Kind {
	case dmo.EndpointIR:
		codeValue := counterpart.DMO.IREntity + "-" + value
		if id, cached := c.elementIDs[codeValue]; cached {
			return id, nil
		}
		el, err := c.repo.FindElementByCode(ctx, repo.Code{
			Spec: repo.CodeSpecInstance, Scope: c.scope, Value: codeValue,
		})
		if err != nil {
			return 0, err
		}
		if el == nil {
			return 0, &ResolveError{NodeKey: nodeKey, InstanceKey: inst.Key(), Attr: ep.Attr,
				Err: fmt.Errorf("no element with code %q", codeValue)}
		}
		return el.ID, nil

	case dmo.EndpointExisting:
		loc, err := locator.Parse(value)
		if err != nil {
			return 0, &ResolveError{NodeKey: nodeKey, InstanceKey: inst.Key(), Attr: ep.Attr, Err: err}
		}
		id, err := c.repo.FindElementByLocator(ctx, loc)
		if err != nil {
			return 0, &ResolveError{NodeKey: nodeKey, InstanceKey: inst.Key(), Attr: ep.Attr, Err: err}
		}
		return id, nil

	default:
		return 0, &ResolveError{NodeKey: nodeKey, InstanceKey: inst.Key(), Attr: ep.Attr,
			Err: fmt.Errorf("unknown endpoint kind %d", ep.Kind)}
	}
}

func owningModel(e *node.ElementNode) *node.ModelNode {
	cur := e
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur.Model
}

func referenceEquals(current any, targetID int64) bool {
	switch v := current.(type) {
	case int64:
		return v == targetID
	case float64:
		return int64(v) == targetID
	default:
		return false
	}
}
