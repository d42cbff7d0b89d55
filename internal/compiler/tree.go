package compiler

import (
	"fmt"

	"github.com/karsol/graft/internal/dmo"
	"github.com/karsol/graft/internal/node"
)

// BuildTree materializes the compiled mapping into a node tree. Construction
// errors (duplicate keys, unresolved owner references, invalid DMOs) surface
// here, before any I/O.
func (m *Mapping) BuildTree() (*node.Tree, error) {
	tree := node.NewTree()

	subject, err := tree.AddSubject(m.Subject)
	if err != nil {
		return nil, err
	}
	if _, err := tree.AddLoader(m.Subject+"-loader", subject, m.Connection); err != nil {
		return nil, err
	}

	models := make(map[string]*node.ModelNode, len(m.Models))
	for _, def := range m.Models {
		mn, err := tree.AddModel(def.Key, subject, def.PartitionClass, def.ModelClass, def.IsDefinition)
		if err != nil {
			return nil, err
		}
		models[def.Key] = mn
	}

	elements := make(map[string]*node.ElementNode, len(m.Elements))
	for _, def := range m.Elements {
		d := dmo.ElementDMO{IREntity: def.IREntity, Class: def.Class}

		var en *node.ElementNode
		switch {
		case def.Model != "" && def.Parent != "":
			return nil, fmt.Errorf("element %q: model and parent are mutually exclusive", def.Key)
		case def.Model != "":
			owner, ok := models[def.Model]
			if !ok {
				return nil, fmt.Errorf("element %q: unknown model %q", def.Key, def.Model)
			}
			en, err = tree.AddElement(def.Key, owner, d)
		case def.Parent != "":
			owner, ok := elements[def.Parent]
			if !ok {
				return nil, fmt.Errorf("element %q: unknown parent element %q (parents must be declared first)", def.Key, def.Parent)
			}
			en, err = tree.AddChildElement(def.Key, owner, d)
		default:
			return nil, fmt.Errorf("element %q: exactly one of model or parent is required", def.Key)
		}
		if err != nil {
			return nil, err
		}
		elements[def.Key] = en
	}

	for _, def := range m.Relationships {
		source, target, err := resolveEnds(elements, def.Key, def.Source, def.Target)
		if err != nil {
			return nil, err
		}
		d := dmo.RelationshipDMO{IREntity: def.IREntity, Class: def.Class, From: def.From, To: def.To}
		if _, err := tree.AddRelationship(def.Key, source, target, d); err != nil {
			return nil, err
		}
	}

	for _, def := range m.RelatedElements {
		source, target, err := resolveEnds(elements, def.Key, def.Source, def.Target)
		if err != nil {
			return nil, err
		}
		d := dmo.RelatedElementDMO{
			IREntity: def.IREntity, Class: def.Class,
			From: def.From, To: def.To,
			ReferenceProperty: def.ReferenceProperty,
		}
		if _, err := tree.AddRelatedElement(def.Key, source, target, d); err != nil {
			return nil, err
		}
	}

	return tree, nil
}

func resolveEnds(elements map[string]*node.ElementNode, key, source, target string) (*node.ElementNode, *node.ElementNode, error) {
	s, ok := elements[source]
	if !ok {
		return nil, nil, fmt.Errorf("node %q: unknown source element %q", key, source)
	}
	t, ok := elements[target]
	if !ok {
		return nil, nil, fmt.Errorf("node %q: unknown target element %q", key, target)
	}
	return s, t, nil
}
