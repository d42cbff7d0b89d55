package node

import (
	"github.com/karsol/graft/internal/dmo"
	"github.com/karsol/graft/internal/loader"
)

// Tree owns every node of one integration, keyed uniquely across all kinds.
// It also accumulates the embedded target-class definitions declared inline
// by any DMO; that set feeds the dynamic schema synchronizer.
type Tree struct {
	nodes map[string]Node
	order []Node

	pendingClasses    []dmo.ClassProps
	pendingRelClasses []dmo.RelClassProps
	classSeen         map[string]bool
}

// NewTree returns an empty tree.
func NewTree() *Tree {
	return &Tree{
		nodes:     make(map[string]Node),
		classSeen: make(map[string]bool),
	}
}

// insert registers a node, rejecting duplicate keys, and accumulates any
// embedded class definition the node's DMO carries. Single dispatch point
// for all kinds.
func (t *Tree) insert(n Node) error {
	key := n.Key()
	if key == "" {
		return constructionErr("", "%s node: empty key", n.Kind())
	}
	if _, exists := t.nodes[key]; exists {
		return constructionErr(key, "duplicate node key")
	}

	switch v := n.(type) {
	case *SubjectNode, *ModelNode:
		// No DMO to harvest.
	case *LoaderNode:
		for _, other := range t.order {
			if l, ok := other.(*LoaderNode); ok && l.Subject == v.Subject {
				return constructionErr(key, "subject %q already has a loader node %q", v.Subject.Key(), l.Key())
			}
		}
	case *ElementNode:
		t.addPendingClass(v.DMO.Class)
	case *RelationshipNode:
		t.addPendingClass(v.DMO.Class)
	case *RelatedElementNode:
		t.addPendingClass(v.DMO.Class)
	}

	t.nodes[key] = n
	t.order = append(t.order, n)
	return nil
}

func (t *Tree) addPendingClass(ref dmo.ClassRef) {
	if !ref.IsDynamic() || t.classSeen[ref.Name] {
		return
	}
	t.classSeen[ref.Name] = true
	if ref.Props != nil {
		t.pendingClasses = append(t.pendingClasses, *ref.Props)
	}
	if ref.RelProps != nil {
		t.pendingRelClasses = append(t.pendingRelClasses, *ref.RelProps)
	}
}

// AddSubject creates the root container for one integration scope.
func (t *Tree) AddSubject(key string) (*SubjectNode, error) {
	n := &SubjectNode{key: key}
	if err := t.insert(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddLoader creates the loader-config node of a subject. A subject can have
// exactly one.
func (t *Tree) AddLoader(key string, subject *SubjectNode, conn loader.Connection) (*LoaderNode, error) {
	if subject == nil {
		return nil, constructionErr(key, "loader node requires a subject")
	}
	if err := conn.Validate(); err != nil {
		return nil, constructionErr(key, "invalid connection: %v", err)
	}
	n := &LoaderNode{key: key, Subject: subject, Connection: conn}
	if err := t.insert(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddModel creates a group node under a subject.
func (t *Tree) AddModel(key string, subject *SubjectNode, partitionClass, modelClass string, isDefinition bool) (*ModelNode, error) {
	if subject == nil {
		return nil, constructionErr(key, "model node requires a subject")
	}
	n := &ModelNode{
		key:            key,
		Subject:        subject,
		PartitionClass: partitionClass,
		ModelClass:     modelClass,
		IsDefinition:   isDefinition,
	}
	if err := t.insert(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddElement creates a model-owned element node. The companion constructor
// AddChildElement covers the parent-owned shape; between them an element
// node always has exactly one owner.
func (t *Tree) AddElement(key string, model *ModelNode, d dmo.ElementDMO) (*ElementNode, error) {
	if model == nil {
		return nil, constructionErr(key, "element node requires a model")
	}
	if err := dmo.ValidateElementDMO(d); err != nil {
		return nil, constructionErr(key, "%v", err)
	}
	n := &ElementNode{key: key, Model: model, DMO: d}
	if err := t.insert(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddChildElement creates a parent-owned element node.
func (t *Tree) AddChildElement(key string, parent *ElementNode, d dmo.ElementDMO) (*ElementNode, error) {
	if parent == nil {
		return nil, constructionErr(key, "child element node requires a parent element")
	}
	if err := dmo.ValidateElementDMO(d); err != nil {
		return nil, constructionErr(key, "%v", err)
	}
	n := &ElementNode{key: key, Parent: parent, DMO: d}
	if err := t.insert(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddRelationship creates a link node between two element nodes.
func (t *Tree) AddRelationship(key string, source, target *ElementNode, d dmo.RelationshipDMO) (*RelationshipNode, error) {
	if source == nil || target == nil {
		return nil, constructionErr(key, "relationship node requires source and target element nodes")
	}
	if err := dmo.ValidateRelationshipDMO(d); err != nil {
		return nil, constructionErr(key, "%v", err)
	}
	n := &RelationshipNode{key: key, Source: source, Target: target, DMO: d}
	if err := t.insert(n); err != nil {
		return nil, err
	}
	return n, nil
}

// AddRelatedElement creates a foreign-key node between two element nodes.
func (t *Tree) AddRelatedElement(key string, source, target *ElementNode, d dmo.RelatedElementDMO) (*RelatedElementNode, error) {
	if source == nil || target == nil {
		return nil, constructionErr(key, "related-element node requires source and target element nodes")
	}
	if err := dmo.ValidateRelatedElementDMO(d); err != nil {
		return nil, constructionErr(key, "%v", err)
	}
	n := &RelatedElementNode{key: key, Source: source, Target: target, DMO: d}
	if err := t.insert(n); err != nil {
		return nil, err
	}
	return n, nil
}

// Find returns the node with the given key, or nil.
func (t *Tree) Find(key string) Node { return t.nodes[key] }

// Len returns the number of nodes.
func (t *Tree) Len() int { return len(t.nodes) }

// Subjects returns the subject nodes in insertion order.
func (t *Tree) Subjects() []*SubjectNode {
	var out []*SubjectNode
	for _, n := range t.order {
		if s, ok := n.(*SubjectNode); ok {
			out = append(out, s)
		}
	}
	return out
}

// LoaderFor returns the loader node of a subject, or nil.
func (t *Tree) LoaderFor(subject *SubjectNode) *LoaderNode {
	for _, n := range t.order {
		if l, ok := n.(*LoaderNode); ok && l.Subject == subject {
			return l
		}
	}
	return nil
}

// PendingClasses returns the accumulated embedded entity-class definitions.
func (t *Tree) PendingClasses() []dmo.ClassProps { return t.pendingClasses }

// PendingRelClasses returns the accumulated embedded relationship-class
// definitions.
func (t *Tree) PendingRelClasses() []dmo.RelClassProps { return t.pendingRelClasses }
