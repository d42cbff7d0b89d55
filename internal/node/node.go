// Package node defines the synchronization units and the tree that owns them.
//
// The tree is built once, at integrator-code load time, and never mutated
// during a run. Node kinds form a closed set; traversal and insertion
// dispatch on Kind in a single switch each, never on scattered type
// assertions.
package node

import (
	"github.com/karsol/graft/internal/dmo"
	"github.com/karsol/graft/internal/loader"
)

// Kind enumerates the closed set of node variants.
type Kind int

const (
	// KindSubject is the root-of-hierarchy container for one integration.
	KindSubject Kind = iota
	// KindModel is a sub-container backed by exactly one target record and
	// one target collection. Never driven by a DMO.
	KindModel
	// KindLoader persists the source-connection descriptor as a discoverable
	// target record. Exactly one per subject.
	KindLoader
	// KindElement produces 0..N target records from one element DMO.
	KindElement
	// KindRelationship produces 0..N link-table relationship instances from
	// one relationship DMO.
	KindRelationship
	// KindRelatedElement sets a single reference property on the target
	// record from one related-element DMO.
	KindRelatedElement
)

func (k Kind) String() string {
	switch k {
	case KindSubject:
		return "subject"
	case KindModel:
		return "model"
	case KindLoader:
		return "loader"
	case KindElement:
		return "element"
	case KindRelationship:
		return "relationship"
	case KindRelatedElement:
		return "related-element"
	default:
		return "unknown"
	}
}

// Node is a unit of synchronization. Sealed: only the types in this package
// implement it.
type Node interface {
	Key() string
	Kind() Kind
	node()
}

// SubjectNode is the root container of one integration scope.
type SubjectNode struct {
	key string
}

func (n *SubjectNode) Key() string { return n.key }
func (n *SubjectNode) Kind() Kind  { return KindSubject }
func (n *SubjectNode) node()       {}

// LoaderNode persists the connection descriptor; its change state gates the
// whole run for its subject.
type LoaderNode struct {
	key        string
	Subject    *SubjectNode
	Connection loader.Connection
}

func (n *LoaderNode) Key() string { return n.key }
func (n *LoaderNode) Kind() Kind  { return KindLoader }
func (n *LoaderNode) node()       {}

// ModelNode is a group: one backing partition element plus one collection in
// the target.
type ModelNode struct {
	key     string
	Subject *SubjectNode
	// PartitionClass is the class of the backing element; ModelClass the
	// class of the backing collection.
	PartitionClass string
	ModelClass     string
	// IsDefinition marks definition-like groups, which synchronize before
	// all others so category records exist before records reference them.
	IsDefinition bool
}

func (n *ModelNode) Key() string { return n.key }
func (n *ModelNode) Kind() Kind  { return KindModel }
func (n *ModelNode) node()       {}

// ElementNode produces target records from one element DMO. Exactly one of
// Model or Parent is set; the two constructors on Tree enforce this shape.
type ElementNode struct {
	key    string
	Model  *ModelNode
	Parent *ElementNode
	DMO    dmo.ElementDMO
}

func (n *ElementNode) Key() string { return n.key }
func (n *ElementNode) Kind() Kind  { return KindElement }
func (n *ElementNode) node()       {}

// owningModel walks parent edges to the model this element ultimately lives
// in.
func (n *ElementNode) owningModel() *ModelNode {
	cur := n
	for cur.Parent != nil {
		cur = cur.Parent
	}
	return cur.Model
}

// RelationshipNode produces link-table relationship instances between two
// element nodes.
type RelationshipNode struct {
	key    string
	Source *ElementNode
	Target *ElementNode
	DMO    dmo.RelationshipDMO
}

func (n *RelationshipNode) Key() string { return n.key }
func (n *RelationshipNode) Kind() Kind  { return KindRelationship }
func (n *RelationshipNode) node()       {}

// RelatedElementNode sets a reference property instead of inserting a
// relationship row.
type RelatedElementNode struct {
	key    string
	Source *ElementNode
	Target *ElementNode
	DMO    dmo.RelatedElementDMO
}

func (n *RelatedElementNode) Key() string { return n.key }
func (n *RelatedElementNode) Kind() Kind  { return KindRelatedElement }
func (n *RelatedElementNode) node()       {}
