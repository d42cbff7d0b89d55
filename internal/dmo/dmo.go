// Package dmo defines the declarative mapping objects that bind one IR entity
// to one target schema class. DMOs are data-only: they have no identity and no
// lifecycle beyond process duration. Nodes validate them at construction time
// so that a misconfigured mapping fails before any I/O.
package dmo

import (
	"strings"

	"github.com/karsol/graft/internal/ir"
)

// PropsTransform mutates the generated target property map for one instance.
// It runs last, after the framework defaults, so integrator overrides win.
type PropsTransform func(props map[string]any, inst *ir.Instance)

// PropertyDef declares one property of a dynamically generated target class.
type PropertyDef struct {
	Name string `json:"name"`
	Type string `json:"type"` // "string" | "int" | "double" | "bool"
}

// ClassProps is an embedded definition of a new target class, to be generated
// into the dynamic schema by the schema synchronizer.
type ClassProps struct {
	Name       string        `json:"name"`
	BaseClass  string        `json:"base_class,omitempty"`
	Properties []PropertyDef `json:"properties,omitempty"`
}

// RelClassProps is an embedded definition of a new target relationship class.
type RelClassProps struct {
	Name        string `json:"name"`
	BaseClass   string `json:"base_class,omitempty"`
	SourceClass string `json:"source_class"`
	TargetClass string `json:"target_class"`
	// Multiplicities use the "(0..1)" / "(0..*)" notation of the target store.
	SourceMultiplicity string `json:"source_multiplicity,omitempty"`
	TargetMultiplicity string `json:"target_multiplicity,omitempty"`
}

// ClassRef names the target class a DMO maps into. Exactly one shape:
// a reference to a class already registered in the target (Props nil), or an
// embedded definition of a new class (Props non-nil). Name is always the full
// "Schema:Class" identifier.
type ClassRef struct {
	Name     string         `json:"name"`
	Props    *ClassProps    `json:"props,omitempty"`
	RelProps *RelClassProps `json:"rel_props,omitempty"`
}

// ShortName returns the class segment of the full identifier.
func (r ClassRef) ShortName() string {
	if i := strings.LastIndexByte(r.Name, ':'); i >= 0 {
		return r.Name[i+1:]
	}
	return r.Name
}

// IsDynamic reports whether this reference embeds a class definition that the
// schema synchronizer must generate.
func (r ClassRef) IsDynamic() bool {
	return r.Props != nil || r.RelProps != nil
}

// EndpointKind says where a relationship endpoint's counterpart lives.
type EndpointKind int

const (
	// EndpointIR: the counterpart is another synchronized record; the side
	// attribute holds the counterpart's IR primary-key value.
	EndpointIR EndpointKind = iota
	// EndpointExisting: the counterpart already exists in the target; the
	// side attribute holds a structured locator string.
	EndpointExisting
)

// Endpoint describes one side of a relationship or foreign-key mapping.
type Endpoint struct {
	Attr string       `json:"attr"`
	Kind EndpointKind `json:"kind"`
}

// ElementDMO maps instances of one IR entity to target records of one class.
type ElementDMO struct {
	IREntity       string
	Class          ClassRef
	DoSyncInstance ir.Predicate
	ModifyProps    PropsTransform
}

// RelationshipDMO maps instances of one IR entity (typically a join sheet) to
// link-table style relationship instances between two records.
type RelationshipDMO struct {
	IREntity       string
	Class          ClassRef
	From           Endpoint
	To             Endpoint
	DoSyncInstance ir.Predicate
}

// RelatedElementDMO expresses a relationship as a reference property on the
// target record instead of a separate relationship instance.
type RelatedElementDMO struct {
	IREntity       string
	Class          ClassRef
	From           Endpoint
	To             Endpoint
	// ReferenceProperty is the property on the source-side record that
	// receives the resolved target record id.
	ReferenceProperty string
	DoSyncInstance    ir.Predicate
}
