// Package schema keeps the dynamically generated target schema in step with
// the mapping objects that declare new target classes.
//
// The Registry is an explicit value owned by the orchestrator, initialized
// per run and torn down with it. Nothing in this package is process-global.
package schema

import (
	"fmt"
	"sort"

	"github.com/karsol/graft/internal/dmo"
)

// ClassDef is one class of a schema definition, flattened for persistence.
type ClassDef struct {
	Name       string            `json:"name"`
	BaseClass  string            `json:"base_class,omitempty"`
	Properties []dmo.PropertyDef `json:"properties,omitempty"`

	// Relationship-class constraints; empty for entity classes.
	SourceClass        string `json:"source_class,omitempty"`
	TargetClass        string `json:"target_class,omitempty"`
	SourceMultiplicity string `json:"source_multiplicity,omitempty"`
	TargetMultiplicity string `json:"target_multiplicity,omitempty"`
}

// IsRelationship reports whether the class is a relationship class.
func (c ClassDef) IsRelationship() bool {
	return c.SourceClass != "" || c.TargetClass != ""
}

// Registry holds the runtime class bindings of one run: full class name →
// definition. Re-registered whenever a new schema version is imported.
type Registry struct {
	classes map[string]ClassDef
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]ClassDef)}
}

// Register binds a class definition under its full "Schema:Class" name.
// Re-registering an existing name replaces the binding.
func (r *Registry) Register(schemaName string, def ClassDef) {
	r.classes[schemaName+":"+def.Name] = def
}

// Lookup returns the definition bound under the full class name.
func (r *Registry) Lookup(fullName string) (ClassDef, bool) {
	def, ok := r.classes[fullName]
	return def, ok
}

// Names returns all registered full class names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.classes))
	for name := range r.classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// classFromProps converts an embedded entity-class definition.
func classFromProps(p dmo.ClassProps) ClassDef {
	return ClassDef{
		Name:       p.Name,
		BaseClass:  p.BaseClass,
		Properties: p.Properties,
	}
}

// classFromRelProps converts an embedded relationship-class definition.
func classFromRelProps(p dmo.RelClassProps) (ClassDef, error) {
	if p.SourceClass == "" || p.TargetClass == "" {
		return ClassDef{}, fmt.Errorf("relationship class %q: source and target constraints are required", p.Name)
	}
	return ClassDef{
		Name:               p.Name,
		BaseClass:          p.BaseClass,
		SourceClass:        p.SourceClass,
		TargetClass:        p.TargetClass,
		SourceMultiplicity: p.SourceMultiplicity,
		TargetMultiplicity: p.TargetMultiplicity,
	}, nil
}
