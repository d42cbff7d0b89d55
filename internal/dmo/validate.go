package dmo

import "fmt"

// ValidationError reports a malformed mapping object. It is raised at node
// construction time, before any I/O, so integrator tests catch it.
type ValidationError struct {
	DMO     string // "element" | "relationship" | "related-element"
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s DMO: %s: %s", e.DMO, e.Field, e.Message)
}

// ValidateElementDMO checks the static shape of an element mapping.
// The only rule with teeth: an embedded class definition must carry the same
// short name as the class identifier it is registered under.
func ValidateElementDMO(d ElementDMO) error {
	if d.IREntity == "" {
		return &ValidationError{DMO: "element", Field: "IREntity", Message: "must not be empty"}
	}
	if d.Class.Name == "" {
		return &ValidationError{DMO: "element", Field: "Class.Name", Message: "must not be empty"}
	}
	if d.Class.Props != nil && d.Class.Props.Name != d.Class.ShortName() {
		return &ValidationError{
			DMO:   "element",
			Field: "Class",
			Message: fmt.Sprintf("class name / ClassProps.name mismatch: %q vs %q",
				d.Class.ShortName(), d.Class.Props.Name),
		}
	}
	return nil
}

// ValidateRelationshipDMO checks the static shape of a relationship mapping.
func ValidateRelationshipDMO(d RelationshipDMO) error {
	if d.IREntity == "" {
		return &ValidationError{DMO: "relationship", Field: "IREntity", Message: "must not be empty"}
	}
	if d.Class.Name == "" {
		return &ValidationError{DMO: "relationship", Field: "Class.Name", Message: "must not be empty"}
	}
	if d.Class.RelProps != nil && d.Class.RelProps.Name != d.Class.ShortName() {
		return &ValidationError{
			DMO:   "relationship",
			Field: "Class",
			Message: fmt.Sprintf("class name / ClassProps.name mismatch: %q vs %q",
				d.Class.ShortName(), d.Class.RelProps.Name),
		}
	}
	if d.From.Attr == "" || d.To.Attr == "" {
		return &ValidationError{DMO: "relationship", Field: "From/To", Message: "endpoint attributes must not be empty"}
	}
	return nil
}

// ValidateRelatedElementDMO checks the static shape of a foreign-key mapping.
func ValidateRelatedElementDMO(d RelatedElementDMO) error {
	if d.IREntity == "" {
		return &ValidationError{DMO: "related-element", Field: "IREntity", Message: "must not be empty"}
	}
	if d.Class.Name == "" {
		return &ValidationError{DMO: "related-element", Field: "Class.Name", Message: "must not be empty"}
	}
	if d.Class.Props != nil && d.Class.Props.Name != d.Class.ShortName() {
		return &ValidationError{
			DMO:   "related-element",
			Field: "Class",
			Message: fmt.Sprintf("class name / ClassProps.name mismatch: %q vs %q",
				d.Class.ShortName(), d.Class.Props.Name),
		}
	}
	if d.ReferenceProperty == "" {
		return &ValidationError{DMO: "related-element", Field: "ReferenceProperty", Message: "must not be empty"}
	}
	if d.From.Attr == "" || d.To.Attr == "" {
		return &ValidationError{DMO: "related-element", Field: "From/To", Message: "endpoint attributes must not be empty"}
	}
	return nil
}
