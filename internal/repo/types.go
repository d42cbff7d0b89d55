package repo

// Code spec names. A code is the stable identity triple
// (spec, scope, value); the value of a synchronized record is always the IR
// instance key, so the same (entityKey, primaryKeyValue) pair maps to the
// same code on every run.
const (
	// CodeSpecInstance identifies records produced from IR instances.
	CodeSpecInstance = "graft:instance"
	// CodeSpecInternal identifies framework records (subjects, partitions,
	// loader-config records).
	CodeSpecInternal = "graft:internal"
)

// AspectKindConnection tags the provenance row of a connection descriptor.
// Orphan detection skips aspects of this kind.
const AspectKindConnection = "graft:connection"

// Code is an element identity.
type Code struct {
	Spec  string `json:"spec"`
	Scope string `json:"scope"`
	Value string `json:"value"`
}

// Element is a stored graph record.
type Element struct {
	ID        int64          `json:"id"`
	Code      Code           `json:"code"`
	Class     string         `json:"class"`
	ModelID   int64          `json:"model_id,omitempty"`  // 0 when root-scoped
	ParentID  int64          `json:"parent_id,omitempty"` // 0 when parentless
	UserLabel string         `json:"user_label,omitempty"`
	Props     map[string]any `json:"props,omitempty"`
}

// Model is a stored collection backing a group of elements. Exactly one
// element is modeled by it.
type Model struct {
	ID               int64  `json:"id"`
	ModeledElementID int64  `json:"modeled_element_id"`
	Class            string `json:"class"`
	IsDefinition     bool   `json:"is_definition"`
	ElementCount     int64  `json:"element_count"`
}

// Relationship is a stored link-table entry. The (class, source, target)
// triple is unique; relationships are inserted once and never updated.
type Relationship struct {
	ID       int64  `json:"id"`
	Class    string `json:"class"`
	SourceID int64  `json:"source_id"`
	TargetID int64  `json:"target_id"`
}

// SourceAspect is the provenance side-record attached to a synchronized
// element: the only durable change-detection state.
type SourceAspect struct {
	ID         int64  `json:"id"`
	ElementID  int64  `json:"element_id"`
	Scope      string `json:"scope"`
	Kind       string `json:"kind"`       // IR entity key, or AspectKindConnection
	Identifier string `json:"identifier"` // code value of the element
	Version    string `json:"version"`
	Checksum   string `json:"checksum"`
}
