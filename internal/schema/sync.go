package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/karsol/graft/internal/dmo"
	"github.com/karsol/graft/internal/repo"
)

// State classifies the outcome of one schema synchronization.
type State int

const (
	// StateUnchanged: the persisted schema structurally equals the candidate;
	// nothing was imported.
	StateUnchanged State = iota
	// StateNew: no schema of this name existed; imported at version 1.0.0.
	StateNew
	// StateChanged: the candidate differs; imported with a bumped minor
	// version.
	StateChanged
)

func (s State) String() string {
	switch s {
	case StateUnchanged:
		return "unchanged"
	case StateNew:
		return "new"
	case StateChanged:
		return "changed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Definition is the serialized form of a dynamic schema.
type Definition struct {
	Name       string             `json:"name"`
	Version    repo.SchemaVersion `json:"version"`
	References []string           `json:"references,omitempty"`
	Classes    []ClassDef         `json:"classes"`
}

// Synchronizer builds the candidate dynamic schema from embedded DMO class
// definitions, diffs it against the persisted schema, and imports a new minor
// version only when changed.
type Synchronizer struct {
	Repo *repo.Repository
	// Registry receives the runtime class bindings after import.
	Registry *Registry
	// Name of the dynamic schema.
	Name string
	// References lists the base/domain schemas the integrator configured.
	References []string
}

// Sync runs the schema-evolution protocol for the given embedded definitions.
// Diff and import failures are fatal: a half-imported schema risks corrupting
// every later data write, so nothing here is swallowed.
func (s *Synchronizer) Sync(ctx context.Context, classes []dmo.ClassProps, relClasses []dmo.RelClassProps) (State, error) {
	candidate, err := s.buildCandidate(classes, relClasses)
	if err != nil {
		return StateUnchanged, fmt.Errorf("build candidate schema %q: %w", s.Name, err)
	}

	persistedVersion, persistedJSON, exists, err := s.Repo.FindSchema(ctx, s.Name)
	if err != nil {
		return StateUnchanged, err
	}

	state := StateNew
	version := repo.SchemaVersion{Read: 1, Write: 0, Minor: 0}
	if exists {
		var persisted Definition
		if err := json.Unmarshal([]byte(persistedJSON), &persisted); err != nil {
			return StateUnchanged, fmt.Errorf("corrupt persisted schema %q: %w", s.Name, err)
		}
		diagnostics := Diff(candidate, persisted)
		if len(diagnostics) == 0 {
			s.register(persisted)
			return StateUnchanged, nil
		}
		state = StateChanged
		version = persistedVersion
		version.Minor++
	}

	candidate.Version = version
	serialized, err := json.Marshal(candidate)
	if err != nil {
		return StateUnchanged, fmt.Errorf("serialize schema %q: %w", s.Name, err)
	}
	if err := s.Repo.ImportSchema(ctx, s.Name, version, string(serialized)); err != nil {
		return StateUnchanged, err
	}

	s.register(candidate)
	return state, nil
}

// buildCandidate collects the embedded definitions into a Definition with
// classes in name order, so serialization is deterministic.
func (s *Synchronizer) buildCandidate(classes []dmo.ClassProps, relClasses []dmo.RelClassProps) (Definition, error) {
	def := Definition{Name: s.Name, References: s.References}

	seen := make(map[string]bool)
	for _, p := range classes {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		def.Classes = append(def.Classes, classFromProps(p))
	}
	for _, p := range relClasses {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		c, err := classFromRelProps(p)
		if err != nil {
			return Definition{}, err
		}
		def.Classes = append(def.Classes, c)
	}

	sort.Slice(def.Classes, func(i, j int) bool {
		return def.Classes[i].Name < def.Classes[j].Name
	})
	return def, nil
}

// register rebuilds the runtime class bindings from an imported definition.
func (s *Synchronizer) register(def Definition) {
	if s.Registry == nil {
		return
	}
	for _, c := range def.Classes {
		s.Registry.Register(def.Name, c)
	}
}
