package ir

import (
	"fmt"
	"strings"
)

// Source is the narrow contract the Model needs from a loader. A loader is
// opened by the caller, drained exactly once by Load, then closed by Load.
type Source interface {
	Entities() ([]*Entity, error)
	Relationships() ([]*Entity, error)
	Close() error
}

// Predicate filters instances during a lookup. Returning an error aborts the
// lookup; the error is surfaced to the caller unchanged.
type Predicate func(*Instance) (bool, error)

// Model is the normalized in-memory store of all source entities produced by
// one loader invocation. Constructed once per run, immutable afterward.
type Model struct {
	entities      map[string]*Entity
	relationships map[string]*Entity
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		entities:      make(map[string]*Entity),
		relationships: make(map[string]*Entity),
	}
}

// Load drains the source into the model, then closes the source. The close
// error is reported only when draining itself succeeded.
func (m *Model) Load(src Source) error {
	entities, err := src.Entities()
	if err != nil {
		src.Close()
		return fmt.Errorf("load entities: %w", err)
	}
	relationships, err := src.Relationships()
	if err != nil {
		src.Close()
		return fmt.Errorf("load relationships: %w", err)
	}
	for _, e := range entities {
		m.entities[e.Key] = e
	}
	for _, r := range relationships {
		m.relationships[r.Key] = r
	}
	if err := src.Close(); err != nil {
		return fmt.Errorf("close loader: %w", err)
	}
	return nil
}

// Entity returns the named entity, or nil when absent.
func (m *Model) Entity(key string) *Entity {
	return m.entities[key]
}

// Relationship returns the named relationship entity, or nil when absent.
func (m *Model) Relationship(key string) *Entity {
	return m.relationships[key]
}

// InstancesMatching returns the instances of the named entity that pass pred,
// in source order. An absent entity key yields an empty result, not an error:
// a mapping may legitimately have zero current source rows. A nil pred admits
// everything. Relationship entities are consulted when no plain entity
// carries the key.
func (m *Model) InstancesMatching(entityKey string, pred Predicate) ([]*Instance, error) {
	entity := m.entities[entityKey]
	if entity == nil {
		entity = m.relationships[entityKey]
	}
	if entity == nil {
		return nil, nil
	}
	if pred == nil {
		return entity.Instances, nil
	}
	var out []*Instance
	for _, inst := range entity.Instances {
		ok, err := pred(inst)
		if err != nil {
			return nil, fmt.Errorf("predicate on %q: %w", inst.Key(), err)
		}
		if !ok {
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// Compare reports deep equality of two models over their entity and
// relationship maps. Used for cross-loader regression testing only;
// production change detection runs per-instance on checksum and version.
func Compare(a, b *Model) bool {
	return compareEntityMaps(a.entities, b.entities) &&
		compareEntityMaps(a.relationships, b.relationships)
}

func compareEntityMaps(a, b map[string]*Entity) bool {
	if len(a) != len(b) {
		return false
	}
	for key, ea := range a {
		eb, ok := b[key]
		if !ok || len(ea.Instances) != len(eb.Instances) {
			return false
		}
		for i, ia := range ea.Instances {
			ib := eb.Instances[i]
			if !strings.EqualFold(ia.Key(), ib.Key()) || ia.Checksum() != ib.Checksum() {
				return false
			}
		}
	}
	return true
}
