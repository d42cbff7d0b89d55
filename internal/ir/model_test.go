package ir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustInstance(t *testing.T, entityKey, pk string, data map[string]any) *Instance {
	t.Helper()
	inst, err := NewInstance(entityKey, pk, data, "v1")
	require.NoError(t, err)
	return inst
}

func TestNewInstanceDerivesKeyAndChecksum(t *testing.T) {
	inst := mustInstance(t, "Pump", "id", map[string]any{"id": "P-1", "rpm": "1450"})

	assert.Equal(t, "Pump-P-1", inst.Key())
	assert.Equal(t, MustDataChecksum(map[string]any{"id": "P-1", "rpm": "1450"}), inst.Checksum())
}

func TestNewInstanceMissingPrimaryKey(t *testing.T) {
	_, err := NewInstance("Pump", "id", map[string]any{"name": "x"}, "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `primary key attribute "id" not found`)
}

func TestNewInstanceNonScalarPrimaryKey(t *testing.T) {
	_, err := NewInstance("Pump", "id", map[string]any{"id": []any{"P-1"}}, "v1")
	require.Error(t, err)
}

func TestInstanceGet(t *testing.T) {
	inst := mustInstance(t, "Pump", "id", map[string]any{
		"id": "P-1", "rpm": int64(1450), "active": true,
	})

	v, ok := inst.Get("rpm")
	assert.True(t, ok)
	assert.Equal(t, "1450", v)

	v, ok = inst.Get("active")
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	_, ok = inst.Get("missing")
	assert.False(t, ok)
}

func TestNewEntityCollapsesDuplicateKeys(t *testing.T) {
	first := mustInstance(t, "Pump", "id", map[string]any{"id": "P-1", "rpm": "100"})
	other := mustInstance(t, "Pump", "id", map[string]any{"id": "P-2", "rpm": "200"})
	// Same identity as first, compared case-insensitively. Last wins, at the
	// first occurrence's position.
	dup := mustInstance(t, "Pump", "id", map[string]any{"id": "p-1", "rpm": "300"})

	e := NewEntity("Pump", []*Instance{first, other, dup})

	require.Len(t, e.Instances, 2)
	assert.Equal(t, "Pump-p-1", e.Instances[0].Key())
	assert.Equal(t, "300", e.Instances[0].Data["rpm"])
	assert.Equal(t, "Pump-P-2", e.Instances[1].Key())
}

type fakeSource struct {
	entities      []*Entity
	relationships []*Entity
	closed        bool
}

func (s *fakeSource) Entities() ([]*Entity, error)      { return s.entities, nil }
func (s *fakeSource) Relationships() ([]*Entity, error) { return s.relationships, nil }
func (s *fakeSource) Close() error                      { s.closed = true; return nil }

func TestModelLoadClosesSource(t *testing.T) {
	pump := mustInstance(t, "Pump", "id", map[string]any{"id": "P-1"})
	src := &fakeSource{entities: []*Entity{NewEntity("Pump", []*Instance{pump})}}

	m := NewModel()
	require.NoError(t, m.Load(src))
	assert.True(t, src.closed)
	require.NotNil(t, m.Entity("Pump"))
	assert.Nil(t, m.Entity("Valve"))
}

func TestInstancesMatching(t *testing.T) {
	p1 := mustInstance(t, "Pump", "id", map[string]any{"id": "P-1", "zone": "A"})
	p2 := mustInstance(t, "Pump", "id", map[string]any{"id": "P-2", "zone": "B"})
	src := &fakeSource{entities: []*Entity{NewEntity("Pump", []*Instance{p1, p2})}}
	m := NewModel()
	require.NoError(t, m.Load(src))

	t.Run("nil predicate admits everything", func(t *testing.T) {
		out, err := m.InstancesMatching("Pump", nil)
		require.NoError(t, err)
		assert.Len(t, out, 2)
	})

	t.Run("predicate filters", func(t *testing.T) {
		out, err := m.InstancesMatching("Pump", func(i *Instance) (bool, error) {
			zone, _ := i.Get("zone")
			return zone == "A", nil
		})
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, "Pump-P-1", out[0].Key())
	})

	t.Run("absent entity yields empty, not error", func(t *testing.T) {
		out, err := m.InstancesMatching("Valve", nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("predicate error aborts", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := m.InstancesMatching("Pump", func(*Instance) (bool, error) {
			return false, boom
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	})
}

func TestInstancesMatchingConsultsRelationships(t *testing.T) {
	link := mustInstance(t, "PumpToValve", "id", map[string]any{"id": "L-1"})
	src := &fakeSource{relationships: []*Entity{NewEntity("PumpToValve", []*Instance{link})}}
	m := NewModel()
	require.NoError(t, m.Load(src))

	out, err := m.InstancesMatching("PumpToValve", nil)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestCompare(t *testing.T) {
	build := func(rpm string) *Model {
		inst := mustInstance(t, "Pump", "id", map[string]any{"id": "P-1", "rpm": rpm})
		m := NewModel()
		require.NoError(t, m.Load(&fakeSource{entities: []*Entity{NewEntity("Pump", []*Instance{inst})}}))
		return m
	}

	assert.True(t, Compare(build("100"), build("100")))
	assert.False(t, Compare(build("100"), build("200")))
	assert.False(t, Compare(build("100"), NewModel()))
}
