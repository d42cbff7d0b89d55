package connector

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karsol/graft/internal/repo"
)

func newDetectConnector(t *testing.T) *Connector {
	t.Helper()
	r, err := repo.Open(filepath.Join(t.TempDir(), "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	c, err := New(r, nil, nil, plantConfig())
	require.NoError(t, err)
	return c
}

func pumpElement() repo.Element {
	return repo.Element{
		Code:      repo.Code{Spec: repo.CodeSpecInstance, Scope: "1", Value: "Pump-P-1"},
		Class:     "Plant:Pump",
		UserLabel: "Pump-P-1",
		Props:     map[string]any{"Name": "Feed pump"},
	}
}

func pumpProvenance() Provenance {
	return Provenance{
		Scope:      "1",
		Kind:       "Pump",
		Identifier: "Pump-P-1",
		Version:    "v1",
		Checksum:   "c1",
	}
}

func TestDetectAndUpsert(t *testing.T) {
	c := newDetectConnector(t)
	ctx := context.Background()

	state, id, err := c.detectAndUpsert(ctx, pumpElement(), pumpProvenance())
	require.NoError(t, err)
	assert.Equal(t, ChangeNew, state)
	require.Greater(t, id, int64(0))

	// Same version and checksum: no write.
	state, sameID, err := c.detectAndUpsert(ctx, pumpElement(), pumpProvenance())
	require.NoError(t, err)
	assert.Equal(t, ChangeUnchanged, state)
	assert.Equal(t, id, sameID)

	// A new version alone registers as changed.
	prov := pumpProvenance()
	prov.Version = "v2"
	el := pumpElement()
	el.Props["Name"] = "Feed pump A"
	state, _, err = c.detectAndUpsert(ctx, el, prov)
	require.NoError(t, err)
	assert.Equal(t, ChangeChanged, state)

	got, err := c.repo.FindElementByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Feed pump A", got.Props["Name"])
	aspect, err := c.repo.FindAspect(ctx, "1", "Pump", "Pump-P-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", aspect.Version)

	// A new checksum alone registers as changed too.
	prov.Checksum = "c2"
	state, _, err = c.detectAndUpsert(ctx, el, prov)
	require.NoError(t, err)
	assert.Equal(t, ChangeChanged, state)
}

func TestDetectAndUpsertAdoptsUntrackedElement(t *testing.T) {
	c := newDetectConnector(t)
	ctx := context.Background()

	// A record under the identity code without provenance, as left behind
	// by an interrupted run that committed the element but not the aspect.
	orphanID, err := c.repo.InsertElement(ctx, pumpElement())
	require.NoError(t, err)

	state, id, err := c.detectAndUpsert(ctx, pumpElement(), pumpProvenance())
	require.NoError(t, err)
	assert.Equal(t, ChangeNew, state)
	assert.Equal(t, orphanID, id)

	aspect, err := c.repo.FindAspect(ctx, "1", "Pump", "Pump-P-1")
	require.NoError(t, err)
	require.NotNil(t, aspect)
	assert.Equal(t, "v1", aspect.Version)
	assert.Equal(t, "c1", aspect.Checksum)
}

func TestDetectAndUpsertKeepsReferenceProps(t *testing.T) {
	c := newDetectConnector(t)
	ctx := context.Background()

	_, id, err := c.detectAndUpsert(ctx, pumpElement(), pumpProvenance())
	require.NoError(t, err)
	require.NoError(t, c.repo.UpdateElementReference(ctx, id, "TypeDefinition", 42))

	// A changed source row must not erase properties the mapping does not
	// produce.
	prov := pumpProvenance()
	prov.Checksum = "c2"
	el := pumpElement()
	el.Props["Name"] = "Feed pump A"
	state, _, err := c.detectAndUpsert(ctx, el, prov)
	require.NoError(t, err)
	assert.Equal(t, ChangeChanged, state)

	got, err := c.repo.FindElementByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Feed pump A", got.Props["Name"])
	assert.EqualValues(t, 42, got.Props["TypeDefinition"])
}

func TestChangeStateString(t *testing.T) {
	assert.Equal(t, "new", ChangeNew.String())
	assert.Equal(t, "changed", ChangeChanged.String())
	assert.Equal(t, "unchanged", ChangeUnchanged.String())
}
