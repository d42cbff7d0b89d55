package connector

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karsol/graft/internal/dmo"
	"github.com/karsol/graft/internal/loader"
	"github.com/karsol/graft/internal/node"
	"github.com/karsol/graft/internal/repo"
	"github.com/karsol/graft/internal/schema"
	"github.com/karsol/graft/internal/testutil"
)

// plantSheets is the baseline source: two pumps, one pump type in a
// definition sheet, and a join sheet linking the pumps.
func plantSheets() map[string][]map[string]any {
	return map[string][]map[string]any{
		"Pump": {
			{"id": "P-1", "Name": "Feed pump", "type_id": "T-1"},
			{"id": "P-2", "Name": "Booster pump", "type_id": "T-1"},
		},
		"PumpType": {
			{"id": "T-1", "Name": "Centrifugal"},
		},
		"Feeds": {
			{"id": "F-1", "from_id": "P-1", "to_id": "P-2"},
		},
	}
}

type testRig struct {
	repo   *repo.Repository
	tree   *node.Tree
	conn   *Connector
	source string
}

func newTestRig(t *testing.T, sheets map[string][]map[string]any, cfg Config) *testRig {
	t.Helper()
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	source := testutil.WriteJSONSource(t, dir, "plant.json", sheets)

	r, err := repo.Open(filepath.Join(dir, "repo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	tree := buildPlantTree(t, source)
	ldr, err := loader.ForConnection(
		loader.Connection{Kind: "file", Filepath: source},
		loader.PKConfig{Default: "id"},
		[]string{"Feeds"},
	)
	require.NoError(t, err)

	conn, err := New(r, ldr, tree, cfg)
	require.NoError(t, err)
	return &testRig{repo: r, tree: tree, conn: conn, source: source}
}

func buildPlantTree(t *testing.T, source string) *node.Tree {
	t.Helper()
	tree := node.NewTree()
	subject, err := tree.AddSubject("Plant")
	require.NoError(t, err)
	_, err = tree.AddLoader("Plant-loader", subject, loader.Connection{Kind: "file", Filepath: source})
	require.NoError(t, err)

	defs, err := tree.AddModel("definitions", subject, "bis:DefinitionPartition", "bis:DefinitionModel", true)
	require.NoError(t, err)
	physical, err := tree.AddModel("physical", subject, "bis:PhysicalPartition", "bis:PhysicalModel", false)
	require.NoError(t, err)

	types, err := tree.AddElement("pump-types", defs, dmo.ElementDMO{
		IREntity: "PumpType",
		Class: dmo.ClassRef{
			Name: "PlantDynamic:PumpType",
			Props: &dmo.ClassProps{
				Name:       "PumpType",
				Properties: []dmo.PropertyDef{{Name: "Name", Type: "string"}},
			},
		},
	})
	require.NoError(t, err)
	pumps, err := tree.AddElement("pumps", physical, dmo.ElementDMO{
		IREntity: "Pump",
		Class: dmo.ClassRef{
			Name: "PlantDynamic:Pump",
			Props: &dmo.ClassProps{
				Name: "Pump",
				Properties: []dmo.PropertyDef{
					{Name: "Name", Type: "string"},
					{Name: "type_id", Type: "string"},
				},
			},
		},
	})
	require.NoError(t, err)

	_, err = tree.AddRelationship("feeds", pumps, pumps, dmo.RelationshipDMO{
		IREntity: "Feeds",
		Class: dmo.ClassRef{
			Name: "PlantDynamic:Feeds",
			RelProps: &dmo.RelClassProps{
				Name:        "Feeds",
				SourceClass: "PlantDynamic:Pump",
				TargetClass: "PlantDynamic:Pump",
			},
		},
		From: dmo.Endpoint{Attr: "from_id", Kind: dmo.EndpointIR},
		To:   dmo.Endpoint{Attr: "to_id", Kind: dmo.EndpointIR},
	})
	require.NoError(t, err)

	_, err = tree.AddRelatedElement("typed-as", pumps, types, dmo.RelatedElementDMO{
		IREntity:          "Pump",
		Class:             dmo.ClassRef{Name: "bis:ElementHasType"},
		From:              dmo.Endpoint{Attr: "id", Kind: dmo.EndpointIR},
		To:                dmo.Endpoint{Attr: "type_id", Kind: dmo.EndpointIR},
		ReferenceProperty: "TypeDefinition",
	})
	require.NoError(t, err)
	return tree
}

func plantConfig() Config {
	return Config{
		SubjectKey:        "Plant",
		DeleteOrphans:     true,
		DynamicSchemaName: "PlantDynamic",
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, nil, nil, Config{DynamicSchemaName: "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subject key")

	_, err = New(nil, nil, nil, Config{SubjectKey: "Plant"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dynamic schema name")
}

func TestRunFirstSync(t *testing.T) {
	rig := newTestRig(t, plantSheets(), plantConfig())
	ctx := context.Background()

	summary, err := rig.conn.Run(ctx)
	require.NoError(t, err)

	assert.False(t, summary.FastPath)
	assert.Equal(t, schema.StateNew, summary.SchemaState)
	assert.Equal(t, 3, summary.ElementsNew) // 2 pumps + 1 type
	assert.Zero(t, summary.ElementsChanged)
	assert.Zero(t, summary.ElementsUnchanged)
	assert.Equal(t, 1, summary.RelationshipsInserted)
	assert.Equal(t, 2, summary.ReferencesSet)
	assert.Zero(t, summary.ResolutionSkips)
	assert.Zero(t, summary.OrphansDeleted)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, StateDone, rig.conn.State())

	dump, err := rig.repo.Snapshot(ctx)
	require.NoError(t, err)

	// 3 instance elements + subject + loader config + 2 partitions.
	assert.Len(t, dump.Elements, 7)
	require.Len(t, dump.Relationships, 1)
	assert.Equal(t, "PlantDynamic:Feeds", dump.Relationships[0].Class)
	assert.Equal(t, "Pump-P-1", dump.Relationships[0].Source.Value)
	assert.Equal(t, "Pump-P-2", dump.Relationships[0].Target.Value)

	require.Len(t, dump.Schemas, 1)
	assert.Equal(t, "PlantDynamic", dump.Schemas[0].Name)
	assert.Equal(t, "01.00.00", dump.Schemas[0].Version)

	// The registry carries the dynamic class bindings after the run.
	names := rig.conn.Registry().Names()
	assert.Equal(t, []string{"PlantDynamic:Feeds", "PlantDynamic:Pump", "PlantDynamic:PumpType"}, names)
}

func TestRunFastPathOnUntouchedSource(t *testing.T) {
	rig := newTestRig(t, plantSheets(), plantConfig())
	ctx := context.Background()

	_, err := rig.conn.Run(ctx)
	require.NoError(t, err)

	summary, err := rig.conn.Run(ctx)
	require.NoError(t, err)
	assert.True(t, summary.FastPath)
	assert.Zero(t, summary.Writes())
	assert.Equal(t, StateDone, rig.conn.State())
}

func TestRunTouchedSourceSameContent(t *testing.T) {
	rig := newTestRig(t, plantSheets(), plantConfig())
	ctx := context.Background()

	_, err := rig.conn.Run(ctx)
	require.NoError(t, err)

	// A new modification time forces the full pipeline; every instance
	// version differs even though the content hashes match.
	testutil.Touch(t, rig.source)
	summary, err := rig.conn.Run(ctx)
	require.NoError(t, err)

	assert.False(t, summary.FastPath)
	assert.Equal(t, schema.StateUnchanged, summary.SchemaState)
	assert.Zero(t, summary.ElementsNew)
	assert.Equal(t, 3, summary.ElementsChanged)
	// The relationship row already exists and is never updated.
	assert.Zero(t, summary.RelationshipsInserted)
	assert.Equal(t, 1, summary.RelationshipsSkipped)
	// References already hold the resolved ids.
	assert.Zero(t, summary.ReferencesSet)
	assert.Zero(t, summary.OrphansDeleted)
}

func TestRunDeletesOrphans(t *testing.T) {
	rig := newTestRig(t, plantSheets(), plantConfig())
	ctx := context.Background()

	_, err := rig.conn.Run(ctx)
	require.NoError(t, err)

	// P-2 and its type usage disappear from the source; the type itself
	// stays referenced by P-1 and survives.
	sheets := plantSheets()
	sheets["Pump"] = sheets["Pump"][:1]
	sheets["Feeds"] = nil
	testutil.WriteJSONSource(t, filepath.Dir(rig.source), "plant.json", sheets)
	testutil.Touch(t, rig.source)

	summary, err := rig.conn.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.OrphansDeleted)
	assert.Zero(t, summary.OrphansRetained)

	dump, err := rig.repo.Snapshot(ctx)
	require.NoError(t, err)
	for _, el := range dump.Elements {
		assert.NotEqual(t, "Pump-P-2", el.Code.Value)
	}
	// The relationship row went with its endpoint.
	assert.Empty(t, dump.Relationships)
}

func TestRunDeletesDefinitionOrphansLast(t *testing.T) {
	rig := newTestRig(t, plantSheets(), plantConfig())
	ctx := context.Background()

	_, err := rig.conn.Run(ctx)
	require.NoError(t, err)

	// Everything disappears: both pumps and the definition-model type.
	sheets := map[string][]map[string]any{
		"Pump":     nil,
		"PumpType": nil,
		"Feeds":    nil,
	}
	testutil.WriteJSONSource(t, filepath.Dir(rig.source), "plant.json", sheets)
	testutil.Touch(t, rig.source)

	summary, err := rig.conn.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.OrphansDeleted)

	dump, err := rig.repo.Snapshot(ctx)
	require.NoError(t, err)
	for _, el := range dump.Elements {
		assert.NotEqual(t, "PlantDynamic:Pump", el.Class)
		assert.NotEqual(t, "PlantDynamic:PumpType", el.Class)
	}
}

func TestRunRetainsOrphansWhenDisabled(t *testing.T) {
	cfg := plantConfig()
	cfg.DeleteOrphans = false
	rig := newTestRig(t, plantSheets(), cfg)
	ctx := context.Background()

	_, err := rig.conn.Run(ctx)
	require.NoError(t, err)

	sheets := plantSheets()
	sheets["Pump"] = sheets["Pump"][:1]
	sheets["Feeds"] = nil
	testutil.WriteJSONSource(t, filepath.Dir(rig.source), "plant.json", sheets)
	testutil.Touch(t, rig.source)

	summary, err := rig.conn.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.OrphansDeleted)
	assert.Equal(t, 1, summary.OrphansRetained)

	el, err := rig.repo.FindElementByCode(ctx, repo.Code{
		Spec: repo.CodeSpecInstance, Scope: "1", Value: "Pump-P-2",
	})
	require.NoError(t, err)
	assert.NotNil(t, el)
}

func TestRunSkipsUnresolvableRelationship(t *testing.T) {
	sheets := plantSheets()
	sheets["Feeds"] = append(sheets["Feeds"], map[string]any{
		"id": "F-2", "from_id": "P-1", "to_id": "P-404",
	})
	rig := newTestRig(t, sheets, plantConfig())

	summary, err := rig.conn.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RelationshipsInserted)
	assert.Equal(t, 1, summary.ResolutionSkips)
	assert.Equal(t, StateDone, rig.conn.State())
}

func TestRunFailsOnMissingSource(t *testing.T) {
	rig := newTestRig(t, plantSheets(), plantConfig())
	require.NoError(t, os.Remove(rig.source))

	_, err := rig.conn.Run(context.Background())
	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeLoader, re.Code)
	assert.Equal(t, StateLoaderSync, re.State)
	assert.Equal(t, StateFailed, rig.conn.State())
}

func TestRunUnknownSubject(t *testing.T) {
	rig := newTestRig(t, plantSheets(), plantConfig())
	rig.conn.cfg.SubjectKey = "Refinery"

	_, err := rig.conn.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `subject node "Refinery" not found`)
}

func TestRunStateStrings(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "loader-sync", StateLoaderSync.String())
	assert.Equal(t, "data-sync", StateDataSync.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "failed", StateFailed.String())
}
