package connector

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karsol/graft/internal/dmo"
	"github.com/karsol/graft/internal/loader"
	"github.com/karsol/graft/internal/node"
)

func snapshotTree(t *testing.T) *node.Tree {
	t.Helper()
	tree := node.NewTree()
	subject, err := tree.AddSubject("Plant")
	require.NoError(t, err)
	_, err = tree.AddLoader("Plant-loader", subject, loader.Connection{Kind: "file", Filepath: "plant.json"})
	require.NoError(t, err)
	physical, err := tree.AddModel("physical", subject, "bis:PhysicalPartition", "bis:PhysicalModel", false)
	require.NoError(t, err)
	pumps, err := tree.AddElement("pumps", physical, dmo.ElementDMO{
		IREntity: "Pump",
		Class:    dmo.ClassRef{Name: "Plant:Pump"},
	})
	require.NoError(t, err)
	_, err = tree.AddRelationship("feeds", pumps, pumps, dmo.RelationshipDMO{
		IREntity: "Feeds",
		Class:    dmo.ClassRef{Name: "Plant:Feeds"},
		From:     dmo.Endpoint{Attr: "from_id", Kind: dmo.EndpointIR},
		To:       dmo.Endpoint{Attr: "to_id", Kind: dmo.EndpointIR},
	})
	require.NoError(t, err)
	return tree
}

func TestSaveTreeSnapshot(t *testing.T) {
	conn, err := New(nil, nil, snapshotTree(t), Config{
		SubjectKey:        "Plant",
		DynamicSchemaName: "PlantDynamic",
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, conn.Save(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "tree_snapshot", data)
}

func TestSnapshotJSONMatchesSave(t *testing.T) {
	conn, err := New(nil, nil, snapshotTree(t), Config{
		SubjectKey:        "Plant",
		DynamicSchemaName: "PlantDynamic",
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tree.json")
	require.NoError(t, conn.Save(path))
	fromFile, err := os.ReadFile(path)
	require.NoError(t, err)

	direct, err := conn.SnapshotJSON()
	require.NoError(t, err)
	assert.Equal(t, string(fromFile), string(direct)+"\n")
}
