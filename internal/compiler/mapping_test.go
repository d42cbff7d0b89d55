package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karsol/graft/internal/dmo"
	"github.com/karsol/graft/internal/loader"
)

const plantMapping = `
subject: "Plant"
connection: {
	kind:     "file"
	filepath: "plant.json"
}
primary_keys: {
	default: "id"
	overrides: {
		Pump: "tag"
	}
}
relationship_sheets: ["Feeds"]
models: {
	definitions: {
		partition_class: "bis:DefinitionPartition"
		model_class:     "bis:DefinitionModel"
		definition:      true
	}
	physical: {
		partition_class: "bis:PhysicalPartition"
		model_class:     "bis:PhysicalModel"
	}
}
elements: {
	pumps: {
		model:     "physical"
		ir_entity: "Pump"
		class: {
			name: "PlantDynamic:Pump"
			props: {
				name:       "Pump"
				base_class: "bis:PhysicalElement"
				properties: [
					{name: "Name", type: "string"},
					{name: "rpm", type: "int"},
				]
			}
		}
	}
	impellers: {
		parent:    "pumps"
		ir_entity: "Impeller"
		class: name: "Plant:Impeller"
	}
}
relationships: {
	feeds: {
		source:    "pumps"
		target:    "impellers"
		ir_entity: "Feeds"
		class: {
			name: "PlantDynamic:Feeds"
			rel_props: {
				name:         "Feeds"
				source_class: "PlantDynamic:Pump"
				target_class: "Plant:Impeller"
			}
		}
		from: attr: "from_id"
		to: {
			attr: "to_loc"
			kind: "existing"
		}
	}
}
related_elements: {
	typed_as: {
		source:             "pumps"
		target:             "impellers"
		ir_entity:          "Pump"
		reference_property: "TypeDefinition"
		from: attr: "id"
		to: attr:   "type_id"
		class: name: "Plant:TypedAs"
	}
}
`

func compileValue(t *testing.T, src string) cue.Value {
	t.Helper()
	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err())
	return v
}

func TestCompileMapping(t *testing.T) {
	m, err := CompileMapping(compileValue(t, plantMapping))
	require.NoError(t, err)

	assert.Equal(t, "Plant", m.Subject)
	assert.Equal(t, loader.Connection{Kind: "file", Filepath: "plant.json"}, m.Connection)
	assert.Equal(t, "id", m.PrimaryKeys.Default)
	assert.Equal(t, map[string]string{"Pump": "tag"}, m.PrimaryKeys.Overrides)
	assert.Equal(t, []string{"Feeds"}, m.RelationshipSheets)

	require.Len(t, m.Models, 2)
	assert.Equal(t, ModelDef{
		Key:            "definitions",
		PartitionClass: "bis:DefinitionPartition",
		ModelClass:     "bis:DefinitionModel",
		IsDefinition:   true,
	}, m.Models[0])
	assert.False(t, m.Models[1].IsDefinition)

	require.Len(t, m.Elements, 2)
	pumps := m.Elements[0]
	assert.Equal(t, "pumps", pumps.Key)
	assert.Equal(t, "physical", pumps.Model)
	assert.Empty(t, pumps.Parent)
	assert.Equal(t, "Pump", pumps.IREntity)
	require.NotNil(t, pumps.Class.Props)
	assert.Equal(t, "bis:PhysicalElement", pumps.Class.Props.BaseClass)
	assert.Equal(t, []dmo.PropertyDef{
		{Name: "Name", Type: "string"},
		{Name: "rpm", Type: "int"},
	}, pumps.Class.Props.Properties)

	impellers := m.Elements[1]
	assert.Equal(t, "pumps", impellers.Parent)
	assert.Nil(t, impellers.Class.Props)
	assert.False(t, impellers.Class.IsDynamic())

	require.Len(t, m.Relationships, 1)
	feeds := m.Relationships[0]
	assert.Equal(t, dmo.Endpoint{Attr: "from_id", Kind: dmo.EndpointIR}, feeds.From)
	assert.Equal(t, dmo.Endpoint{Attr: "to_loc", Kind: dmo.EndpointExisting}, feeds.To)
	require.NotNil(t, feeds.Class.RelProps)
	assert.Equal(t, "PlantDynamic:Pump", feeds.Class.RelProps.SourceClass)

	require.Len(t, m.RelatedElements, 1)
	assert.Equal(t, "TypedAs", m.RelatedElements[0].Class.ShortName())
	assert.Equal(t, "TypeDefinition", m.RelatedElements[0].ReferenceProperty)
}

func TestCompileMappingErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{
			name: "missing subject",
			src:  `connection: {kind: "file", filepath: "a.json"}, primary_keys: default: "id"`,
			msg:  "subject is required",
		},
		{
			name: "missing connection",
			src:  `subject: "Plant", primary_keys: default: "id"`,
			msg:  "connection is required",
		},
		{
			name: "invalid connection",
			src:  `subject: "Plant", connection: kind: "file", primary_keys: default: "id"`,
			msg:  "filepath must not be empty",
		},
		{
			name: "unknown connection kind",
			src:  `subject: "Plant", connection: kind: "ftp", primary_keys: default: "id"`,
			msg:  `unknown connection kind "ftp"`,
		},
		{
			name: "missing primary keys",
			src:  `subject: "Plant", connection: {kind: "file", filepath: "a.json"}`,
			msg:  "primary_keys is required",
		},
		{
			name: "element without class",
			src: `subject: "Plant", connection: {kind: "file", filepath: "a.json"}, primary_keys: default: "id"
elements: pumps: {model: "physical", ir_entity: "Pump"}`,
			msg: "class is required",
		},
		{
			name: "relationship without endpoint",
			src: `subject: "Plant", connection: {kind: "file", filepath: "a.json"}, primary_keys: default: "id"
relationships: feeds: {
	source: "a", target: "b", ir_entity: "Feeds"
	class: name: "Plant:Feeds"
	from: attr: "from_id"
}`,
			msg: "to endpoint is required",
		},
		{
			name: "unknown endpoint kind",
			src: `subject: "Plant", connection: {kind: "file", filepath: "a.json"}, primary_keys: default: "id"
relationships: feeds: {
	source: "a", target: "b", ir_entity: "Feeds"
	class: name: "Plant:Feeds"
	from: attr: "from_id"
	to: {attr: "to_id", kind: "fk"}
}`,
			msg: `unknown endpoint kind "fk"`,
		},
		{
			name: "rel props without constraints",
			src: `subject: "Plant", connection: {kind: "file", filepath: "a.json"}, primary_keys: default: "id"
relationships: feeds: {
	source: "a", target: "b", ir_entity: "Feeds"
	class: {name: "Plant:Feeds", rel_props: name: "Feeds"}
	from: attr: "from_id"
	to: attr: "to_id"
}`,
			msg: "source_class is required",
		},
		{
			name: "related element without reference property",
			src: `subject: "Plant", connection: {kind: "file", filepath: "a.json"}, primary_keys: default: "id"
related_elements: typed_as: {
	source: "a", target: "b", ir_entity: "Pump"
	class: name: "Plant:TypedAs"
	from: attr: "id"
	to: attr: "type_id"
}`,
			msg: "reference_property is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileMapping(compileValue(t, tt.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestCompileErrorCarriesPosition(t *testing.T) {
	src := `subject: "Plant"
connection: {kind: "file", filepath: "a.json"}
primary_keys: default: "id"
elements: pumps: {model: "physical", ir_entity: "Pump"}`

	_, err := CompileMapping(compileValue(t, src))
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "class", ce.Field)
}
