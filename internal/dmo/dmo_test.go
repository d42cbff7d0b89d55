package dmo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassRefShortName(t *testing.T) {
	tests := []struct {
		name     string
		ref      ClassRef
		expected string
	}{
		{"full identifier", ClassRef{Name: "Plant:Pump"}, "Pump"},
		{"bare name", ClassRef{Name: "Pump"}, "Pump"},
		{"nested colon", ClassRef{Name: "A:B:C"}, "C"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.ref.ShortName())
		})
	}
}

func TestClassRefIsDynamic(t *testing.T) {
	assert.False(t, ClassRef{Name: "Plant:Pump"}.IsDynamic())
	assert.True(t, ClassRef{Name: "Dyn:Pump", Props: &ClassProps{Name: "Pump"}}.IsDynamic())
	assert.True(t, ClassRef{Name: "Dyn:Feeds", RelProps: &RelClassProps{Name: "Feeds"}}.IsDynamic())
}

func TestValidateElementDMO(t *testing.T) {
	valid := ElementDMO{IREntity: "Pump", Class: ClassRef{Name: "Plant:Pump"}}
	require.NoError(t, ValidateElementDMO(valid))

	t.Run("empty ir entity", func(t *testing.T) {
		d := valid
		d.IREntity = ""
		err := ValidateElementDMO(d)
		require.Error(t, err)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "IREntity", verr.Field)
	})

	t.Run("empty class name", func(t *testing.T) {
		d := valid
		d.Class = ClassRef{}
		require.Error(t, ValidateElementDMO(d))
	})

	t.Run("embedded definition name mismatch", func(t *testing.T) {
		d := valid
		d.Class = ClassRef{Name: "Dyn:Pump", Props: &ClassProps{Name: "Compressor"}}
		err := ValidateElementDMO(d)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch")
	})

	t.Run("embedded definition name match", func(t *testing.T) {
		d := valid
		d.Class = ClassRef{Name: "Dyn:Pump", Props: &ClassProps{Name: "Pump"}}
		require.NoError(t, ValidateElementDMO(d))
	})
}

func TestValidateRelationshipDMO(t *testing.T) {
	valid := RelationshipDMO{
		IREntity: "PumpToValve",
		Class:    ClassRef{Name: "Plant:Feeds"},
		From:     Endpoint{Attr: "pump_id"},
		To:       Endpoint{Attr: "valve_id"},
	}
	require.NoError(t, ValidateRelationshipDMO(valid))

	t.Run("missing endpoint attr", func(t *testing.T) {
		d := valid
		d.To = Endpoint{}
		err := ValidateRelationshipDMO(d)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint attributes")
	})

	t.Run("rel props name mismatch", func(t *testing.T) {
		d := valid
		d.Class = ClassRef{Name: "Dyn:Feeds", RelProps: &RelClassProps{Name: "Drains"}}
		require.Error(t, ValidateRelationshipDMO(d))
	})
}

func TestValidateRelatedElementDMO(t *testing.T) {
	valid := RelatedElementDMO{
		IREntity:          "Valve",
		Class:             ClassRef{Name: "Plant:Valve"},
		From:              Endpoint{Attr: "id"},
		To:                Endpoint{Attr: "pump_id"},
		ReferenceProperty: "pump",
	}
	require.NoError(t, ValidateRelatedElementDMO(valid))

	t.Run("missing reference property", func(t *testing.T) {
		d := valid
		d.ReferenceProperty = ""
		err := ValidateRelatedElementDMO(d)
		require.Error(t, err)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "ReferenceProperty", verr.Field)
	})

	t.Run("missing ir entity", func(t *testing.T) {
		d := valid
		d.IREntity = ""
		require.Error(t, ValidateRelatedElementDMO(d))
	})
}
