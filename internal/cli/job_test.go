package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJobFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadJob(t *testing.T) {
	path := writeJobFile(t, `
subject: Plant
delete_orphans: true
dynamic_schema: PlantDynamic
domain_schemas:
  - bis
`)
	cfg, err := LoadJob(path)
	require.NoError(t, err)
	assert.Equal(t, "Plant", cfg.SubjectKey)
	assert.True(t, cfg.DeleteOrphans)
	assert.Equal(t, "PlantDynamic", cfg.DynamicSchemaName)
	assert.Equal(t, []string{"bis"}, cfg.DomainSchemas)
}

func TestLoadJobErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		msg     string
	}{
		{
			name:    "unknown field",
			content: "subject: Plant\ndynamic_schema: D\ndelete_orphan: true\n",
			msg:     "delete_orphan",
		},
		{
			name:    "missing subject",
			content: "dynamic_schema: D\n",
			msg:     "subject must not be empty",
		},
		{
			name:    "missing dynamic schema",
			content: "subject: Plant\n",
			msg:     "dynamic_schema must not be empty",
		},
		{
			name:    "not yaml",
			content: "{{{",
			msg:     "parse job file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadJob(writeJobFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadJob(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
	})
}
