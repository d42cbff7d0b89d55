package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karsol/graft/internal/connector"
)

func plantJob(t *testing.T) string {
	t.Helper()
	return writeJobFile(t, `
subject: Plant
delete_orphans: true
dynamic_schema: PlantDynamic
`)
}

func TestRunCommand(t *testing.T) {
	source := writePlantSource(t)
	dir := writeMappingDir(t, source)
	job := plantJob(t)
	db := filepath.Join(t.TempDir(), "plant.db")

	out, _, err := execute(t, "run", dir, "--db", db, "--job", job)
	require.NoError(t, err)
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "2 new")

	// Untouched source: the second invocation takes the fast path.
	out, _, err = execute(t, "run", dir, "--db", db, "--job", job)
	require.NoError(t, err)
	assert.Contains(t, out, "Source unchanged, nothing to do")
}

func TestRunCommandJSON(t *testing.T) {
	source := writePlantSource(t)
	dir := writeMappingDir(t, source)
	job := plantJob(t)
	db := filepath.Join(t.TempDir(), "plant.db")

	out, _, err := execute(t, "run", dir, "--db", db, "--job", job, "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	payload, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var summary connector.RunSummary
	require.NoError(t, json.Unmarshal(payload, &summary))
	assert.Equal(t, 2, summary.ElementsNew)
	assert.False(t, summary.FastPath)
}

func TestRunCommandErrors(t *testing.T) {
	source := writePlantSource(t)
	dir := writeMappingDir(t, source)
	job := plantJob(t)
	db := filepath.Join(t.TempDir(), "plant.db")

	t.Run("missing required flags", func(t *testing.T) {
		_, _, err := execute(t, "run", dir)
		require.Error(t, err)
	})

	t.Run("bad job file", func(t *testing.T) {
		badJob := writeJobFile(t, "subject: Plant\n")
		_, _, err := execute(t, "run", dir, "--db", db, "--job", badJob)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "dynamic_schema")
	})

	t.Run("job subject not in mappings", func(t *testing.T) {
		otherJob := writeJobFile(t, "subject: Refinery\ndynamic_schema: D\n")
		_, _, err := execute(t, "run", dir, "--db", db, "--job", otherJob)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), `no mapping declares subject "Refinery"`)
	})

	t.Run("missing source file fails the run", func(t *testing.T) {
		brokenDir := writeMappingDir(t, filepath.Join(t.TempDir(), "absent.json"))
		_, _, err := execute(t, "run", brokenDir, "--db", db, "--job", job)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
	})
}
