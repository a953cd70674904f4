package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewgen/internal/store"
)

// recordRun generates a mapping into db and returns the run ID.
func recordRun(t *testing.T, db, mapping string, flags ...string) string {
	t.Helper()
	args := append([]string{"--format", "json", "generate", "--db", db}, flags...)
	out, err := execute(t, append(args, mappingDir(mapping))...)
	require.NoError(t, err)
	result := decodeGenerate(t, []byte(out))
	require.NotEmpty(t, result.RunID)
	return result.RunID
}

func TestShowMissingDatabase(t *testing.T) {
	out, err := execute(t, "show", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestShowListsRuns(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	first := recordRun(t, db, "employee_split")
	second := recordRun(t, db, "table_per_hierarchy")

	out, err := execute(t, "--format", "json", "show", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   []RunOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, first, resp.Data[0].ID)
	assert.Equal(t, second, resp.Data[1].ID)
	assert.Less(t, resp.Data[0].Seq, resp.Data[1].Seq)
	assert.Equal(t, 2, resp.Data[0].ViewCount)

	out, err = execute(t, "--format", "json", "show", "--db", db, "--mapping", "table-per-hierarchy")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, second, resp.Data[0].ID)
}

func TestShowListsRunsText(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	id := recordRun(t, db, "employee_split")

	out, err := execute(t, "show", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "employee-split")
}

func TestShowRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	id := recordRun(t, db, "employee_split")

	out, err := execute(t, "--format", "json", "show", "--db", db, id, "--cql")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   RunOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, id, resp.Data.ID)
	require.Len(t, resp.Data.Views, 2)
	for _, v := range resp.Data.Views {
		assert.Equal(t, "c0+c1", v.Tree)
		assert.NotEmpty(t, v.CQL)
	}
	assert.Empty(t, resp.Data.Errors)
}

func TestShowLatestText(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	recordRun(t, db, "employee_split")
	id := recordRun(t, db, "table_per_hierarchy")

	out, err := execute(t, "show", "--db", db, "latest", "--cql")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "table-per-hierarchy")
	assert.Contains(t, out, "-- query People")
	assert.Contains(t, out, "SELECT")
}

func TestShowRunErrors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := execute(t, "generate", "--db", db, mappingDir("versioned_key"))
	require.Error(t, err, "view errors still record the run")

	out, err := execute(t, "show", "--db", db, "latest")
	require.NoError(t, err)
	assert.Contains(t, out, "error 3005")
}

func TestShowUnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	recordRun(t, db, "employee_split")

	out, err := execute(t, "show", "--db", db, "no-such-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestShowDiff(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	before := recordRun(t, db, "table_per_hierarchy")
	after := recordRun(t, db, "table_per_hierarchy", "--per-type")

	out, err := execute(t, "--format", "json", "show", "--db", db, before, "--diff", after)
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   store.RunDiff `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.NotEmpty(t, resp.Data.Added)
	assert.Empty(t, resp.Data.Removed)
	assert.Empty(t, resp.Data.Changed)
	assert.Equal(t, 2, resp.Data.Unchanged)

	out, err = execute(t, "show", "--db", db, before, "--diff", before)
	require.NoError(t, err)
	assert.Contains(t, out, "No view changes (2 unchanged)")
}

func TestShowDiffNeedsRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	id := recordRun(t, db, "employee_split")

	out, err := execute(t, "show", "--db", db, "--diff", id)
	require.Error(t, err)
	assert.Contains(t, out, "--diff needs a run")
}
