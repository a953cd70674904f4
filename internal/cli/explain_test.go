package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeExplain(t *testing.T, data []byte) ExplainResult {
	t.Helper()
	var resp struct {
		Status string        `json:"status"`
		Data   ExplainResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &resp), "output: %s", data)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestExplainQueryView(t *testing.T) {
	out, err := execute(t, "--format", "json", "explain", "--extent", "People", mappingDir("employee_split"))
	require.NoError(t, err)

	result := decodeExplain(t, []byte(out))
	assert.Equal(t, "query", result.View.Kind)
	assert.Equal(t, "c0+c1", result.View.Tree)
	assert.NotEmpty(t, result.View.CQL)
	require.Len(t, result.Cells, 2)
	assert.Equal(t, 0, result.Cells[0].Number)
	assert.Equal(t, 1, result.Cells[1].Number)
	assert.NotEmpty(t, result.Cells[0].CQuery)
	assert.NotEmpty(t, result.Cells[0].SQuery)
}

func TestExplainUpdateView(t *testing.T) {
	// Explaining a table turns update views on even when disabled.
	out, err := execute(t, "--format", "json", "explain", "--extent", "PersonTable", "--no-update-views", mappingDir("employee_split"))
	require.NoError(t, err)

	result := decodeExplain(t, []byte(out))
	assert.Equal(t, "update", result.View.Kind)
	assert.Equal(t, "PersonTable", result.View.Extent)
}

func TestExplainOfType(t *testing.T) {
	out, err := execute(t, "--format", "json", "explain", "--extent", "People", "--of-type", "Customer", mappingDir("table_per_hierarchy"))
	require.NoError(t, err)

	result := decodeExplain(t, []byte(out))
	assert.Equal(t, "Customer", result.View.OfType)
	assert.Equal(t, "c1", result.View.Tree)
	require.Len(t, result.Cells, 1)
	assert.Equal(t, 1, result.Cells[0].Number)
}

func TestExplainText(t *testing.T) {
	out, err := execute(t, "explain", "--extent", "People", mappingDir("employee_split"))
	require.NoError(t, err)
	assert.Contains(t, out, "query view of People")
	assert.Contains(t, out, "Tree: c0+c1")
	assert.Contains(t, out, "c0")
	assert.Contains(t, out, "Conceptual query")
}

func TestExplainUnknownExtent(t *testing.T) {
	out, err := execute(t, "explain", "--extent", "Nobody", mappingDir("employee_split"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeUnknownView)
	assert.Contains(t, out, `unknown extent "Nobody"`)
}

func TestExplainOfTypeOnTable(t *testing.T) {
	out, err := execute(t, "explain", "--extent", "PersonTable", "--of-type", "Person", mappingDir("employee_split"))
	require.Error(t, err)
	assert.Contains(t, out, "--of-type applies to query views only")
}

func TestExplainFailedView(t *testing.T) {
	out, err := execute(t, "--format", "json", "explain", "--extent", "DocTable", mappingDir("versioned_key"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnknownView, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "no update view generated for DocTable")
}

func TestExplainRequiresExtent(t *testing.T) {
	_, err := execute(t, "explain", mappingDir("employee_split"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "extent")
}

func TestViewName(t *testing.T) {
	assert.Equal(t, "People", viewName("People", ""))
	assert.Equal(t, "People OfType(Customer)", viewName("People", "Customer"))
}
