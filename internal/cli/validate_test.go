package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/viewgen/internal/compiler"
)

func TestValidateValidMapping(t *testing.T) {
	out, err := execute(t, "validate", mappingDir("employee_split"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Mapping employee-split valid")
}

func TestValidateValidMappingJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", mappingDir("table_per_hierarchy"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, "table-per-hierarchy", resp.Data.Mapping)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := execute(t, "validate", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNotFound)
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeNoFiles)
}

func TestValidateBrokenCUE(t *testing.T) {
	_, err := execute(t, "validate", mappingDir("broken"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidateStaticError(t *testing.T) {
	out, err := execute(t, "validate", mappingDir("unknown_column"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownColumn)
}

func TestValidateStaticErrorJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", mappingDir("unknown_column"))
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrUnknownColumn, resp.Error.Code)
}

func TestValidateReportsViewGenerationErrors(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", mappingDir("versioned_key"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	var found bool
	for _, e := range resp.Data.Errors {
		if e.Code == "3005" {
			found = true
			assert.Contains(t, e.Message, "KeyNotMappedForTable")
		}
	}
	assert.True(t, found, "errors: %v", resp.Data.Errors)
}

func TestValidateStaticSkipsGeneration(t *testing.T) {
	out, err := execute(t, "validate", "--static", mappingDir("versioned_key"))
	require.NoError(t, err)
	assert.Contains(t, out, "Mapping versioned-key valid")
}

func TestValidateMappingDir(t *testing.T) {
	m, errs, err := ValidateMappingDir(mappingDir("employee_split"))
	require.NoError(t, err)
	assert.Equal(t, "employee-split", m.Name)
	assert.Empty(t, errs)

	_, errs, err = ValidateMappingDir(mappingDir("unknown_column"))
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	assert.Equal(t, compiler.ErrUnknownColumn, errs[0].Code)
}

func TestMapFieldToErrorCode(t *testing.T) {
	tests := []struct {
		field, message, want string
	}{
		{"cue", "syntax error", ErrCodeBuildFailed},
		{"mapping", "name is required", compiler.ErrMappingNameEmpty},
		{"fragments", "at least one fragment is required", compiler.ErrMappingNoFragment},
		{"types.Person.properties.Id", "unsupported type float", compiler.ErrInvalidFieldType},
		{"somewhere", "something else", ErrCodeGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			assert.Equal(t, tt.want, MapFieldToErrorCode(tt.field, tt.message))
		})
	}
}
