package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileRequest(t *testing.T) {
	cmd := NewCompileCommand(testRootOptions("text"))
	stdout, _, err := execute(cmd, requestFile("breweries.yaml"))
	require.NoError(t, err)

	assert.Contains(t, stdout, "✓ Compiled Brewery request for sqlite")
	assert.Contains(t, stdout, "fingerprint ")
	assert.Contains(t, stdout, "SELECT")
	assert.Contains(t, stdout, `Args: ["Heineken"]`)
}

func TestCompileRequestJSON(t *testing.T) {
	cmd := NewCompileCommand(testRootOptions("json"))
	stdout, _, err := execute(cmd, requestFile("breweries.yaml"), "--dialect", "postgres")
	require.NoError(t, err)

	var resp struct {
		Status string            `json:"status"`
		Data   CompilationResult `json:"data"`
		Query  *QueryInfo        `json:"query"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Query)
	assert.Equal(t, resp.Data.Fingerprint, resp.Query.Fingerprint)
	assert.Equal(t, resp.Data.SessionID, resp.Query.SessionID)
	assert.Equal(t, "postgres", resp.Query.Dialect)
	assert.Equal(t, "Brewery", resp.Data.Type)
	assert.Equal(t, "postgres", resp.Data.Dialect)
	assert.Contains(t, resp.Data.SQL, "$1")
	assert.Equal(t, []any{"Heineken"}, resp.Data.Args)
	assert.Len(t, resp.Data.Fingerprint, 64)
	assert.NotEmpty(t, resp.Data.SessionID)
	assert.False(t, resp.Data.Batch)
}

func TestCompileFingerprintIsStable(t *testing.T) {
	compile := func() CompilationResult {
		cmd := NewCompileCommand(testRootOptions("json"))
		stdout, _, err := execute(cmd, requestFile("breweries.yaml"))
		require.NoError(t, err)
		var resp struct {
			Data CompilationResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
		return resp.Data
	}

	first, second := compile(), compile()
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.SQL, second.SQL)
}

func TestCompileBatchRequest(t *testing.T) {
	cmd := NewCompileCommand(testRootOptions("text"))
	stdout, _, err := execute(cmd, requestFile("by_id.yaml"), "--dialect", "mysql")
	require.NoError(t, err)
	assert.Contains(t, stdout, "✓ Compiled Brewery batch request for mysql")
}

func TestCompileOutputToFile(t *testing.T) {
	outputFile := filepath.Join(t.TempDir(), "breweries.sql")

	cmd := NewCompileCommand(testRootOptions("text"))
	stdout, _, err := execute(cmd, requestFile("breweries.yaml"), "--output", outputFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Wrote SQL to "+outputFile)

	data, err := os.ReadFile(outputFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SELECT")
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
		wantText string
	}{
		{
			name:     "unknown dialect",
			args:     []string{requestFile("breweries.yaml"), "--dialect", "oracle"},
			wantCode: ErrCodeInvalidDialect,
			wantText: "oracle",
		},
		{
			name:     "missing schema",
			args:     []string{requestFile("breweries.yaml"), "--schema", "/nonexistent/schema"},
			wantCode: "E005",
			wantText: "not found",
		},
		{
			name:     "missing request",
			args:     []string{requestFile("nope.yaml")},
			wantCode: ErrCodeRequestRead,
			wantText: "failed to read request file",
		},
		{
			name:     "unknown field",
			args:     []string{requestFile("unknown_field.yaml")},
			wantCode: ErrCodeConfiguration,
			wantText: "colour",
		},
		{
			name:     "unsupported operator",
			args:     []string{requestFile("greater_than.yaml")},
			wantCode: ErrCodeUnsupported,
			wantText: "gt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewCompileCommand(testRootOptions("text"))
			stdout, _, err := execute(cmd, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.wantCode)
			assert.Contains(t, stdout, "Error ["+tt.wantCode+"]")
			assert.Contains(t, stdout, tt.wantText)
		})
	}
}

func TestCompileErrorJSONCarriesPath(t *testing.T) {
	cmd := NewCompileCommand(testRootOptions("json"))
	stdout, _, err := execute(cmd, requestFile("unknown_field.yaml"))
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeConfiguration, resp.Error.Code)
	assert.Equal(t, "Beer.colour", resp.Error.Path)
	assert.Equal(t, "configuration", resp.Error.Category)
	assert.Equal(t, `type Beer has no field "colour"`, resp.Error.Message)
}

func TestCompileUnsupportedOperatorDetails(t *testing.T) {
	cmd := NewCompileCommand(testRootOptions("json"))
	stdout, _, err := execute(cmd, requestFile("greater_than.yaml"))
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeUnsupported, resp.Error.Code)
	assert.Equal(t, "unsupported_operation", resp.Error.Category)
	assert.Equal(t, "gt", resp.Error.Details.(map[string]any)["name"])
}

func TestCompileTextErrorShowsPath(t *testing.T) {
	cmd := NewCompileCommand(testRootOptions("text"))
	stdout, _, err := execute(cmd, requestFile("unknown_field.yaml"))
	require.Error(t, err)
	assert.Contains(t, stdout, "  at Beer.colour")
}

func TestCompilePlanJSON(t *testing.T) {
	cmd := NewCompileCommand(testRootOptions("json"))
	stdout, _, err := execute(cmd, requestFile("breweries.yaml"))
	require.NoError(t, err)

	var resp struct {
		Data struct {
			Plan map[string]any `json:"plan"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	plan := resp.Data.Plan
	assert.Equal(t, "collection", plan["kind"])
	assert.Equal(t, "Brewery", plan["path"])

	element := plan["element"].(map[string]any)
	assert.Equal(t, "object", element["kind"])
	members := element["members"].([]any)
	require.Len(t, members, 2)
	assert.Equal(t, "name", members[0].(map[string]any)["name"])
	beers := members[1].(map[string]any)
	assert.Equal(t, "beers", beers["name"])
	assert.Equal(t, "collection", beers["node"].(map[string]any)["kind"])
}

func TestCompileInvalidSchema(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(`
package bad

type: Brewery: {
	table: "brewery"
	fields: {
		beers: { type: "Beer", many: true, join: [{ parent: "id", child: "brewery_id" }] }
	}
}
`), 0644))

	cmd := NewCompileCommand(testRootOptions("text"))
	stdout, _, err := execute(cmd, requestFile("breweries.yaml"), "--schema", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stdout, "✗ Validation failed")
	assert.Contains(t, stdout, "E104")
}
