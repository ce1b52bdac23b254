package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/nestql/internal/testutil"
)

func testRunOptions(t *testing.T, format string) *RunOptions {
	t.Helper()
	return &RunOptions{
		RootOptions: testRootOptions(format),
		Sessions:    testutil.NewFixedSessionGenerator("run-session"),
	}
}

func TestRunRequest(t *testing.T) {
	db := seedDatabase(t)
	opts := testRunOptions(t, "text")
	stdout, stderr, err := execute(newRunCommand(opts), requestFile("breweries.yaml"), "--db", db)
	require.NoError(t, err)

	var results []any
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	assert.Equal(t, []any{
		map[string]any{
			"name":  "Heineken",
			"beers": []any{map[string]any{"name": "IPA"}, map[string]any{"name": "Lager"}},
		},
	}, results)
	assert.Contains(t, stderr, "✓ 1 result(s)")
}

func TestRunRequestJSON(t *testing.T) {
	db := seedDatabase(t)
	opts := testRunOptions(t, "json")
	stdout, _, err := execute(newRunCommand(opts), requestFile("breweries.yaml"), "--db", "sqlite://"+db)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Query  *QueryInfo `json:"query"`
		Data   RunResult  `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotNil(t, resp.Query)
	assert.Equal(t, "run-session", resp.Query.SessionID)
	assert.Equal(t, "sqlite", resp.Query.Dialect)
	assert.Equal(t, "run-session", resp.Data.SessionID)
	assert.Equal(t, 1, resp.Data.Count)
	assert.Len(t, resp.Data.Fingerprint, 64)
}

func TestRunAverageIsPrintedAsNumber(t *testing.T) {
	db := seedDatabase(t)
	stdout, _, err := execute(newRunCommand(testRunOptions(t, "text")), requestFile("stats.yaml"), "--db", db)
	require.NoError(t, err)

	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 1)
	assert.Equal(t, map[string]any{"beers": float64(2), "average_abv": 52.5}, results[0]["stats"])
}

func TestRunKeyed(t *testing.T) {
	db := seedDatabase(t)
	stdout, _, err := execute(newRunCommand(testRunOptions(t, "text")), requestFile("by_id.yaml"), "--db", db, "--keyed")
	require.NoError(t, err)

	var results []KeyedValue
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	require.Len(t, results, 2)
	assert.Equal(t, map[string]any{"id": float64(1)}, results[0].Key)
	assert.Equal(t, map[string]any{"name": "Heineken"}, results[0].Value)
	assert.Equal(t, map[string]any{"id": float64(2)}, results[1].Key)
	assert.Nil(t, results[1].Value)
}

func TestRunKeyedNeedsKeys(t *testing.T) {
	db := seedDatabase(t)
	stdout, _, err := execute(newRunCommand(testRunOptions(t, "text")), requestFile("breweries.yaml"), "--db", db, "--keyed")
	require.Error(t, err)
	assert.Contains(t, stdout, "--keyed needs a request with keys")
}

func TestRunBatchSize(t *testing.T) {
	db := seedDatabase(t)
	stdout, _, err := execute(newRunCommand(testRunOptions(t, "text")), requestFile("by_id.yaml"), "--db", db, "--batch-size", "1")
	require.NoError(t, err)

	var results []any
	require.NoError(t, json.Unmarshal([]byte(stdout), &results))
	assert.Equal(t, []any{map[string]any{"name": "Heineken"}, nil}, results)
}

func TestRunBatchSizeKeyed(t *testing.T) {
	db := seedDatabase(t)
	for _, size := range []string{"1", "2", "10"} {
		t.Run("size_"+size, func(t *testing.T) {
			stdout, _, err := execute(newRunCommand(testRunOptions(t, "text")), requestFile("by_id.yaml"), "--db", db, "--keyed", "--batch-size", size)
			require.NoError(t, err)

			var results []KeyedValue
			require.NoError(t, json.Unmarshal([]byte(stdout), &results))
			require.Len(t, results, 2)
			assert.Equal(t, map[string]any{"id": float64(1)}, results[0].Key)
			assert.Equal(t, map[string]any{"name": "Heineken"}, results[0].Value)
			assert.Equal(t, map[string]any{"id": float64(2)}, results[1].Key)
			assert.Nil(t, results[1].Value)
		})
	}
}

func TestRunBatchSizeNeedsKeys(t *testing.T) {
	db := seedDatabase(t)
	stdout, _, err := execute(newRunCommand(testRunOptions(t, "text")), requestFile("breweries.yaml"), "--db", db, "--batch-size", "5")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stdout, "--batch-size needs a request with keys")
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name     string
		request  string
		db       func(t *testing.T) string
		wantCode string
	}{
		{
			name:     "no database",
			request:  "breweries.yaml",
			db:       func(*testing.T) string { return "" },
			wantCode: ErrCodeDatabase,
		},
		{
			name:     "missing tables",
			request:  "breweries.yaml",
			db:       func(t *testing.T) string { return filepath.Join(t.TempDir(), "empty.db") },
			wantCode: ErrCodeQueryFailed,
		},
		{
			name:     "assembly invariant",
			request:  "flagship.yaml",
			db:       seedDatabase,
			wantCode: ErrCodeAssemblyInvariant,
		},
		{
			name:     "configuration",
			request:  "unknown_field.yaml",
			db:       seedDatabase,
			wantCode: ErrCodeConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := []string{requestFile(tt.request)}
			if db := tt.db(t); db != "" {
				args = append(args, "--db", db)
			}
			stdout, _, err := execute(newRunCommand(testRunOptions(t, "text")), args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, stdout, "Error ["+tt.wantCode+"]")
		})
	}
}
