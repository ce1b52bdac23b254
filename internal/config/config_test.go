package config

import (
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useMemFs swaps AppFs for an in-memory filesystem for one test.
func useMemFs(t *testing.T) afero.Fs {
	t.Helper()
	prev := AppFs
	fs := afero.NewMemMapFs()
	AppFs = fs
	t.Cleanup(func() { AppFs = prev })

	// Keep tests independent of the developer's environment.
	for _, k := range []string{"NESTQL_DIALECT", "NESTQL_DATABASE", "NESTQL_SCHEMA", "NESTQL_LOG_LEVEL", "NESTQL_LOG_FORMAT", "DATABASE_URL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("HOME", "/home/nobody")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	useMemFs(t)

	cfg, err := Load(Options{Dir: "/work"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, "schema", cfg.Schema)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.Database)
	assert.Empty(t, cfg.File)
}

func TestLoadConfigFile(t *testing.T) {
	fs := useMemFs(t)
	require.NoError(t, afero.WriteFile(fs, "/work/.nestql.yaml", []byte(`
dialect: sqlite
database: ":memory:"
schema: types
log_level: debug
`), 0644))

	cfg, err := Load(Options{Dir: "/work"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Dialect)
	assert.Equal(t, ":memory:", cfg.Database)
	assert.Equal(t, "types", cfg.Schema)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/work/.nestql.yaml", cfg.File)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	fs := useMemFs(t)
	require.NoError(t, afero.WriteFile(fs, "/work/.nestql.yaml", []byte("dialect: sqlite\n"), 0644))
	t.Setenv("NESTQL_DIALECT", "mysql")

	cfg, err := Load(Options{Dir: "/work"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Dialect)
}

func TestLoadExplicitFile(t *testing.T) {
	fs := useMemFs(t)
	require.NoError(t, afero.WriteFile(fs, "/etc/nestql.yaml", []byte("schema: /srv/schema\n"), 0644))

	cfg, err := Load(Options{ConfigFile: "/etc/nestql.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "/srv/schema", cfg.Schema)

	_, err = Load(Options{ConfigFile: "/etc/missing.yaml"})
	assert.ErrorContains(t, err, "read config")
}

func TestLoadDotenvFiles(t *testing.T) {
	fs := useMemFs(t)
	require.NoError(t, afero.WriteFile(fs, "/work/.env", []byte("NESTQL_DATABASE=file:dev.db\nNESTQL_SCHEMA=env-schema\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/work/.env.local", []byte("NESTQL_SCHEMA=local-schema\n"), 0644))

	cfg, err := Load(Options{Dir: "/work"})
	require.NoError(t, err)
	assert.Equal(t, "file:dev.db", cfg.Database)
	assert.Equal(t, "local-schema", cfg.Schema)
}

func TestLoadDotenvKeepsExistingEnv(t *testing.T) {
	fs := useMemFs(t)
	require.NoError(t, afero.WriteFile(fs, "/work/.env", []byte("NESTQL_DIALECT=sqlite\n"), 0644))
	t.Setenv("NESTQL_DIALECT", "mysql")

	cfg, err := Load(Options{Dir: "/work"})
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Dialect)
}

func TestLoadDatabaseURLFallback(t *testing.T) {
	useMemFs(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/beer")

	cfg, err := Load(Options{Dir: "/work"})
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/beer", cfg.Database)
}
