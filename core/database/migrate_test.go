package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	require.Equal(t, uint64(1), parseVersion("000001_create_registrations.up.sql"))
	require.Equal(t, uint64(20250101), parseVersion("20250101_seed.up.sql"))
	require.Zero(t, parseVersion("readme.md"))
}

func TestSelectApplied(t *testing.T) {
	files := []string{"000001_a.up.sql", "000002_b.up.sql", "000003_c.up.sql"}

	require.Equal(t, []string{"000002_b.up.sql", "000003_c.up.sql"}, selectApplied(files, 1, 3))
	require.Empty(t, selectApplied(files, 3, 3))
	require.Empty(t, selectApplied(files, 3, 1))
}

func TestListMigrationFilesOnlyUp(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000002_b.up.sql", "000001_a.up.sql", "000001_a.down.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.up.sql"), 0o755))

	require.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, listMigrationFiles(dir))
}

func TestConfigURLEscapesCredentials(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "p@ss word", Name: "fingames"}

	require.Equal(t, "postgres://bot:p%40ss%20word@db:5432/fingames?sslmode=disable", cfg.URL())
	require.Contains(t, cfg.DSN(), "sslmode=disable")
}
