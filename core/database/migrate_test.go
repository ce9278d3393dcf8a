package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	files := embeddedMigrations()
	require.NotEmpty(t, files)
	assert.Equal(t, uint64(1), files[0].version)
	assert.Equal(t, "0001_init.up.sql", files[0].name)
}

func TestNamesBetween(t *testing.T) {
	files := []migrationFile{{1, "0001_a.up.sql"}, {2, "0002_b.up.sql"}, {3, "0003_c.up.sql"}}
	assert.Equal(t, []string{"0002_b.up.sql", "0003_c.up.sql"}, namesBetween(files, 1, 3))
	assert.Nil(t, namesBetween(files, 3, 3))
}

func TestRunMigrationsSQLiteIsIdempotent(t *testing.T) {
	cfg := Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "nested", "flowbot.db")}

	v, dirty, err := MigrationVersion(cfg)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	require.NoError(t, RunMigrations(cfg))
	require.NoError(t, RunMigrations(cfg))

	v, dirty, err = MigrationVersion(cfg)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	db, err := Connect(cfg)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM bots`))
	assert.Zero(t, n)
}
