package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/flowbot/core/config"
	coredatabase "github.com/m3rciful/flowbot/core/database"
	"github.com/m3rciful/flowbot/core/storage"
)

func noLogger(*coreconfig.Config) error { return nil }

func TestRunMigratesConnectsAndSeeds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "support.yaml"), []byte(`id: support
token: "1:x"
blocks:
  - id: "1"
    action: send_text
    text: hi
`), 0o600))

	dbCfg := coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: filepath.Join(t.TempDir(), "boot.db")}
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   dbCfg,
		LoggerInit: noLogger,
		Modules:    Modules{Seeders: []Seeder{BotDefinitionSeeder(dir)}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = res.Close() })
	require.NotNil(t, res.DB)
	assert.Nil(t, res.Valkey)

	def, err := storage.NewBots(res.DB).Load(context.Background(), "support")
	require.NoError(t, err)
	assert.Equal(t, "1:x", def.Token)

	version, dirty, err := coredatabase.MigrationVersion(dbCfg)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)
}

func TestRunWithoutDatabase(t *testing.T) {
	called := false
	res, err := Run(context.Background(), Options{
		Config:       &coreconfig.Config{},
		SkipDatabase: true,
		LoggerInit:   noLogger,
		Connect: func(coredatabase.Config) (*sqlx.DB, error) {
			called = true
			return nil, errors.New("unexpected")
		},
	})
	require.NoError(t, err)
	assert.Nil(t, res.DB)
	assert.False(t, called)
}

func TestRunStopsOnFailure(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	assert.Error(t, err)

	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		LoggerInit: noLogger,
		Migrate:    func(coredatabase.Config) error { return errors.New("boom") },
	})
	assert.ErrorContains(t, err, "migrations failed")

	seedErr := SeederFunc(func(context.Context, *sqlx.DB) error { return errors.New("bad seed") })
	_, err = Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: filepath.Join(t.TempDir(), "x.db")},
		LoggerInit: noLogger,
		Modules:    Modules{Seeders: []Seeder{seedErr}},
	})
	assert.ErrorContains(t, err, "seeding failed")
}
