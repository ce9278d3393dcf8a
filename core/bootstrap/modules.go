package bootstrap

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/flowbot/core/botdef"
	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/storage"
)

// Seeder loads reference data into the database.
type Seeder interface {
	Seed(ctx context.Context, db *sqlx.DB) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context, db *sqlx.DB) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context, db *sqlx.DB) error {
	return f(ctx, db)
}

// Modules groups optional bootstrapping hooks.
type Modules struct {
	Seeders []Seeder
}

// BotDefinitionSeeder upserts every YAML definition found in dir into the bots table.
func BotDefinitionSeeder(dir string) Seeder {
	return SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
		src, err := botdef.NewFileStore(dir)
		if err != nil {
			return err
		}
		n, err := botdef.Seed(ctx, src, storage.NewBots(db))
		if err != nil {
			return err
		}
		logger.SEED.LogAttrs(ctx, slog.LevelInfo, "seed.bots",
			slog.String("status", "ok"),
			slog.String("dir", dir),
			slog.Int("count", n),
		)
		return nil
	})
}
