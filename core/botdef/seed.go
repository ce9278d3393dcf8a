package botdef

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/flowbot/core/logger"
)

// Seed copies every active definition from src into dst and returns how many were written.
func Seed(ctx context.Context, src Lister, dst Writer) (int, error) {
	defs, err := src.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("botdef: list: %w", err)
	}
	for _, def := range defs {
		if err := dst.Upsert(ctx, def); err != nil {
			return 0, fmt.Errorf("botdef: upsert %s: %w", def.ID, err)
		}
		logger.Info(logger.WithBot(ctx, def.ID), "db.seed", "botdef.seeded",
			slog.String("status", "ok"),
			slog.String("name", def.Name),
		)
	}
	return len(defs), nil
}
