package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/flowbot/core/database"
	"github.com/m3rciful/flowbot/core/logger"
)

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if err := logger.InitLogger(&cfg.Config); err != nil {
				return err
			}
			defer logger.Shutdown()

			if err := database.RunMigrations(cfg.Database); err != nil {
				return err
			}
			version, dirty, err := database.MigrationVersion(cfg.Database)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}
