package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/m3rciful/flowbot/core/app"
	"github.com/m3rciful/flowbot/core/bootstrap"
	"github.com/m3rciful/flowbot/core/buildinfo"
	corecmd "github.com/m3rciful/flowbot/core/cmd"
	coreconfig "github.com/m3rciful/flowbot/core/config"
	"github.com/m3rciful/flowbot/core/logger"
)

const defaultConfigPath = "config.yaml"

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "flowbot",
		Short:         "Run block-graph conversation bots on Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "",
		"path to the YAML config (default $CONFIG_PATH or ./config.yaml)")

	root.AddCommand(
		newServeCmd(flags),
		newMigrateCmd(flags),
		newGraphCmd(flags),
		newSessionsCmd(flags),
		newVersionCmd(),
	)
	return root
}

func (f *rootFlags) load() (*app.Config, error) {
	path, err := corecmd.ResolveConfigPath(f.configPath, corecmd.DefaultConfigEnvVar, defaultConfigPath)
	if err != nil {
		return nil, err
	}
	return app.LoadConfig(path)
}

// bootstrapFor runs the shared pipeline. Without a database the process keeps
// sessions in memory and reads definitions from files.
func bootstrapFor(ctx context.Context, cfg *app.Config, memory bool) (*bootstrap.Result, error) {
	opts := bootstrap.Options{
		Config:       &cfg.Config,
		Database:     cfg.Database,
		Valkey:       cfg.Valkey,
		SkipDatabase: memory && cfg.Bots.Source == coreconfig.BotsSourceFiles,
	}
	if cfg.Bots.Seed && cfg.Bots.Source == coreconfig.BotsSourceDB {
		opts.Modules.Seeders = append(opts.Modules.Seeders, bootstrap.BotDefinitionSeeder(cfg.Bots.Dir))
	}
	return bootstrap.Run(ctx, opts)
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	var memory bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start every active bot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return corecmd.Run(corecmd.Options{
				ConfigPath:        flags.configPath,
				DefaultConfigPath: defaultConfigPath,
				LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
					return app.LoadConfig(path)
				},
				Bootstrap: func(ctx context.Context, c corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
					cfg := c.(*app.Config)
					res, err := bootstrapFor(ctx, cfg, memory)
					if err != nil {
						return nil, err
					}
					a, err := app.New(cfg, app.Options{DB: res.DB, Valkey: res.Valkey, Memory: memory})
					if err != nil {
						_ = res.Close()
						return nil, err
					}
					return a, nil
				},
			})
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "keep sessions in memory instead of the database")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
		},
	}
}

func newSessionsCmd(flags *rootFlags) *cobra.Command {
	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain stored sessions",
	}
	var olderThan time.Duration
	abandon := &cobra.Command{
		Use:   "abandon-stale",
		Short: "Mark idle active sessions as abandoned",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			res, err := bootstrapFor(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer logger.Shutdown()
			a, err := app.New(cfg, app.Options{DB: res.DB, Valkey: res.Valkey})
			if err != nil {
				_ = res.Close()
				return err
			}
			defer a.Close()

			n, err := a.AbandonStale(ctx, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "abandoned %d session(s)\n", n)
			return nil
		},
	}
	abandon.Flags().DurationVar(&olderThan, "older-than", 0, "idle time before a session is abandoned (default engine.stale_after_minutes)")

	var asAbandoned bool
	closeCmd := &cobra.Command{
		Use:   "close <session-id>",
		Short: "Close a session, releasing one held by a human operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			res, err := bootstrapFor(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer logger.Shutdown()
			a, err := app.New(cfg, app.Options{DB: res.DB, Valkey: res.Valkey})
			if err != nil {
				_ = res.Close()
				return err
			}
			defer a.Close()

			sess, err := a.CloseSession(ctx, args[0], asAbandoned)
			if err != nil {
				return fmt.Errorf("close session %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "session %s is now %s\n", sess.ID, sess.Status)
			return nil
		},
	}
	closeCmd.Flags().BoolVar(&asAbandoned, "abandon", false, "mark the session abandoned instead of completed")

	sessions.AddCommand(abandon, closeCmd)
	return sessions
}
