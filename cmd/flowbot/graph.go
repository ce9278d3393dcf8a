package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/m3rciful/flowbot/core/botdef"
	"github.com/m3rciful/flowbot/core/graph"
	"github.com/m3rciful/flowbot/core/logger"
	"github.com/m3rciful/flowbot/core/storage"
)

func newGraphCmd(flags *rootFlags) *cobra.Command {
	g := &cobra.Command{
		Use:   "graph",
		Short: "Validate and import bot definitions",
	}
	g.AddCommand(
		&cobra.Command{
			Use:   "validate <file>",
			Short: "Check a YAML bot definition",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				def, gr, err := readDefinition(args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s: %d block(s), %d trigger(s)\n", def.ID, gr.Len(), len(gr.Triggers()))
				for _, w := range gr.Warnings() {
					fmt.Fprintf(out, "warning: %s\n", w)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "import <file>",
			Short: "Upsert a YAML bot definition into the database",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				def, _, err := readDefinition(args[0])
				if err != nil {
					return err
				}
				cfg, err := flags.load()
				if err != nil {
					return err
				}
				res, err := bootstrapFor(cmd.Context(), cfg, false)
				if err != nil {
					return err
				}
				defer logger.Shutdown()
				defer res.Close()

				if err := storage.NewBots(res.DB).Upsert(cmd.Context(), *def); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %s\n", def.ID)
				return nil
			},
		},
	)
	return g
}

func readDefinition(path string) (*botdef.Definition, *graph.Graph, error) {
	def, err := botdef.ReadDocument(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	g, err := graph.Parse(def.Blocks)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, g, nil
}
