package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parkerlabs/dilemma/internal/study"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <study.yaml>",
		Short: "Validate a study configuration",
		Long: `Validate a study configuration without running it.

Checks the schema, resolves CSV item pools, and verifies integrity rules
such as unique item IDs and answers on solvable puzzles.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := study.Load(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is valid\n", args[0])
			fmt.Fprintf(out, "  study:     %s (%s)\n", cfg.Meta.Name, cfg.Meta.Version)
			fmt.Fprintf(out, "  tradeoffs: %d\n", len(cfg.Tradeoffs.Items))
			fmt.Fprintf(out, "  anagrams:  %d\n", len(cfg.Anagrams.Items))
			return nil
		},
	}
}
