package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dilemma",
		Short: "Dilemma - runner for timed decision-making studies",
		Long: `Dilemma runs configurable behavioral studies: consent, rating scales,
timed trade-off choices, and persistence puzzles, defined in a study.yaml.

Sessions run in the terminal or in a browser, and every session ends with a
local CSV backup plus optional remote delivery.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if *debugLogging {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}

	// Add subcommands
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newValidateCommand())
	cmd.AddCommand(newExportCommand())

	return cmd
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
