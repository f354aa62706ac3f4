package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parkerlabs/dilemma/internal/egress"
)

func newExportCommand() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <session.json.zst>",
		Short: "Re-export a session archive as CSV",
		Long: `Re-export a stored session archive as the flattened CSV table.

The archive is the lossless record of a session; this regenerates the CSV
view from it, for example after a backup file was lost or edited.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := egress.ReadArchive(args[0])
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = strings.TrimSuffix(args[0], ".json.zst") + ".csv"
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
				return err
			}

			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := egress.WriteCSV(f, payload); err != nil {
				f.Close() //nolint:errcheck
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d rows)\n", outPath, len(payload.Data))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output CSV path (default: next to the archive)")
	return cmd
}
