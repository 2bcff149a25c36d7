package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show model and training set statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, true, func(_ context.Context, s *session) error {
				return writeJSON(cmd.OutOrStdout(), s.Service.Stats())
			})
		},
	}
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the training set and sender memory as JSON",
		Args:  cobra.NoArgs,
		RunE:  runExport,
	}

	cmd.Flags().StringP("out", "o", "", "output file (stdout if not specified)")

	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	out, _ := cmd.Flags().GetString("out")

	return withSession(cmd, true, func(_ context.Context, s *session) error {
		data := s.Service.Export()
		if out == "" {
			return writeJSON(cmd.OutOrStdout(), data)
		}

		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := writeJSON(f, data); err != nil {
			f.Close()
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to write %s: %w", out, err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d samples to %s\n", len(data.Dataset), out)
		return nil
	})
}
