package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newThresholdsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Show or change confidence thresholds",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get [name]",
			Short: "Show one threshold, or all of them",
			Args:  cobra.MaximumNArgs(1),
			RunE:  runThresholdsGet,
		},
		&cobra.Command{
			Use:   "set <name> <value>",
			Short: "Change a threshold",
			Args:  cobra.ExactArgs(2),
			RunE:  runThresholdsSet,
		},
	)

	return cmd
}

func runThresholdsGet(cmd *cobra.Command, args []string) error {
	return withSession(cmd, true, func(ctx context.Context, s *session) error {
		if len(args) == 1 {
			v, err := s.Thresholds.Get(ctx, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", args[0], strconv.FormatFloat(v, 'f', -1, 64))
			return nil
		}

		all, err := s.Thresholds.All(ctx)
		if err != nil {
			return err
		}
		for _, name := range s.Thresholds.Names() {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", name, strconv.FormatFloat(all[name], 'f', -1, 64))
		}
		return nil
	})
}

func runThresholdsSet(cmd *cobra.Command, args []string) error {
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("threshold must be a number: %w", err)
	}

	return withSession(cmd, true, func(ctx context.Context, s *session) error {
		return s.Thresholds.Set(ctx, args[0], value)
	})
}
