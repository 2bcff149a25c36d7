package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCorrectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "correct",
		Short: "Record the right label for a message",
		Args:  cobra.NoArgs,
		RunE:  runCorrect,
	}

	cmd.Flags().String("sender", "", "sender address")
	cmd.Flags().String("subject", "", "subject line")
	cmd.Flags().String("label", "", "correct label")
	_ = cmd.MarkFlagRequired("label")

	return cmd
}

func runCorrect(cmd *cobra.Command, _ []string) error {
	sender, _ := cmd.Flags().GetString("sender")
	subject, _ := cmd.Flags().GetString("subject")
	label, _ := cmd.Flags().GetString("label")

	return withSession(cmd, true, func(_ context.Context, s *session) error {
		if err := s.Service.Correct(sender, subject, label); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Recorded %q for %s\n", label, sender)
		return nil
	})
}
