package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mikey/mail-labeler/internal/adapters/filter"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Predict a label for a message",
		Long: "Predict a label for a message given as --sender/--subject, or read an " +
			"RFC 5322 message from --file or stdin.",
		Args: cobra.NoArgs,
		RunE: runClassify,
	}

	cmd.Flags().String("sender", "", "sender address")
	cmd.Flags().String("subject", "", "subject line")
	cmd.Flags().StringP("file", "f", "", "message file (stdin if not specified)")

	return cmd
}

func runClassify(cmd *cobra.Command, _ []string) error {
	sender, _ := cmd.Flags().GetString("sender")
	subject, _ := cmd.Flags().GetString("subject")
	file, _ := cmd.Flags().GetString("file")
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")

	return withSession(cmd, true, func(ctx context.Context, s *session) error {
		cli := filter.NewCliFilter(s.Service, s.Thresholds, s.Logger, cmd.OutOrStdout(), verbose)

		if sender != "" || subject != "" {
			_, err := cli.ProcessEmail(ctx, &core.Email{From: sender, Subject: subject})
			return err
		}

		var r io.Reader = cmd.InOrStdin()
		if file != "" {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("failed to open input file: %w", err)
			}
			defer f.Close()
			r = f
		}
		_, err := cli.ProcessReader(ctx, r)
		return err
	})
}
