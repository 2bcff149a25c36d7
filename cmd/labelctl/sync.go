package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey/mail-labeler/internal/ingest"
	"github.com/spf13/cobra"
)

var errNoSource = errors.New("no message source configured")

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Ingest new messages from the remote source",
		Long: "Lists messages newer than the watermark and learns from them. A fetch " +
			"failure halts the run with the failed message kept at the head of the queue.",
		Args: cobra.NoArgs,
		RunE: runSync,
	}

	cmd.Flags().Bool("resume", false, "only process already queued messages")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	resume, _ := cmd.Flags().GetBool("resume")

	return withSession(cmd, false, func(ctx context.Context, s *session) error {
		if s.Queue == nil {
			return errNoSource
		}

		var (
			result *ingest.RunResult
			err    error
		)
		if resume {
			result, err = s.Queue.Resume(ctx)
			if result == nil && err == nil {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Nothing queued")
				return nil
			}
		} else {
			result, err = s.Queue.Run(ctx)
		}

		if result != nil {
			if werr := writeJSON(cmd.OutOrStdout(), result); werr != nil {
				return werr
			}
		}
		return err
	})
}

func newLearnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "learn <thread-id>",
		Short: "Learn from the labels of a thread's first message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, false, func(ctx context.Context, s *session) error {
				n, err := s.Service.LearnThread(ctx, args[0])
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added %d samples from thread %s\n", n, args[0])
				return nil
			})
		},
	}
}
