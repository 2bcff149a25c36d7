package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/mikey/mail-labeler/internal/adapters/gmail"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/di"
	"github.com/mikey/mail-labeler/internal/ingest"
	"github.com/mikey/mail-labeler/internal/ports"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// NewRootCmd creates the root labelctl command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "labelctl",
		Short:         "Inspect and train the mail labeler",
		Long:          "labelctl classifies messages, applies corrections and manages thresholds against the labeler's state store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("store", "", "store type override (memory, sqlite, mysql)")
	root.PersistentFlags().String("sqlite-path", "", "SQLite database path override")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable verbose output")
	root.PersistentFlags().Bool("json-log", false, "output logs in JSON format")

	root.AddCommand(
		newClassifyCmd(),
		newCorrectCmd(),
		newStatsCmd(),
		newExportCmd(),
		newSyncCmd(),
		newLearnCmd(),
		newThresholdsCmd(),
	)

	return root
}

// session is what a command works with. Source and Queue are nil without a
// message source.
type session struct {
	dig.In

	Logger     *zap.Logger
	Store      ports.StateStore
	Service    *core.LabelerService
	Thresholds *core.Thresholds
	Source     *gmail.Source
	Queue      *ingest.Queue
}

func cliFlags(cmd *cobra.Command, offline bool) *di.CLIFlags {
	flags := cmd.Root().PersistentFlags()
	configFile, _ := flags.GetString("config")
	storeType, _ := flags.GetString("store")
	sqlitePath, _ := flags.GetString("sqlite-path")
	verbose, _ := flags.GetBool("verbose")
	jsonLog, _ := flags.GetBool("json-log")

	return &di.CLIFlags{
		ConfigFile: configFile,
		StoreType:  storeType,
		SQLitePath: sqlitePath,
		Verbose:    verbose,
		JSONLog:    jsonLog,
		Offline:    offline,
	}
}

// withSession restores state, runs fn and writes state back once. Offline
// sessions never build a message source or suggester.
func withSession(cmd *cobra.Command, offline bool, fn func(ctx context.Context, s *session) error) error {
	container, err := di.BuildCLIContainer(cliFlags(cmd, offline))
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return container.Invoke(func(s session) (err error) {
		defer func() {
			if cerr := s.Store.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		defer s.Logger.Sync()

		if err := s.Service.Load(ctx); err != nil {
			return err
		}
		if s.Queue != nil {
			if err := s.Queue.Load(ctx); err != nil {
				return err
			}
		}

		runErr := fn(ctx, &s)

		if s.Source != nil {
			s.Source.Close()
		}
		// state is written even when ctx was cancelled
		if s.Queue != nil {
			if err := s.Queue.Close(context.Background()); err != nil && runErr == nil {
				runErr = err
			}
		}
		if err := s.Service.Close(context.Background()); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
