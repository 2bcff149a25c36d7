package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/logging"
)

// CLIFlags contains the global command line flags of labelctl
type CLIFlags struct {
	ConfigFile string
	StoreType  string
	SQLitePath string
	Verbose    bool
	JSONLog    bool

	// Offline commands never reach a remote source or suggester
	Offline bool
}

// BuildCLIContainer creates and configures a dependency injection container
// for the CLI
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(loadCLIConfig); err != nil {
		return nil, err
	}

	if err := provideShared(container); err != nil {
		return nil, err
	}

	return container, nil
}

// loadCLIConfig reads the config file when one is given, otherwise the
// usual search path, then applies flag overrides
func loadCLIConfig(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.ConfigFile != "" {
		cfg, err = config.NewFromFile(flags.ConfigFile)
	} else {
		cfg, err = config.New()
	}
	if err != nil {
		return nil, err
	}
	if used := cfg.GetViper().ConfigFileUsed(); used != "" {
		logger.Debug("Loaded configuration from file", zap.String("file", used))
	}

	applyCLIFlags(cfg, flags)
	return cfg, nil
}

func applyCLIFlags(cfg *config.Config, flags *CLIFlags) {
	cfg.Set("server.filter_type", "cli")
	cfg.Set("cli.verbose", flags.Verbose)

	if flags.StoreType != "" {
		cfg.Set("store.type", flags.StoreType)
	}
	if flags.SQLitePath != "" {
		cfg.Set("store.sqlite_path", flags.SQLitePath)
	}
	if flags.Offline {
		cfg.Set("ingest.source", "none")
		cfg.Set("llm.enabled", false)
	}
}
