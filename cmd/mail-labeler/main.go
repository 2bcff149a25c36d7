package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mikey/mail-labeler/internal/di"
	"go.uber.org/zap"
)

// shutdownTimeout bounds the final flush and server shutdown
const shutdownTimeout = 15 * time.Second

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(logger *zap.Logger, daemon *di.Daemon) error {
	defer logger.Sync()

	if err := daemon.Start(context.Background()); err != nil {
		// no flush here: state that failed to load must not overwrite the store
		logger.Error("Failed to start", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("Shutting down...", zap.String("signal", sig.String()))

	shutdown(logger, daemon)
	return nil
}

func shutdown(logger *zap.Logger, daemon *di.Daemon) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := daemon.Shutdown(ctx); err != nil {
		logger.Error("Shutdown finished with errors", zap.Error(err))
		return
	}
	logger.Info("Shutdown complete")
}
