package di

import (
	"go.uber.org/dig"

	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/logging"
)

// BuildContainer creates and configures a dependency injection container
// for the daemon
func BuildContainer() (*dig.Container, error) {
	return buildContainer(config.New)
}

func buildContainer(newConfig any) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(newConfig); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideShared(container); err != nil {
		return nil, err
	}

	// Register daemon-only components
	for _, p := range []any{newPoller, newRegistry, newHTTPServer, NewDaemon} {
		if err := container.Provide(p); err != nil {
			return nil, err
		}
	}

	return container, nil
}
