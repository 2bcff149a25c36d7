package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey/mail-labeler/internal/adapters/gmail"
	"github.com/mikey/mail-labeler/internal/adapters/httpapi"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/ingest"
	"github.com/mikey/mail-labeler/internal/ports"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// DaemonParams are the components the daemon runs
type DaemonParams struct {
	dig.In

	Logger    *zap.Logger
	Store     ports.StateStore
	Service   *core.LabelerService
	Suggester core.LabelSuggester
	Filter    ports.EmailFilter
	Source    *gmail.Source
	Queue     *ingest.Queue
	Poller    *ingest.Poller
	HTTP      *httpapi.Server
}

// Daemon starts and stops the long-running components in order
type Daemon struct {
	p DaemonParams
}

// NewDaemon creates a daemon. Filter, Source, Queue, Poller and HTTP may be
// nil.
func NewDaemon(p DaemonParams) *Daemon {
	return &Daemon{p: p}
}

// Start restores persisted state, rebuilds the model once and starts the
// consumers and the ingestion ticker
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.p.Service.Load(ctx); err != nil {
		return err
	}
	if d.p.Queue != nil {
		if err := d.p.Queue.Load(ctx); err != nil {
			return err
		}
	}

	if d.p.Filter != nil {
		if err := d.p.Filter.Start(); err != nil {
			return fmt.Errorf("failed to start filter: %w", err)
		}
	}
	if d.p.HTTP != nil {
		if err := d.p.HTTP.Start(); err != nil {
			return err
		}
	}
	if d.p.Poller != nil {
		d.p.Poller.Start()
	}

	stats := d.p.Service.Stats()
	d.p.Logger.Info("Mail labeler started",
		zap.Int("samples", stats.Samples),
		zap.Strings("labels", stats.Labels),
		zap.Bool("ingestion", d.p.Queue != nil),
		zap.Bool("filter", d.p.Filter != nil),
		zap.Bool("http", d.p.HTTP != nil))
	return nil
}

// Shutdown stops the consumers, flushes pending persistence once and closes
// the store. It keeps going past failures and returns them joined.
func (d *Daemon) Shutdown(ctx context.Context) error {
	var errs []error

	if d.p.Poller != nil {
		d.p.Poller.Stop()
	}
	if d.p.Filter != nil {
		if err := d.p.Filter.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop filter: %w", err))
		}
	}
	if d.p.HTTP != nil {
		if err := d.p.HTTP.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if d.p.Source != nil {
		d.p.Source.Close()
	}
	if d.p.Queue != nil {
		if err := d.p.Queue.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.p.Service.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	if closer, ok := d.p.Suggester.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close suggester: %w", err))
		}
	}
	if err := d.p.Store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}

	return errors.Join(errs...)
}
