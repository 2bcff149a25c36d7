package factory

import (
	"context"
	"fmt"

	"github.com/mikey/mail-labeler/internal/adapters/gmail"
	"github.com/mikey/mail-labeler/internal/config"
	"go.uber.org/zap"
)

// SourceFactory creates the remote message source
type SourceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(cfg *config.Config, logger *zap.Logger) *SourceFactory {
	return &SourceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSource returns nil when ingest.source is "none"
func (f *SourceFactory) CreateSource(ctx context.Context) (*gmail.Source, error) {
	source := f.cfg.GetIngest().Source

	switch source {
	case "none", "":
		f.logger.Info("No message source configured, ingestion disabled")
		return nil, nil
	case "gmail":
		gc := f.cfg.GetGmail()
		svc, err := gmail.NewService(ctx, gc)
		if err != nil {
			return nil, err
		}
		return gmail.NewSource(svc, gc, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported message source: %s", source)
	}
}
