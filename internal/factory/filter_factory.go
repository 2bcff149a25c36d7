package factory

import (
	"fmt"
	"os"

	"github.com/mikey/mail-labeler/internal/adapters/filter"
	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/ports"
	"go.uber.org/zap"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg        *config.Config
	logger     *zap.Logger
	labeler    ports.Labeler
	thresholds ports.ThresholdReader
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, labeler ports.Labeler, thresholds ports.ThresholdReader) *FilterFactory {
	return &FilterFactory{
		cfg:        cfg,
		logger:     logger,
		labeler:    labeler,
		thresholds: thresholds,
	}
}

// CreateEmailFilter creates the filter named by server.filter_type. It
// returns nil for "none".
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	sc := f.cfg.GetServer()

	switch sc.FilterType {
	case "smtp":
		return filter.NewSMTPFilter(f.labeler, f.thresholds, f.logger, filter.SMTPConfig{
			ListenAddress: sc.ListenAddress,
			Headers: filter.HeaderNames{
				Label:      sc.LabelHeader,
				Confidence: sc.ConfidenceHeader,
				Action:     sc.ActionHeader,
			},
			ForwardAddress: sc.ForwardAddress,
			ForwardPort:    sc.ForwardPort,
			ForwardEnabled: sc.ForwardEnabled,
		}), nil
	case "cli":
		return f.CreateCliFilter(), nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported filter type: %s", sc.FilterType)
	}
}

// CreateCliFilter creates a filter printing to stdout
func (f *FilterFactory) CreateCliFilter() *filter.CliFilter {
	return filter.NewCliFilter(f.labeler, f.thresholds, f.logger, os.Stdout, f.cfg.GetBool("cli.verbose"))
}
