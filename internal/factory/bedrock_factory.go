package factory

import (
	"context"

	"github.com/mikey/mail-labeler/internal/adapters/bedrock"
	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/utils"
	"go.uber.org/zap"
)

// BedrockFactory creates Bedrock label suggesters
type BedrockFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewBedrockFactory creates a new Bedrock factory
func NewBedrockFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *BedrockFactory {
	return &BedrockFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateSuggester creates a Bedrock suggester using the default AWS
// credential chain
func (f *BedrockFactory) CreateSuggester(ctx context.Context) (*bedrock.Suggester, error) {
	bc := f.cfg.GetBedrock()
	client, err := bedrock.NewRuntimeClient(ctx, bc.Region)
	if err != nil {
		return nil, err
	}
	return bedrock.NewSuggester(client, bc, f.logger, f.textProcessor), nil
}
