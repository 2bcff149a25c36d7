package factory

import (
	"context"
	"fmt"

	"github.com/mikey/mail-labeler/internal/adapters/gemini"
	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/utils"
	"go.uber.org/zap"
)

// GeminiFactory creates Gemini label suggesters
type GeminiFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewGeminiFactory creates a new Gemini factory
func NewGeminiFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *GeminiFactory {
	return &GeminiFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateSuggester creates a Gemini suggester. The caller closes it.
func (f *GeminiFactory) CreateSuggester(ctx context.Context) (*gemini.Suggester, error) {
	gc := f.cfg.GetGemini()
	if gc.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	return gemini.NewSuggester(ctx, gc, f.logger, f.textProcessor)
}
