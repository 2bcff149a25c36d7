package factory

import (
	"fmt"

	"github.com/mikey/mail-labeler/internal/adapters/openai"
	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/utils"
	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIFactory creates OpenAI label suggesters
type OpenAIFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIFactory creates a new OpenAI factory
func NewOpenAIFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *OpenAIFactory {
	return &OpenAIFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateSuggester creates an OpenAI suggester
func (f *OpenAIFactory) CreateSuggester() (*openai.Suggester, error) {
	oc := f.cfg.GetOpenAI()
	if oc.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	return openai.NewSuggester(goopenai.NewClient(oc.APIKey), oc, f.logger, f.textProcessor), nil
}
