package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/utils"
	"go.uber.org/zap"
)

// LLMFactory creates the label suggester for the configured provider
type LLMFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	openai  *OpenAIFactory
	gemini  *GeminiFactory
	bedrock *BedrockFactory
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:     cfg,
		logger:  logger,
		openai:  NewOpenAIFactory(cfg, logger, textProcessor),
		gemini:  NewGeminiFactory(cfg, logger, textProcessor),
		bedrock: NewBedrockFactory(cfg, logger, textProcessor),
	}
}

// CreateSuggester returns nil when llm.enabled is false. Every call to the
// returned suggester is bounded by llm.timeout.
func (f *LLMFactory) CreateSuggester(ctx context.Context) (core.LabelSuggester, error) {
	lc := f.cfg.GetLLM()
	if !lc.Enabled {
		return nil, nil
	}

	var (
		s   core.LabelSuggester
		err error
	)
	switch lc.Provider {
	case "openai":
		s, err = f.openai.CreateSuggester()
	case "gemini":
		s, err = f.gemini.CreateSuggester(ctx)
	case "bedrock":
		s, err = f.bedrock.CreateSuggester(ctx)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", lc.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s suggester: %w", lc.Provider, err)
	}

	f.logger.Info("Label suggestion enabled",
		zap.String("provider", lc.Provider),
		zap.Float64("min_confidence", lc.MinConfidence))
	return &TimeoutSuggester{Suggester: s, Timeout: lc.Timeout}, nil
}

// TimeoutSuggester bounds each suggestion call
type TimeoutSuggester struct {
	Suggester core.LabelSuggester
	Timeout   time.Duration
}

// SuggestLabel implements core.LabelSuggester
func (t *TimeoutSuggester) SuggestLabel(ctx context.Context, req *core.LabelRequest) (*core.LabelSuggestion, error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	return t.Suggester.SuggestLabel(ctx, req)
}

// Close closes the wrapped suggester if it holds a client
func (t *TimeoutSuggester) Close() error {
	if c, ok := t.Suggester.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
