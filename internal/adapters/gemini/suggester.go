package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/utils"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Suggester asks a Gemini model to pick a label
type Suggester struct {
	client        *genai.Client
	model         *genai.GenerativeModel
	modelName     string
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewSuggester creates a Gemini client and model from cfg. Extra client
// options are appended after the API key.
func NewSuggester(ctx context.Context, cfg config.GeminiConfig, logger *zap.Logger, textProcessor *utils.TextProcessor, opts ...option.ClientOption) (*Suggester, error) {
	clientOpts := append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.ModelName)
	model.SetTemperature(cfg.Temperature)
	model.SetTopP(cfg.TopP)
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(utils.SystemPrompt))

	return &Suggester{
		client:        client,
		model:         model,
		modelName:     cfg.ModelName,
		logger:        logger,
		textProcessor: textProcessor,
	}, nil
}

// Close closes the Gemini client
func (s *Suggester) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// SuggestLabel implements core.LabelSuggester
func (s *Suggester) SuggestLabel(ctx context.Context, req *core.LabelRequest) (*core.LabelSuggestion, error) {
	prompt := utils.BuildLabelPrompt(req, s.textProcessor)

	resp, err := s.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return nil, fmt.Errorf("empty response from Gemini")
	}

	suggestion, err := utils.ParseLabelResponse(text, s.modelName)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Gemini suggested label",
		zap.String("label", suggestion.Label),
		zap.Float64("confidence", suggestion.Confidence))
	return suggestion, nil
}

// responseText joins the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}
