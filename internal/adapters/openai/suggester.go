package openai

import (
	"context"
	"fmt"

	"github.com/mikey/mail-labeler/internal/config"
	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Suggester asks an OpenAI chat model to pick a label
type Suggester struct {
	client        *openai.Client
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewSuggester creates a Suggester on top of client
func NewSuggester(client *openai.Client, cfg config.OpenAIConfig, logger *zap.Logger, textProcessor *utils.TextProcessor) *Suggester {
	return &Suggester{
		client:        client,
		modelName:     cfg.ModelName,
		maxTokens:     cfg.MaxTokens,
		temperature:   cfg.Temperature,
		topP:          cfg.TopP,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// SuggestLabel implements core.LabelSuggester
func (s *Suggester) SuggestLabel(ctx context.Context, req *core.LabelRequest) (*core.LabelSuggestion, error) {
	prompt := utils.BuildLabelPrompt(req, s.textProcessor)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: utils.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
		TopP:        s.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from OpenAI")
	}

	suggestion, err := utils.ParseLabelResponse(resp.Choices[0].Message.Content, s.modelName)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("OpenAI suggested label",
		zap.String("label", suggestion.Label),
		zap.Float64("confidence", suggestion.Confidence),
		zap.String("response_id", resp.ID))
	return suggestion, nil
}
