package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mikey/mail-labeler/internal/core"
)

// MaxPromptFieldSize bounds the sender and subject embedded in a prompt
const MaxPromptFieldSize = 512

// SystemPrompt is sent as the system role where the provider supports one
const SystemPrompt = "You are an email labeling system. Respond only with JSON."

const labelPromptFormat = `You are an email labeling system. Choose the single best label for the email below from this list: %s.
Respond with a JSON object containing:
- label: string (exactly one of the listed labels)
- confidence: number between 0 and 1 (how confident you are in the choice)
- explanation: string (brief reason for the choice)

Email:
From: %s
Subject: %s

Respond only with the JSON object and nothing else.`

// ErrNoJSON is returned when a provider response holds no JSON object
var ErrNoJSON = errors.New("no JSON object in response")

// labelResponse is the structured answer requested from every provider
type labelResponse struct {
	Label       string  `json:"label"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// BuildLabelPrompt renders the label request as a provider prompt
func BuildLabelPrompt(req *core.LabelRequest, tp *TextProcessor) string {
	quoted := make([]string, len(req.Labels))
	for i, l := range req.Labels {
		quoted[i] = strconv.Quote(l)
	}
	return fmt.Sprintf(labelPromptFormat,
		strings.Join(quoted, ", "),
		tp.ProcessText(req.Sender, MaxPromptFieldSize),
		tp.ProcessText(req.Subject, MaxPromptFieldSize))
}

// ExtractJSON returns the outermost {...} span of text
func ExtractJSON(text string) (string, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", ErrNoJSON
	}
	return text[start : end+1], nil
}

// ParseLabelResponse decodes a provider answer, tolerating prose around the
// JSON object
func ParseLabelResponse(text, modelUsed string) (*core.LabelSuggestion, error) {
	var resp labelResponse
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		raw, extractErr := ExtractJSON(text)
		if extractErr != nil {
			return nil, fmt.Errorf("failed to extract JSON from LLM response: %w", extractErr)
		}
		if err := json.Unmarshal([]byte(raw), &resp); err != nil {
			return nil, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
	}
	if strings.TrimSpace(resp.Label) == "" {
		return nil, fmt.Errorf("LLM response names no label")
	}

	return &core.LabelSuggestion{
		Label:       strings.TrimSpace(resp.Label),
		Confidence:  min(max(resp.Confidence, 0), 1),
		Explanation: resp.Explanation,
		ModelUsed:   modelUsed,
	}, nil
}
