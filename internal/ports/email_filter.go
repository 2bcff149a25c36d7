package ports

import (
	"context"

	"github.com/mikey/mail-labeler/internal/core"
)

// EmailFilter labels inbound mail
type EmailFilter interface {
	// ProcessEmail predicts a label for an email and decides the action
	ProcessEmail(ctx context.Context, email *core.Email) (*core.LabelDecision, error)

	// Start starts the email filter service
	Start() error

	// Stop stops the email filter service
	Stop() error
}

// Labeler serves predictions to filters and the HTTP API
type Labeler interface {
	Predict(sender, subject string) core.Prediction
}

// ThresholdReader returns the current thresholds keyed by name
type ThresholdReader interface {
	All(ctx context.Context) (map[string]float64, error)
}
