package ports

import (
	"context"

	"github.com/mikey/mail-labeler/internal/core"
	"go.uber.org/zap"
)

// Decide predicts a label for email and maps its confidence onto an action.
// If the thresholds cannot be read the decision carries no action.
func Decide(ctx context.Context, labeler Labeler, thresholds ThresholdReader, email *core.Email, logger *zap.Logger) *core.LabelDecision {
	p := labeler.Predict(email.From, email.Subject)
	decision := &core.LabelDecision{Prediction: p}

	th, err := thresholds.All(ctx)
	if err != nil {
		logger.Warn("Failed to read thresholds, omitting action",
			zap.String("sender", email.From),
			zap.Error(err))
		return decision
	}
	decision.Action = core.Action(p.Confidence, th)
	return decision
}
