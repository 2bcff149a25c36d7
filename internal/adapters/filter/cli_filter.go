package filter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mikey/mail-labeler/internal/core"
	"github.com/mikey/mail-labeler/internal/ports"
	"go.uber.org/zap"
)

// CliFilter labels a single message and prints the result
type CliFilter struct {
	labeler    ports.Labeler
	thresholds ports.ThresholdReader
	logger     *zap.Logger
	out        io.Writer
	verbose    bool
}

// NewCliFilter creates a new CLI filter writing to out
func NewCliFilter(labeler ports.Labeler, thresholds ports.ThresholdReader, logger *zap.Logger, out io.Writer, verbose bool) *CliFilter {
	return &CliFilter{
		labeler:    labeler,
		thresholds: thresholds,
		logger:     logger,
		out:        out,
		verbose:    verbose,
	}
}

// ProcessReader parses a raw RFC 5322 message and labels it
func (f *CliFilter) ProcessReader(ctx context.Context, r io.Reader) (*core.LabelDecision, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	email, err := parseEmail(raw, "", nil)
	if err != nil {
		return nil, err
	}
	return f.ProcessEmail(ctx, email)
}

// ProcessEmail labels an email and displays the result
func (f *CliFilter) ProcessEmail(ctx context.Context, email *core.Email) (*core.LabelDecision, error) {
	f.logger.Debug("Processing email", zap.String("sender", email.From))

	fmt.Fprintf(f.out, "=== Email ===\n")
	fmt.Fprintf(f.out, "From: %s\n", email.From)
	if len(email.To) > 0 {
		fmt.Fprintf(f.out, "To: %s\n", strings.Join(email.To, ", "))
	}
	fmt.Fprintf(f.out, "Subject: %s\n", email.Subject)
	if f.verbose {
		fmt.Fprintf(f.out, "Normalized: %s\n", core.PredictionKey(email.From, email.Subject))
	}

	start := time.Now()
	decision := ports.Decide(ctx, f.labeler, f.thresholds, email, f.logger)

	action := decision.Action
	if action == "" {
		action = "none"
	}
	fmt.Fprintf(f.out, "\n=== Result ===\n")
	fmt.Fprintf(f.out, "Label: %s\n", decision.Label)
	fmt.Fprintf(f.out, "Confidence: %.4f\n", decision.Confidence)
	fmt.Fprintf(f.out, "Action: %s\n", action)
	if f.verbose {
		fmt.Fprintf(f.out, "Processing time: %v\n", time.Since(start))
	}

	return decision, nil
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
