package filter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// CliFilter classifies messages on behalf of the command-line tool and prints the results
type CliFilter struct {
	orchestrator        *core.Orchestrator
	projects            []core.ProjectDescriptor
	autoAssignThreshold float64
	out                 io.Writer
	logger              *zap.Logger
	verbose             bool
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(
	orchestrator *core.Orchestrator,
	projects []core.ProjectDescriptor,
	autoAssignThreshold float64,
	out io.Writer,
	logger *zap.Logger,
	verbose bool,
) *CliFilter {
	return &CliFilter{
		orchestrator:        orchestrator,
		projects:            projects,
		autoAssignThreshold: autoAssignThreshold,
		out:                 out,
		logger:              logger,
		verbose:             verbose,
	}
}

// ProcessMessage classifies a message and prints a summary with the routing decision
func (f *CliFilter) ProcessMessage(ctx context.Context, msg *core.NormalizedMessage) core.CombinedVerdict {
	f.logger.Debug("Processing email", zap.String("sender", msg.FromAddress), zap.String("id", msg.ID))

	fmt.Fprintf(f.out, "\n=== Email Summary ===\n")
	if msg.ID != "" {
		fmt.Fprintf(f.out, "ID: %s\n", msg.ID)
	}
	fmt.Fprintf(f.out, "From: %s\n", formatSender(msg))
	fmt.Fprintf(f.out, "To: %s\n", strings.Join(msg.ToAddresses, ", "))
	fmt.Fprintf(f.out, "Subject: %s\n", msg.Subject)
	fmt.Fprintf(f.out, "Received: %s\n", msg.ReceivedAt.Format(time.RFC1123Z))
	fmt.Fprintf(f.out, "Attachments: %d\n", len(msg.Attachments))

	if f.verbose {
		preview := []rune(f.orchestrator.BuildContent(msg))
		if len(preview) > 500 {
			preview = append(preview[:500], []rune("...")...)
		}
		fmt.Fprintf(f.out, "\nContent preview:\n%s\n", string(preview))
	}

	startTime := time.Now()
	verdict := f.orchestrator.Classify(ctx, msg, f.projects)
	duration := time.Since(startTime)

	decision := core.Decide(verdict, f.autoAssignThreshold, time.Now())

	fmt.Fprintf(f.out, "\n=== Results ===\n")
	fmt.Fprintf(f.out, "Spam category: %s\n", verdict.Spam.Category)
	fmt.Fprintf(f.out, "Spam confidence: %.4f\n", verdict.Spam.Confidence)
	fmt.Fprintf(f.out, "Spam reason: %s\n", verdict.Spam.Reason)
	fmt.Fprintf(f.out, "Project: %s\n", orNone(verdict.Project.AssignedProject()))
	fmt.Fprintf(f.out, "Project confidence: %.4f\n", verdict.Project.Confidence)
	fmt.Fprintf(f.out, "Project reason: %s\n", verdict.Project.Reason)
	fmt.Fprintf(f.out, "Status: %s\n", decision.Status)
	fmt.Fprintf(f.out, "Needs review: %t\n", decision.NeedsReview)
	fmt.Fprintf(f.out, "Processing time: %v\n", duration)

	return verdict
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}

func formatSender(msg *core.NormalizedMessage) string {
	if msg.FromDisplayName == "" {
		return msg.FromAddress
	}
	return fmt.Sprintf("%s <%s>", msg.FromDisplayName, msg.FromAddress)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
