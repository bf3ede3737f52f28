package classifier

import (
	"context"

	"github.com/mikey/mail-triage/internal/core"
)

// CompletionRequest is one prompt sent to a completion backend
type CompletionRequest struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Completer sends a prompt to a language model and returns the text it produced
type Completer interface {
	// Complete runs a single completion
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Configured reports whether the backend has the credentials it needs
	Configured() bool
}

// CallLimits are the generation parameters of one call type
type CallLimits struct {
	MaxTokens   int
	Temperature float32
}

// Thresholds map a spam confidence to a category
type Thresholds struct {
	Definite float64
	Possible float64
}

// DefaultThresholds are the spam confidence cutoffs
var DefaultThresholds = Thresholds{Definite: 0.7, Possible: 0.4}

// Categorize derives the three-way category from a boolean spam check
func (t Thresholds) Categorize(check core.SpamCheck) core.SpamCategory {
	switch {
	case check.IsSpam && check.Confidence >= t.Definite:
		return core.CategorySpam
	case check.IsSpam && check.Confidence >= t.Possible:
		return core.CategoryPossibleSpam
	default:
		return core.CategoryNotSpam
	}
}
