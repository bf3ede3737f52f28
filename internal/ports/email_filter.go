package ports

import (
	"context"

	"github.com/mikey/mail-triage/internal/core"
)

// Service is a long-running component started and stopped by the daemon
type Service interface {
	// Start starts the service without blocking
	Start() error

	// Stop stops the service
	Stop() error
}

// EmailFilter classifies messages handed to it by a mail transport
type EmailFilter interface {
	Service

	// ProcessMessage classifies a message and returns its verdict
	ProcessMessage(ctx context.Context, msg *core.NormalizedMessage) core.CombinedVerdict
}
