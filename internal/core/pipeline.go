package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Pipeline is the surface exposed to callers: ingestion per account and classification per message
type Pipeline struct {
	providers    ProviderFactory
	orchestrator *Orchestrator
	logger       *zap.Logger
}

// NewPipeline creates a new pipeline
func NewPipeline(providers ProviderFactory, orchestrator *Orchestrator, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		providers:    providers,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// Orchestrator returns the classification orchestrator
func (p *Pipeline) Orchestrator() *Orchestrator {
	return p.orchestrator
}

// FetchSince connects to the account, fetches every message received at or after
// since (all messages when since is nil) and disconnects. Errors are returned to the caller.
func (p *Pipeline) FetchSince(ctx context.Context, account string, since *time.Time) ([]NormalizedMessage, error) {
	var messages []NormalizedMessage
	err := p.withProvider(ctx, account, func(provider MailProvider) error {
		var err error
		messages, err = provider.FetchMessages(ctx, since)
		if err != nil {
			return err
		}
		p.logger.Info("Fetched messages",
			zap.String("account", account),
			zap.String("provider", provider.Name()),
			zap.Int("count", len(messages)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// Classify classifies a single message. It never fails.
func (p *Pipeline) Classify(ctx context.Context, msg *NormalizedMessage, projects []ProjectDescriptor) CombinedVerdict {
	return p.orchestrator.Classify(ctx, msg, projects)
}

// DownloadAttachment fetches the bytes of an attachment that was not delivered inline
func (p *Pipeline) DownloadAttachment(ctx context.Context, account, messageID, attachmentID string) ([]byte, error) {
	var data []byte
	err := p.withProvider(ctx, account, func(provider MailProvider) error {
		var err error
		data, err = provider.DownloadAttachment(ctx, messageID, attachmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (p *Pipeline) withProvider(ctx context.Context, account string, fn func(MailProvider) error) error {
	provider, err := p.providers.CreateProvider(account)
	if err != nil {
		return fmt.Errorf("failed to create provider for account %s: %w", account, err)
	}

	if err := provider.Connect(ctx); err != nil {
		return err
	}
	defer provider.Disconnect(context.WithoutCancel(ctx))

	return fn(provider)
}
