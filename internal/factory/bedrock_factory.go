package factory

import (
	"context"

	"github.com/mikey/mail-triage/internal/adapters/bedrock"
	"github.com/mikey/mail-triage/internal/classifier"
	"github.com/mikey/mail-triage/internal/config"
	"go.uber.org/zap"
)

// BedrockFactory creates Bedrock completion clients
type BedrockFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewBedrockFactory creates a new Bedrock factory
func NewBedrockFactory(cfg *config.Config, logger *zap.Logger) *BedrockFactory {
	return &BedrockFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCompleter creates a Bedrock client using the default AWS credential chain
func (f *BedrockFactory) CreateCompleter(ctx context.Context) (classifier.Completer, error) {
	return bedrock.NewFactory(f.cfg, f.logger).CreateClient(ctx)
}
