package gemini

import (
	"context"

	"github.com/mikey/mail-triage/internal/config"
	"go.uber.org/zap"
)

// Factory creates new instances of Client
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFactory creates a new factory for Client instances
func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateClient creates a new Client
func (f *Factory) CreateClient(ctx context.Context) (*Client, error) {
	c := f.cfg.GetGemini()
	return NewClient(ctx, c.APIKey, c.ModelName, c.TopP, f.logger)
}
