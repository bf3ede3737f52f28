package factory

import (
	"context"

	"github.com/mikey/mail-triage/internal/adapters/gemini"
	"github.com/mikey/mail-triage/internal/classifier"
	"github.com/mikey/mail-triage/internal/config"
	"go.uber.org/zap"
)

// GeminiFactory creates Gemini completion clients
type GeminiFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewGeminiFactory creates a new Gemini factory
func NewGeminiFactory(cfg *config.Config, logger *zap.Logger) *GeminiFactory {
	return &GeminiFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCompleter creates a Gemini client
func (f *GeminiFactory) CreateCompleter(ctx context.Context) (classifier.Completer, error) {
	if f.cfg.GetGemini().APIKey == "" {
		f.logger.Warn("GEMINI_API_KEY is not configured")
	}
	return gemini.NewFactory(f.cfg, f.logger).CreateClient(ctx)
}
