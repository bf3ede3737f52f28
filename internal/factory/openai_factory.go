package factory

import (
	"github.com/mikey/mail-triage/internal/adapters/openai"
	"github.com/mikey/mail-triage/internal/classifier"
	"github.com/mikey/mail-triage/internal/config"
	"go.uber.org/zap"
)

// OpenAIFactory creates OpenAI completion clients
type OpenAIFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewOpenAIFactory creates a new OpenAI factory
func NewOpenAIFactory(cfg *config.Config, logger *zap.Logger) *OpenAIFactory {
	return &OpenAIFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCompleter creates an OpenAI client. A missing key yields an unconfigured
// client so classification falls back instead of failing startup.
func (f *OpenAIFactory) CreateCompleter() (classifier.Completer, error) {
	if f.cfg.GetOpenAI().APIKey == "" {
		f.logger.Warn("OPENAI_API_KEY is not configured")
	}
	return openai.NewFactory(f.cfg, f.logger).CreateCompleter()
}
