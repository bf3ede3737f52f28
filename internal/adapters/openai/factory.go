package openai

import (
	"github.com/mikey/mail-triage/internal/classifier"
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

// CreateCompleter creates a client for the OpenAI API
func (f *Factory) CreateCompleter() (classifier.Completer, error) {
	c := f.cfg.GetOpenAI()
	return NewClient(c.APIKey, c.BaseURL, c.Model, c.Timeout, f.logger), nil
}

// CreateGrokCompleter creates a client for the Grok API
func (f *Factory) CreateGrokCompleter() (classifier.Completer, error) {
	c := f.cfg.GetGrok()
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = GrokBaseURL
	}
	model := c.Model
	if model == "" {
		model = GrokModel
	}
	return NewClient(c.APIKey, baseURL, model, c.Timeout, f.logger), nil
}
