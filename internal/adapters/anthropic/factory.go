package anthropic

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

// CreateCompleter creates a new Client
func (f *Factory) CreateCompleter() (classifier.Completer, error) {
	c := f.cfg.GetAnthropic()
	return NewClient(c.APIKey, c.BaseURL, c.Model, c.Timeout, f.logger), nil
}
