package factory

import (
	"context"
	"fmt"

	"github.com/mikey/mail-triage/internal/adapters/anthropic"
	"github.com/mikey/mail-triage/internal/adapters/openai"
	"github.com/mikey/mail-triage/internal/classifier"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
	"go.uber.org/zap"
)

// Classification variants
const (
	VariantCombined   = "combined"
	VariantSequential = "sequential"
)

// backend describes a completion backend selectable by classifier.provider
type backend struct {
	name    string
	keyName string
	variant string
}

var backends = map[string]backend{
	"anthropic": {name: "claude", keyName: "CLAUDE_API_KEY", variant: VariantCombined},
	"bedrock":   {name: "bedrock", keyName: "AWS_ACCESS_KEY_ID", variant: VariantCombined},
	"grok":      {name: "grok", keyName: "GROK_API_KEY", variant: VariantSequential},
	"openai":    {name: "openai", keyName: "OPENAI_API_KEY", variant: VariantSequential},
	"gemini":    {name: "gemini", keyName: "GEMINI_API_KEY", variant: VariantSequential},
}

// LLMFactory creates classifiers
type LLMFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewLLMFactory creates a new LLM factory
func NewLLMFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *LLMFactory {
	return &LLMFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateClassifier creates the classifier selected by the configuration
func (f *LLMFactory) CreateClassifier(ctx context.Context) (core.Classifier, error) {
	cc := f.cfg.GetClassifier()

	b, ok := backends[cc.Provider]
	if !ok {
		return nil, fmt.Errorf("unsupported LLM provider: %s", cc.Provider)
	}

	completer, err := f.CreateCompleter(ctx, cc.Provider)
	if err != nil {
		return nil, err
	}

	variant := cc.Variant
	if variant == "" {
		variant = b.variant
	}

	settings, err := f.settings(variant, b, cc)
	if err != nil {
		return nil, err
	}

	f.logger.Info("Created classifier",
		zap.String("provider", cc.Provider),
		zap.String("variant", variant),
		zap.Bool("configured", completer.Configured()))

	if variant == VariantSequential {
		return classifier.NewSequentialProvider(settings, completer, f.textProcessor, f.logger), nil
	}
	return classifier.NewCombinedProvider(settings, completer, f.textProcessor, f.logger), nil
}

// CreateCompleter creates the completion backend with the given name
func (f *LLMFactory) CreateCompleter(ctx context.Context, provider string) (classifier.Completer, error) {
	switch provider {
	case "anthropic":
		return anthropic.NewFactory(f.cfg, f.logger).CreateCompleter()
	case "grok":
		return openai.NewFactory(f.cfg, f.logger).CreateGrokCompleter()
	case "openai":
		return NewOpenAIFactory(f.cfg, f.logger).CreateCompleter()
	case "gemini":
		return NewGeminiFactory(f.cfg, f.logger).CreateCompleter(ctx)
	case "bedrock":
		return NewBedrockFactory(f.cfg, f.logger).CreateCompleter(ctx)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

func (f *LLMFactory) settings(variant string, b backend, cc config.ClassifierConfig) (classifier.Settings, error) {
	var s classifier.Settings
	switch variant {
	case VariantCombined:
		s = classifier.DefaultCombinedSettings()
	case VariantSequential:
		s = classifier.DefaultSequentialSettings()
	default:
		return s, fmt.Errorf("unsupported classifier variant: %s", variant)
	}

	s.Name = b.name
	s.KeyName = b.keyName
	if cc.DefiniteThreshold > 0 {
		s.Thresholds.Definite = cc.DefiniteThreshold
	}
	if cc.PossibleThreshold > 0 {
		s.Thresholds.Possible = cc.PossibleThreshold
	}
	return s, nil
}
