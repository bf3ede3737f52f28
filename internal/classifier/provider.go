// Package classifier builds classification prompts, sends them to a completion
// backend and parses the answers into verdicts.
package classifier

import (
	"context"
	"fmt"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
	"go.uber.org/zap"
)

const (
	reasonUnavailable    = "AI service unavailable"
	reasonNoProjects     = "No projects available"
	reasonSkippedForSpam = "Skipped due to spam classification"
)

// Settings configure a provider variant
type Settings struct {
	// Name identifies the provider in logs and cache keys
	Name string
	// KeyName is the credential reported when the backend is not configured
	KeyName    string
	Thresholds Thresholds
	Spam       CallLimits
	Project    CallLimits
	Combined   CallLimits
}

// DefaultCombinedSettings returns the settings of the single-call variant
func DefaultCombinedSettings() Settings {
	return Settings{
		Name:       "claude",
		KeyName:    "CLAUDE_API_KEY",
		Thresholds: DefaultThresholds,
		Spam:       CallLimits{MaxTokens: 500, Temperature: 0.3},
		Project:    CallLimits{MaxTokens: 1000, Temperature: 0.2},
		Combined:   CallLimits{MaxTokens: 300, Temperature: 0.2},
	}
}

// DefaultSequentialSettings returns the settings of the two-call variant
func DefaultSequentialSettings() Settings {
	return Settings{
		Name:       "grok",
		KeyName:    "GROK_API_KEY",
		Thresholds: DefaultThresholds,
		Spam:       CallLimits{MaxTokens: 200, Temperature: 0.3},
		Project:    CallLimits{MaxTokens: 500, Temperature: 0.2},
	}
}

type provider struct {
	settings  Settings
	completer Completer
	parser    *Parser
	text      *utils.TextProcessor
	logger    *zap.Logger
}

func newProvider(settings Settings, completer Completer, text *utils.TextProcessor, logger *zap.Logger) *provider {
	if text == nil {
		text = utils.NewTextProcessor(logger)
	}
	return &provider{
		settings:  settings,
		completer: completer,
		parser:    NewParser(logger),
		text:      text,
		logger:    logger.With(zap.String("classifier", settings.Name)),
	}
}

// Name returns the provider name
func (p *provider) Name() string {
	return p.settings.Name
}

// Categorize maps a spam check to a category using this provider's thresholds
func (p *provider) Categorize(check core.SpamCheck) core.SpamCategory {
	return p.settings.Thresholds.Categorize(check)
}

func (p *provider) configured() bool {
	if p.completer != nil && p.completer.Configured() {
		return true
	}
	p.logger.Warn(fmt.Sprintf("%s is not configured. AI classification will not work.", p.settings.KeyName))
	return false
}

func (p *provider) notConfigured() string {
	return p.settings.KeyName + " not configured"
}

func (p *provider) classifySpam(ctx context.Context, content, system string, withRules bool) core.SpamCheck {
	if !p.configured() {
		return core.SpamCheck{IsSpam: false, Confidence: 0, Reason: p.notConfigured()}
	}

	prompt := BuildSpamPrompt(p.text.ProcessText(content, SingleCallContentLimit), withRules)
	text, err := p.completer.Complete(ctx, CompletionRequest{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   p.settings.Spam.MaxTokens,
		Temperature: p.settings.Spam.Temperature,
	})
	if err != nil {
		p.logger.Error("Error classifying spam", zap.Error(err))
		return core.SpamCheck{IsSpam: false, Confidence: 0, Reason: reasonUnavailable}
	}

	return p.parser.ParseSpam(text)
}

func (p *provider) classifyProject(ctx context.Context, content string, projects []core.ProjectDescriptor, system string) core.ProjectVerdict {
	if !p.configured() {
		return core.ProjectVerdict{ProjectID: nil, Confidence: 0, Reason: p.notConfigured()}
	}
	if len(projects) == 0 {
		p.logger.Warn("No projects available for classification")
		return core.ProjectVerdict{ProjectID: nil, Confidence: 0, Reason: reasonNoProjects}
	}

	prompt := BuildProjectPrompt(p.text.ProcessText(content, SingleCallContentLimit), projects)
	text, err := p.completer.Complete(ctx, CompletionRequest{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   p.settings.Project.MaxTokens,
		Temperature: p.settings.Project.Temperature,
	})
	if err != nil {
		p.logger.Error("Error classifying project", zap.Error(err))
		return core.ProjectVerdict{ProjectID: nil, Confidence: 0, Reason: serviceError(err)}
	}

	return p.parser.ParseProject(text, projects)
}

// combinedPrecondition returns a fallback verdict when no call should be made
func (p *provider) combinedPrecondition(projects []core.ProjectDescriptor) (core.CombinedVerdict, bool) {
	if !p.configured() {
		return fallbackVerdict(p.notConfigured()), false
	}
	if len(projects) == 0 {
		p.logger.Warn("No projects available for classification")
		return fallbackVerdict(reasonNoProjects), false
	}
	return core.CombinedVerdict{}, true
}

// CombinedProvider classifies spam and project in a single completion call
type CombinedProvider struct {
	*provider
}

// NewCombinedProvider creates a new single-call provider
func NewCombinedProvider(settings Settings, completer Completer, text *utils.TextProcessor, logger *zap.Logger) *CombinedProvider {
	return &CombinedProvider{provider: newProvider(settings, completer, text, logger)}
}

// ClassifySpam runs the spam-only prompt
func (p *CombinedProvider) ClassifySpam(ctx context.Context, content string) core.SpamCheck {
	return p.classifySpam(ctx, content, "", false)
}

// ClassifyProject runs the project-only prompt
func (p *CombinedProvider) ClassifyProject(ctx context.Context, content string, projects []core.ProjectDescriptor) core.ProjectVerdict {
	return p.classifyProject(ctx, content, projects, "")
}

// ClassifyCombined asks for both classifications in one call
func (p *CombinedProvider) ClassifyCombined(ctx context.Context, content string, projects []core.ProjectDescriptor) core.CombinedVerdict {
	if fallback, ok := p.combinedPrecondition(projects); !ok {
		return fallback
	}

	prompt := BuildCombinedPrompt(p.text.ProcessText(content, CombinedContentLimit), projects)
	text, err := p.completer.Complete(ctx, CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   p.settings.Combined.MaxTokens,
		Temperature: p.settings.Combined.Temperature,
	})
	if err != nil {
		p.logger.Error("Error in combined classification", zap.Error(err))
		return fallbackVerdict(serviceError(err))
	}

	return p.parser.ParseCombined(text, projects).EnforceInvariant()
}

// SequentialProvider classifies spam first and only asks for a project when the
// message is not spam. Used with backends whose combined JSON output is unreliable.
type SequentialProvider struct {
	*provider
}

// NewSequentialProvider creates a new two-call provider
func NewSequentialProvider(settings Settings, completer Completer, text *utils.TextProcessor, logger *zap.Logger) *SequentialProvider {
	return &SequentialProvider{provider: newProvider(settings, completer, text, logger)}
}

// ClassifySpam runs the spam prompt with explicit confidence bands
func (p *SequentialProvider) ClassifySpam(ctx context.Context, content string) core.SpamCheck {
	return p.classifySpam(ctx, content, spamSystemPrompt, true)
}

// ClassifyProject runs the project prompt
func (p *SequentialProvider) ClassifyProject(ctx context.Context, content string, projects []core.ProjectDescriptor) core.ProjectVerdict {
	return p.classifyProject(ctx, content, projects, projectSystemPrompt)
}

// ClassifyCombined runs the spam call, derives the category from the thresholds and
// runs the project call only for legitimate mail
func (p *SequentialProvider) ClassifyCombined(ctx context.Context, content string, projects []core.ProjectDescriptor) core.CombinedVerdict {
	if fallback, ok := p.combinedPrecondition(projects); !ok {
		return fallback
	}

	check := p.ClassifySpam(ctx, content)
	category := p.Categorize(check)

	verdict := core.CombinedVerdict{
		Spam: core.SpamVerdict{
			Category:   category,
			Confidence: check.Confidence,
			Reason:     check.Reason,
		},
		Project: core.ProjectVerdict{ProjectID: nil, Confidence: 0, Reason: reasonSkippedForSpam},
	}

	if category == core.CategoryNotSpam {
		verdict.Project = p.ClassifyProject(ctx, content, projects)
	}

	return verdict.EnforceInvariant()
}

func fallbackVerdict(reason string) core.CombinedVerdict {
	return core.CombinedVerdict{
		Spam:    core.SpamVerdict{Category: core.CategoryNotSpam, Confidence: 0, Reason: reason},
		Project: core.ProjectVerdict{ProjectID: nil, Confidence: 0, Reason: reason},
	}
}

func serviceError(err error) string {
	return fmt.Sprintf("AI service error: %v", err)
}
