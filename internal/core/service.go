package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Strategy selects how the orchestrator sequences classification calls
type Strategy string

const (
	// StrategyCombined asks the classifier for both verdicts in one call
	StrategyCombined Strategy = "combined"
	// StrategySequential runs spam classification, then project classification when not spam-like
	StrategySequential Strategy = "sequential"
)

const (
	// DefaultMinContentLength is the shortest content worth sending to a model
	DefaultMinContentLength = 10

	shortContentReason = "Email content too short"
	whitelistReason    = "Sender domain is whitelisted"
	skippedReason      = "Skipped due to spam classification"
)

// SenderAllowlist reports whether a sender is trusted enough to skip spam classification
type SenderAllowlist interface {
	IsWhitelisted(from string) bool
}

// TextConverter renders HTML bodies as plain text
type TextConverter interface {
	HTMLToText(html string) string
}

// OrchestratorOptions tunes the orchestrator
type OrchestratorOptions struct {
	Strategy         Strategy
	CacheTTL         time.Duration
	MinContentLength int
}

// Orchestrator is the core classification service. It sequences spam before project
// classification and guarantees spam-like verdicts never carry a project.
type Orchestrator struct {
	classifier       Classifier
	cache            VerdictCache
	allowlist        SenderAllowlist
	text             TextConverter
	logger           *zap.Logger
	strategy         Strategy
	cacheTTL         time.Duration
	minContentLength int
}

// NewOrchestrator creates a new classification orchestrator. cache and allowlist may be nil.
func NewOrchestrator(
	classifier Classifier,
	cache VerdictCache,
	allowlist SenderAllowlist,
	text TextConverter,
	logger *zap.Logger,
	opts OrchestratorOptions,
) *Orchestrator {
	if opts.Strategy != StrategySequential {
		opts.Strategy = StrategyCombined
	}
	if opts.MinContentLength <= 0 {
		opts.MinContentLength = DefaultMinContentLength
	}

	return &Orchestrator{
		classifier:       classifier,
		cache:            cache,
		allowlist:        allowlist,
		text:             text,
		logger:           logger,
		strategy:         opts.Strategy,
		cacheTTL:         opts.CacheTTL,
		minContentLength: opts.MinContentLength,
	}
}

// Strategy returns the sequencing strategy in use
func (o *Orchestrator) Strategy() Strategy {
	return o.strategy
}

// BuildContent assembles the text sent to the classifier: subject, a blank line, then the body.
// The HTML body is converted to text when there is no plain body.
func (o *Orchestrator) BuildContent(msg *NormalizedMessage) string {
	body := msg.PlainBody
	if strings.TrimSpace(body) == "" && msg.HTMLBody != "" {
		if o.text != nil {
			body = o.text.HTMLToText(msg.HTMLBody)
		} else {
			body = msg.HTMLBody
		}
	}
	return strings.TrimSpace(msg.Subject + "\n\n" + body)
}

// Classify returns the verdict for msg against projects. It never fails: every
// error path yields a low-confidence verdict.
func (o *Orchestrator) Classify(ctx context.Context, msg *NormalizedMessage, projects []ProjectDescriptor) CombinedVerdict {
	content := o.BuildContent(msg)
	if utf8.RuneCountInString(content) < o.minContentLength {
		o.logger.Warn("Email content too short for classification", zap.String("message_id", msg.ID))
		return CombinedVerdict{
			Spam:    SpamVerdict{Category: CategoryPossibleSpam, Confidence: 0, Reason: shortContentReason},
			Project: ProjectVerdict{Confidence: 0, Reason: shortContentReason},
		}
	}

	key := o.CacheKey(msg, projects)
	if cached, ok := o.lookup(ctx, key); ok {
		o.logger.Debug("Cache hit for message", zap.String("message_id", msg.ID))
		return cached.EnforceInvariant()
	}

	var verdict CombinedVerdict
	switch {
	case o.allowlist != nil && o.allowlist.IsWhitelisted(msg.FromAddress):
		o.logger.Info("Skipping spam check for whitelisted domain",
			zap.String("sender", msg.FromAddress),
			zap.String("action", "whitelist_bypass"))
		verdict = CombinedVerdict{
			Spam:    SpamVerdict{Category: CategoryNotSpam, Confidence: 1.0, Reason: whitelistReason},
			Project: o.classifier.ClassifyProject(ctx, content, projects),
		}
	case o.strategy == StrategySequential:
		verdict = o.classifySequential(ctx, content, projects)
	default:
		verdict = o.classifier.ClassifyCombined(ctx, content, projects)
	}

	verdict = verdict.EnforceInvariant()

	o.logger.Debug("Classified message",
		zap.String("message_id", msg.ID),
		zap.String("classifier", o.classifier.Name()),
		zap.String("category", string(verdict.Spam.Category)),
		zap.Float64("spam_confidence", verdict.Spam.Confidence),
		zap.String("project", verdict.Project.AssignedProject()))

	o.store(ctx, key, verdict)
	return verdict
}

func (o *Orchestrator) classifySequential(ctx context.Context, content string, projects []ProjectDescriptor) CombinedVerdict {
	check := o.classifier.ClassifySpam(ctx, content)
	category := o.classifier.Categorize(check)
	spam := SpamVerdict{Category: category, Confidence: check.Confidence, Reason: check.Reason}

	o.logger.Debug("Spam check complete",
		zap.String("category", string(category)),
		zap.Float64("confidence", check.Confidence),
		zap.Bool("mark_as_spam", ShouldMarkAsSpam(check)),
		zap.Bool("flag_for_review", ShouldFlagForReview(check)))

	if category.IsSpamLike() {
		return CombinedVerdict{
			Spam:    spam,
			Project: ProjectVerdict{Confidence: 0, Reason: skippedReason},
		}
	}

	return CombinedVerdict{
		Spam:    spam,
		Project: o.classifier.ClassifyProject(ctx, content, projects),
	}
}

// IsCached reports whether a live verdict for msg is already cached
func (o *Orchestrator) IsCached(ctx context.Context, msg *NormalizedMessage, projects []ProjectDescriptor) bool {
	_, ok := o.lookup(ctx, o.CacheKey(msg, projects))
	return ok
}

// CacheKey identifies a verdict by classifier, message and project set.
// It is empty when the message has no id or caching is off.
func (o *Orchestrator) CacheKey(msg *NormalizedMessage, projects []ProjectDescriptor) string {
	if o.cache == nil || msg.ID == "" {
		return ""
	}
	return o.classifier.Name() + ":" + msg.ID + ":" + ProjectsFingerprint(projects)
}

func (o *Orchestrator) lookup(ctx context.Context, key string) (CombinedVerdict, bool) {
	if key == "" {
		return CombinedVerdict{}, false
	}

	entry, err := o.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			o.logger.Warn("Failed to read verdict cache", zap.String("key", key), zap.Error(err))
		}
		return CombinedVerdict{}, false
	}
	return entry.Verdict, true
}

func (o *Orchestrator) store(ctx context.Context, key string, verdict CombinedVerdict) {
	if key == "" || o.cacheTTL <= 0 {
		return
	}

	// fallback verdicts carry no confidence and should be retried next time
	if verdict.Spam.Confidence == 0 && verdict.Project.Confidence == 0 {
		return
	}

	now := time.Now()
	entry := &CachedVerdict{
		Key:        key,
		Classifier: o.classifier.Name(),
		Verdict:    verdict,
		CreatedAt:  now,
		ExpiresAt:  now.Add(o.cacheTTL),
	}
	if err := o.cache.Set(ctx, entry); err != nil {
		o.logger.Error("Failed to update cache", zap.Error(err))
	}
}

// ProjectsFingerprint hashes a project list independently of its order
func ProjectsFingerprint(projects []ProjectDescriptor) string {
	parts := make([]string, 0, len(projects))
	for _, p := range projects {
		keywords := append([]string(nil), p.Keywords...)
		sort.Strings(keywords)
		parts = append(parts, strings.Join([]string{p.ID, p.Name, p.Description, strings.Join(keywords, ",")}, "\x1f"))
	}
	sort.Strings(parts)

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1e")))
	return hex.EncodeToString(sum[:8])
}
