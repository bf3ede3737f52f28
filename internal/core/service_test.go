package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeClassifier struct {
	spam     SpamCheck
	project  ProjectVerdict
	combined CombinedVerdict

	spamCalls     int
	projectCalls  int
	combinedCalls int
	lastContent   string
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) ClassifySpam(ctx context.Context, content string) SpamCheck {
	f.spamCalls++
	f.lastContent = content
	return f.spam
}

func (f *fakeClassifier) ClassifyProject(ctx context.Context, content string, projects []ProjectDescriptor) ProjectVerdict {
	f.projectCalls++
	f.lastContent = content
	return f.project
}

func (f *fakeClassifier) ClassifyCombined(ctx context.Context, content string, projects []ProjectDescriptor) CombinedVerdict {
	f.combinedCalls++
	f.lastContent = content
	return f.combined
}

func (f *fakeClassifier) Categorize(check SpamCheck) SpamCategory {
	switch {
	case check.IsSpam && check.Confidence >= 0.7:
		return CategorySpam
	case check.IsSpam && check.Confidence >= 0.4:
		return CategoryPossibleSpam
	}
	return CategoryNotSpam
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string]*CachedVerdict
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*CachedVerdict)}
}

func (c *mapCache) Get(ctx context.Context, key string) (*CachedVerdict, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.ExpiresAt) {
		return nil, ErrCacheMiss
	}
	return e, nil
}

func (c *mapCache) Set(ctx context.Context, entry *CachedVerdict) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Key] = entry
	return nil
}

func (c *mapCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *mapCache) Cleanup(ctx context.Context) error { return nil }

type domainAllowlist string

func (d domainAllowlist) IsWhitelisted(from string) bool {
	return strings.HasSuffix(from, "@"+string(d))
}

type paragraphText struct{}

func (paragraphText) HTMLToText(html string) string {
	return strings.NewReplacer("<p>", "", "</p>", "").Replace(html)
}

var testProjects = []ProjectDescriptor{{ID: "alpha", Name: "Alpha", Keywords: []string{"rocket"}}}

func newTestOrchestrator(c Classifier, cache VerdictCache, strategy Strategy) *Orchestrator {
	return NewOrchestrator(c, cache, domainAllowlist("trusted.com"), paragraphText{}, zap.NewNop(), OrchestratorOptions{
		Strategy: strategy,
		CacheTTL: time.Hour,
	})
}

func message(id string) *NormalizedMessage {
	return &NormalizedMessage{
		ID:          id,
		Subject:     "Rocket launch",
		PlainBody:   "The alpha rocket launches on Friday.",
		FromAddress: "someone@example.com",
	}
}

func TestOrchestrator_BuildContent(t *testing.T) {
	o := newTestOrchestrator(&fakeClassifier{}, nil, StrategyCombined)

	assert.Equal(t, "Hello\n\nBody text", o.BuildContent(&NormalizedMessage{Subject: "Hello", PlainBody: "Body text"}))
	assert.Equal(t, "Hello\n\nFrom html", o.BuildContent(&NormalizedMessage{Subject: "Hello", HTMLBody: "<p>From html</p>"}))
	assert.Equal(t, "Body only", o.BuildContent(&NormalizedMessage{PlainBody: "  Body only  "}))
}

func TestOrchestrator_ShortContentMakesNoCalls(t *testing.T) {
	fc := &fakeClassifier{}
	o := newTestOrchestrator(fc, nil, StrategyCombined)

	v := o.Classify(context.Background(), &NormalizedMessage{ID: "1", Subject: "hi"}, testProjects)

	assert.Equal(t, CategoryPossibleSpam, v.Spam.Category)
	assert.Zero(t, v.Spam.Confidence)
	assert.Equal(t, "Email content too short", v.Spam.Reason)
	assert.Nil(t, v.Project.ProjectID)
	assert.Zero(t, fc.spamCalls+fc.projectCalls+fc.combinedCalls)
}

func TestOrchestrator_CombinedEnforcesInvariant(t *testing.T) {
	fc := &fakeClassifier{combined: CombinedVerdict{
		Spam:    SpamVerdict{Category: CategorySpam, Confidence: 0.95, Reason: "phishing"},
		Project: ProjectVerdict{ProjectID: StringPtr("alpha"), Confidence: 0.9, Reason: "leaked"},
	}}
	o := newTestOrchestrator(fc, nil, StrategyCombined)

	v := o.Classify(context.Background(), message("1"), testProjects)

	assert.Equal(t, 1, fc.combinedCalls)
	assert.Equal(t, CategorySpam, v.Spam.Category)
	assert.Nil(t, v.Project.ProjectID)
	assert.Equal(t, "Rocket launch\n\nThe alpha rocket launches on Friday.", fc.lastContent)
}

func TestOrchestrator_SequentialSkipsProjectForSpamLike(t *testing.T) {
	fc := &fakeClassifier{spam: SpamCheck{IsSpam: true, Confidence: 0.5, Reason: "odd"}}
	o := newTestOrchestrator(fc, nil, StrategySequential)

	v := o.Classify(context.Background(), message("1"), testProjects)

	assert.Equal(t, CategoryPossibleSpam, v.Spam.Category)
	assert.Equal(t, 0.5, v.Spam.Confidence)
	assert.Equal(t, "Skipped due to spam classification", v.Project.Reason)
	assert.Equal(t, 1, fc.spamCalls)
	assert.Zero(t, fc.projectCalls)
}

func TestOrchestrator_SequentialLogsSpamCheckHints(t *testing.T) {
	observed, logs := observer.New(zap.DebugLevel)
	fc := &fakeClassifier{spam: SpamCheck{IsSpam: true, Confidence: 0.5, Reason: "odd"}}
	o := NewOrchestrator(fc, nil, nil, paragraphText{}, zap.New(observed), OrchestratorOptions{Strategy: StrategySequential})

	o.Classify(context.Background(), message("1"), testProjects)

	entries := logs.FilterMessage("Spam check complete").AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, false, fields["mark_as_spam"])
	assert.Equal(t, true, fields["flag_for_review"])
	assert.Equal(t, "possible_spam", fields["category"])
}

func TestOrchestrator_SequentialRunsProjectForNotSpam(t *testing.T) {
	fc := &fakeClassifier{
		spam:    SpamCheck{IsSpam: false, Confidence: 0.9, Reason: "legit"},
		project: ProjectVerdict{ProjectID: StringPtr("alpha"), Confidence: 0.8, Reason: "rocket"},
	}
	o := newTestOrchestrator(fc, nil, StrategySequential)

	v := o.Classify(context.Background(), message("1"), testProjects)

	assert.Equal(t, CategoryNotSpam, v.Spam.Category)
	assert.Equal(t, "alpha", v.Project.AssignedProject())
	assert.Equal(t, 1, fc.projectCalls)
}

func TestOrchestrator_WhitelistBypassesSpamCheck(t *testing.T) {
	fc := &fakeClassifier{project: ProjectVerdict{ProjectID: StringPtr("alpha"), Confidence: 0.7}}
	o := newTestOrchestrator(fc, nil, StrategyCombined)

	msg := message("1")
	msg.FromAddress = "boss@trusted.com"
	v := o.Classify(context.Background(), msg, testProjects)

	assert.Equal(t, CategoryNotSpam, v.Spam.Category)
	assert.Equal(t, 1.0, v.Spam.Confidence)
	assert.Equal(t, "Sender domain is whitelisted", v.Spam.Reason)
	assert.Equal(t, "alpha", v.Project.AssignedProject())
	assert.Zero(t, fc.combinedCalls)
	assert.Zero(t, fc.spamCalls)
}

func TestOrchestrator_CachesConfidentVerdicts(t *testing.T) {
	fc := &fakeClassifier{combined: CombinedVerdict{
		Spam:    SpamVerdict{Category: CategoryNotSpam, Confidence: 0.9},
		Project: ProjectVerdict{ProjectID: StringPtr("alpha"), Confidence: 0.8},
	}}
	cache := newMapCache()
	o := newTestOrchestrator(fc, cache, StrategyCombined)
	msg := message("m-1")

	assert.False(t, o.IsCached(context.Background(), msg, testProjects))
	first := o.Classify(context.Background(), msg, testProjects)
	second := o.Classify(context.Background(), msg, testProjects)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, fc.combinedCalls)
	assert.True(t, o.IsCached(context.Background(), msg, testProjects))

	// a different project set is a different key
	o.Classify(context.Background(), msg, append(testProjects, ProjectDescriptor{ID: "beta"}))
	assert.Equal(t, 2, fc.combinedCalls)
}

func TestOrchestrator_DoesNotCacheFallbacks(t *testing.T) {
	fc := &fakeClassifier{combined: CombinedVerdict{
		Spam:    SpamVerdict{Category: CategoryPossibleSpam, Reason: "AI service error: boom"},
		Project: ProjectVerdict{Reason: "AI service error: boom"},
	}}
	cache := newMapCache()
	o := newTestOrchestrator(fc, cache, StrategyCombined)

	o.Classify(context.Background(), message("m-1"), testProjects)
	o.Classify(context.Background(), message("m-1"), testProjects)

	assert.Equal(t, 2, fc.combinedCalls)
	assert.Empty(t, cache.entries)
}

func TestProjectsFingerprint_OrderIndependent(t *testing.T) {
	a := []ProjectDescriptor{{ID: "a", Keywords: []string{"x", "y"}}, {ID: "b"}}
	b := []ProjectDescriptor{{ID: "b"}, {ID: "a", Keywords: []string{"y", "x"}}}

	assert.Equal(t, ProjectsFingerprint(a), ProjectsFingerprint(b))
	assert.NotEqual(t, ProjectsFingerprint(a), ProjectsFingerprint(a[:1]))
}

func TestDecide(t *testing.T) {
	now := time.Now()
	alpha := StringPtr("alpha")

	tests := []struct {
		name        string
		verdict     CombinedVerdict
		status      TriageStatus
		project     *string
		suggested   *string
		unassigned  bool
		needsReview bool
	}{
		{
			name:    "spam",
			verdict: CombinedVerdict{Spam: SpamVerdict{Category: CategorySpam, Confidence: 0.9}},
			status:  StatusSpam,
		},
		{
			name: "not spam with confident project",
			verdict: CombinedVerdict{
				Spam:    SpamVerdict{Category: CategoryNotSpam, Confidence: 0.9},
				Project: ProjectVerdict{ProjectID: alpha, Confidence: 0.5},
			},
			status:    StatusNotSpam,
			project:   alpha,
			suggested: alpha,
		},
		{
			name: "not spam with weak project",
			verdict: CombinedVerdict{
				Spam:    SpamVerdict{Category: CategoryNotSpam, Confidence: 0.9},
				Project: ProjectVerdict{ProjectID: alpha, Confidence: 0.49},
			},
			status:      StatusPossibleSpam,
			suggested:   alpha,
			unassigned:  true,
			needsReview: true,
		},
		{
			name:        "possible spam",
			verdict:     CombinedVerdict{Spam: SpamVerdict{Category: CategoryPossibleSpam, Confidence: 0.5}},
			status:      StatusPossibleSpam,
			unassigned:  true,
			needsReview: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.verdict, DefaultAutoAssignThreshold, now)
			assert.Equal(t, tt.status, d.Status)
			assert.Equal(t, tt.project, d.ProjectID)
			assert.Equal(t, tt.suggested, d.SuggestedProject)
			assert.Equal(t, tt.unassigned, d.Unassigned)
			assert.Equal(t, tt.needsReview, d.NeedsReview)
			assert.Equal(t, now, d.DecidedAt)
		})
	}
}

func TestReviewHelpers(t *testing.T) {
	assert.True(t, ShouldMarkAsSpam(SpamCheck{IsSpam: true, Confidence: 0.7}))
	assert.False(t, ShouldMarkAsSpam(SpamCheck{IsSpam: true, Confidence: 0.69}))

	assert.True(t, ShouldFlagForReview(SpamCheck{IsSpam: true, Confidence: 0.4}))
	assert.False(t, ShouldFlagForReview(SpamCheck{IsSpam: true, Confidence: 0.7}))
	assert.True(t, ShouldFlagForReview(SpamCheck{IsSpam: false, Confidence: 0.31}))
	assert.False(t, ShouldFlagForReview(SpamCheck{IsSpam: false, Confidence: 0.3}))

	assert.False(t, ShouldAutoAssign(ProjectVerdict{Confidence: 0.9}, 0.5))
	require.True(t, ShouldAutoAssign(ProjectVerdict{ProjectID: StringPtr("x"), Confidence: 0.5}, 0.5))
}
