package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mikey/mail-triage/internal/core"
	cronv3 "github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	// DefaultSchedule runs ingestion every fifteen minutes
	DefaultSchedule = "*/15 * * * *"
	// DefaultLookback is how far back each run fetches
	DefaultLookback = 24 * time.Hour
)

// DecisionHandler receives every decision made during a run
type DecisionHandler func(account string, msg *core.NormalizedMessage, decision core.TriageDecision)

// Options configures the scheduler
type Options struct {
	Schedule            string
	Lookback            time.Duration
	AutoAssignThreshold float64
	OnDecision          DecisionHandler
}

// RunReport summarizes one ingestion run
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	Fetched    int
	Classified int
	Skipped    int
	Failures   map[string]error
}

// Err joins the per-account failures of the run
func (r RunReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, err := range r.Failures {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Scheduler periodically fetches recent mail for every configured account and classifies it
type Scheduler struct {
	pipeline *core.Pipeline
	accounts []string
	projects []core.ProjectDescriptor
	opts     Options
	logger   *zap.Logger

	mu     sync.Mutex
	cron   *cronv3.Cron
	cancel context.CancelFunc
}

// New creates a new scheduler
func New(pipeline *core.Pipeline, accounts []string, projects []core.ProjectDescriptor, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.AutoAssignThreshold <= 0 {
		opts.AutoAssignThreshold = core.DefaultAutoAssignThreshold
	}

	return &Scheduler{
		pipeline: pipeline,
		accounts: accounts,
		projects: projects,
		opts:     opts,
		logger:   logger,
	}
}

// Start registers the ingestion job and starts the cron scheduler
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	cronLogger := &zapCronLogger{logger: s.logger.Sugar()}
	c := cronv3.New(cronv3.WithChain(
		cronv3.SkipIfStillRunning(cronLogger),
		cronv3.Recover(cronLogger),
	))

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(s.opts.Schedule, func() { s.RunOnce(ctx) }); err != nil {
		cancel()
		return err
	}

	c.Start()
	s.cron = c
	s.cancel = cancel

	s.logger.Info("Scheduler started",
		zap.String("schedule", s.opts.Schedule),
		zap.Duration("lookback", s.opts.Lookback),
		zap.Int("accounts", len(s.accounts)))
	return nil
}

// Stop cancels any run in flight and waits for it to return
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	s.logger.Info("Stopping scheduler")
	cancel()
	<-c.Stop().Done()
	return nil
}

// RunOnce ingests and classifies recent mail for every account. A failing
// account is recorded in the report and does not stop the others.
func (s *Scheduler) RunOnce(ctx context.Context) RunReport {
	report := RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Failures:  make(map[string]error),
	}
	logger := s.logger.With(zap.String("run_id", report.RunID))
	since := report.StartedAt.Add(-s.opts.Lookback)

	logger.Info("Starting ingestion run", zap.Time("since", since))

	for _, account := range s.accounts {
		if ctx.Err() != nil {
			report.Failures[account] = ctx.Err()
			continue
		}

		messages, err := s.pipeline.FetchSince(ctx, account, &since)
		if err != nil {
			logger.Error("Failed to fetch messages", zap.String("account", account), zap.Error(err))
			report.Failures[account] = err
			continue
		}
		report.Fetched += len(messages)

		for i := range messages {
			msg := &messages[i]
			if s.pipeline.Orchestrator().IsCached(ctx, msg, s.projects) {
				report.Skipped++
				continue
			}

			verdict := s.pipeline.Classify(ctx, msg, s.projects)
			decision := core.Decide(verdict, s.opts.AutoAssignThreshold, time.Now())
			report.Classified++

			logger.Info("Triaged message",
				zap.String("account", account),
				zap.String("message_id", msg.ID),
				zap.String("subject", msg.Subject),
				zap.String("status", string(decision.Status)),
				zap.String("project", verdict.Project.AssignedProject()),
				zap.Bool("needs_review", decision.NeedsReview))

			if s.opts.OnDecision != nil {
				s.opts.OnDecision(account, msg, decision)
			}
		}
	}

	logger.Info("Finished ingestion run",
		zap.Int("fetched", report.Fetched),
		zap.Int("classified", report.Classified),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed_accounts", len(report.Failures)),
		zap.Duration("duration", time.Since(report.StartedAt)))

	return report
}

// zapCronLogger adapts zap to the cron.Logger interface
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l *zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l *zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
