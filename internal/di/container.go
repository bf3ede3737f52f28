package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/adapters/filter"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/mikey/mail-triage/internal/logging"
	"github.com/mikey/mail-triage/internal/retry"
	"github.com/mikey/mail-triage/internal/scheduler"
	"github.com/mikey/mail-triage/internal/utils"
	"github.com/mikey/mail-triage/internal/whitelist"
)

// BuildContainer creates and configures the dependency injection container for the service
func BuildContainer(configFile string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return config.NewFromFile(configFile)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	// Register verdict cache
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.CacheFactory) (core.VerdictCache, error) {
		return f.CreateVerdictCache(context.Background())
	}); err != nil {
		return nil, err
	}

	if err := provideOrchestrator(container); err != nil {
		return nil, err
	}

	// Register SMTP relay
	if err := container.Provide(func(f *factory.FilterFactory, projects []core.ProjectDescriptor) *filter.SMTPRelay {
		return f.CreateRelay(projects)
	}); err != nil {
		return nil, err
	}

	// Register scheduler
	if err := container.Provide(func(
		cfg *config.Config,
		mail *factory.MailFactory,
		pipeline *core.Pipeline,
		projects []core.ProjectDescriptor,
		logger *zap.Logger,
	) (*scheduler.Scheduler, error) {
		accounts, err := mail.AccountNames()
		if err != nil {
			return nil, err
		}
		sc := cfg.GetScheduler()
		return scheduler.New(pipeline, accounts, projects, scheduler.Options{
			Schedule:            sc.Cron,
			Lookback:            sc.Lookback,
			AutoAssignThreshold: cfg.GetClassifier().AutoAssignThreshold,
		}, logger), nil
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideCommon registers the components shared by the service and the CLI. It
// expects configuration and logger to be registered already.
func provideCommon(container *dig.Container) error {
	// Register retry executor
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *retry.Executor {
		rc := cfg.GetRetry()
		return retry.New(logger,
			retry.WithMaxRetries(rc.MaxRetries),
			retry.WithInitialDelay(rc.InitialDelay))
	}); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return err
	}

	// Register whitelist
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *whitelist.Checker {
		domains := cfg.GetWhitelistedDomains()
		if len(domains) > 0 {
			logger.Info("Loaded whitelisted domains", zap.Strings("domains", domains))
		}
		return whitelist.NewChecker(domains, logger)
	}); err != nil {
		return err
	}

	// Register projects
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) ([]core.ProjectDescriptor, error) {
		projects, err := cfg.GetProjects()
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded projects", zap.Int("count", len(projects)))
		return projects, nil
	}); err != nil {
		return err
	}

	// Register classifier
	if err := container.Provide(factory.NewLLMFactory); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.LLMFactory) (core.Classifier, error) {
		return f.CreateClassifier(context.Background())
	}); err != nil {
		return err
	}

	// Register mail providers
	if err := container.Provide(factory.NewMailFactory); err != nil {
		return err
	}
	return nil
}

// provideOrchestrator registers the orchestrator, pipeline and filter factory.
// It expects a core.VerdictCache to be registered, which may be nil.
func provideOrchestrator(container *dig.Container) error {
	if err := container.Provide(func(
		cfg *config.Config,
		classifier core.Classifier,
		verdicts core.VerdictCache,
		checker *whitelist.Checker,
		text *utils.TextProcessor,
		logger *zap.Logger,
	) *core.Orchestrator {
		cc := cfg.GetClassifier()
		return core.NewOrchestrator(classifier, verdicts, checker, text, logger, core.OrchestratorOptions{
			Strategy:         core.Strategy(cc.Strategy),
			CacheTTL:         cfg.GetCache().TTL,
			MinContentLength: cc.MinContentLength,
		})
	}); err != nil {
		return err
	}

	if err := container.Provide(func(mail *factory.MailFactory, o *core.Orchestrator, logger *zap.Logger) *core.Pipeline {
		return core.NewPipeline(mail, o, logger)
	}); err != nil {
		return err
	}

	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return err
	}
	return nil
}
