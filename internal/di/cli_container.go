package di

import (
	"context"
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/mikey/mail-triage/internal/logging"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Classification flags
	Provider string
	Variant  string
	Strategy string
	UseCache bool

	// Input flags
	InputFile string
	Account   string
	Since     string

	TestConnection bool
	Verbose        bool
	JSONLog        bool
	ConfigFile     string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	flag.StringVar(&flags.Provider, "provider", "", "LLM provider (anthropic, grok, openai, gemini, bedrock)")
	flag.StringVar(&flags.Variant, "variant", "", "Prompting variant (combined, sequential)")
	flag.StringVar(&flags.Strategy, "strategy", "", "Classification strategy (combined, sequential)")
	flag.BoolVar(&flags.UseCache, "cache", false, "Use the configured verdict cache")

	flag.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	flag.StringVar(&flags.Account, "account", "", "Fetch and classify recent mail from the named account")
	flag.StringVar(&flags.Since, "since", "", "With -account, fetch mail received on or after this date (YYYY-MM-DD)")

	flag.BoolVar(&flags.TestConnection, "test-connection", false, "Check the Anthropic API credentials and exit")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.NewFromFile(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Info("Loaded configuration from file", zap.String("file", used))
		}
		applyFlags(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideCommon(container); err != nil {
		return nil, err
	}

	// Register verdict cache, off unless requested
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(flags *CLIFlags, f *factory.CacheFactory) (core.VerdictCache, error) {
		if !flags.UseCache {
			return nil, nil
		}
		return f.CreateVerdictCache(context.Background())
	}); err != nil {
		return nil, err
	}

	if err := provideOrchestrator(container); err != nil {
		return nil, err
	}

	return container, nil
}

// applyFlags overrides configuration values with the flags that were set
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	v := cfg.GetViper()
	if flags.Provider != "" {
		v.Set("classifier.provider", flags.Provider)
	}
	if flags.Variant != "" {
		v.Set("classifier.variant", flags.Variant)
	}
	if flags.Strategy != "" {
		v.Set("classifier.strategy", flags.Strategy)
	}
}
