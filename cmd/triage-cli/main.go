package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mikey/mail-triage/internal/adapters/anthropic"
	"github.com/mikey/mail-triage/internal/adapters/rfc822"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/di"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	flags := di.ParseFlags()

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if flags.TestConnection {
		err = container.Invoke(testConnection)
	} else {
		err = container.Invoke(run)
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

type deps struct {
	dig.In

	Flags    *di.CLIFlags
	Config   *config.Config
	Logger   *zap.Logger
	Cache    core.VerdictCache
	Pipeline *core.Pipeline
	Filters  *factory.FilterFactory
	Projects []core.ProjectDescriptor
}

func run(d deps) error {
	defer d.Logger.Sync()
	if stopper, ok := d.Cache.(factory.Stopper); ok {
		defer stopper.Stop()
	}

	ctx := context.Background()
	cli := d.Filters.CreateCliFilter(d.Projects, os.Stdout, d.Flags.Verbose)

	fmt.Printf("Provider: %s\n", d.Config.GetClassifier().Provider)
	fmt.Printf("Strategy: %s\n", d.Pipeline.Orchestrator().Strategy())
	fmt.Printf("Projects: %d\n", len(d.Projects))

	if d.Flags.Account != "" {
		since, err := parseSince(d.Flags.Since)
		if err != nil {
			return err
		}
		messages, err := d.Pipeline.FetchSince(ctx, d.Flags.Account, since)
		if err != nil {
			return errors.Wrapf(err, "failed to fetch messages for %s", d.Flags.Account)
		}
		d.Logger.Info("Fetched messages", zap.String("account", d.Flags.Account), zap.Int("count", len(messages)))
		for i := range messages {
			cli.ProcessMessage(ctx, &messages[i])
		}
		return nil
	}

	var reader io.Reader = os.Stdin
	if d.Flags.InputFile != "" {
		file, err := os.Open(d.Flags.InputFile)
		if err != nil {
			return errors.Wrap(err, "failed to open input file")
		}
		defer file.Close()
		reader = file
		d.Logger.Info("Reading email from file", zap.String("file", d.Flags.InputFile))
	} else {
		d.Logger.Info("Reading email from stdin")
	}

	msg, err := rfc822.ParseReader(reader, "")
	if err != nil {
		return errors.Wrap(err, "failed to parse email")
	}
	cli.ProcessMessage(ctx, msg)
	return nil
}

func parseSince(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid -since date %q", s)
	}
	return &t, nil
}

func testConnection(cfg *config.Config, logger *zap.Logger) error {
	defer logger.Sync()

	ac := cfg.GetAnthropic()
	client := anthropic.NewClient(ac.APIKey, ac.BaseURL, ac.Model, ac.Timeout, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := client.TestConnection(ctx); err != nil {
		return err
	}
	fmt.Println("Connection OK")
	return nil
}
