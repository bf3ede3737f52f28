package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mikey/mail-triage/internal/adapters/filter"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/di"
	"github.com/mikey/mail-triage/internal/factory"
	"github.com/mikey/mail-triage/internal/ports"
	"github.com/mikey/mail-triage/internal/scheduler"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	// A missing .env file is fine, the environment may already be populated
	_ = godotenv.Load()

	// Build the dependency injection container
	container, err := di.BuildContainer(*configFile)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

type services struct {
	dig.In

	Config    *config.Config
	Logger    *zap.Logger
	Cache     core.VerdictCache
	Scheduler *scheduler.Scheduler
	Relay     *filter.SMTPRelay
}

// run is the main application function that gets all dependencies injected
func run(s services) error {
	logger := s.Logger
	defer logger.Sync()

	var started []ports.Service
	if s.Config.GetScheduler().Enabled {
		started = append(started, s.Scheduler)
	}
	if s.Config.GetRelay().Enabled {
		started = append(started, s.Relay)
	}
	if len(started) == 0 {
		logger.Warn("Neither the scheduler nor the relay is enabled, nothing to do")
	}

	for _, svc := range started {
		if err := svc.Start(); err != nil {
			logger.Error("Failed to start service", zap.Error(err))
			stopAll(logger, started)
			return err
		}
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	stopAll(logger, started)

	// Stop the cache if needed
	if stopper, ok := s.Cache.(factory.Stopper); ok {
		stopper.Stop()
	}

	logger.Info("Shutdown complete")
	return nil
}

func stopAll(logger *zap.Logger, svcs []ports.Service) {
	for i := len(svcs) - 1; i >= 0; i-- {
		if err := svcs[i].Stop(); err != nil {
			logger.Error("Failed to stop service", zap.Error(err))
		}
	}
}
