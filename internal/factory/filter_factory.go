package factory

import (
	"io"

	"github.com/mikey/mail-triage/internal/adapters/filter"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg          *config.Config
	logger       *zap.Logger
	orchestrator *core.Orchestrator
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, orchestrator *core.Orchestrator) *FilterFactory {
	return &FilterFactory{
		cfg:          cfg,
		logger:       logger,
		orchestrator: orchestrator,
	}
}

// CreateRelay creates the SMTP relay filter
func (f *FilterFactory) CreateRelay(projects []core.ProjectDescriptor) *filter.SMTPRelay {
	rc := f.cfg.GetRelay()
	return filter.NewSMTPRelay(f.orchestrator, projects, f.logger, filter.RelayOptions{
		ListenAddress:    rc.ListenAddress,
		BlockSpam:        rc.BlockSpam,
		NextHopAddress:   rc.NextHopAddress,
		NextHopPort:      rc.NextHopPort,
		CategoryHeader:   rc.CategoryHeader,
		ConfidenceHeader: rc.ConfidenceHeader,
		ProjectHeader:    rc.ProjectHeader,
		ReasonHeader:     rc.ReasonHeader,
	})
}

// CreateCliFilter creates the filter used by the command-line tool
func (f *FilterFactory) CreateCliFilter(projects []core.ProjectDescriptor, out io.Writer, verbose bool) *filter.CliFilter {
	threshold := f.cfg.GetClassifier().AutoAssignThreshold
	return filter.NewCliFilter(f.orchestrator, projects, threshold, out, f.logger, verbose)
}
