package factory

import (
	"fmt"

	"github.com/mikey/mail-triage/internal/adapters/gmail"
	"github.com/mikey/mail-triage/internal/adapters/graph"
	"github.com/mikey/mail-triage/internal/adapters/imap"
	"github.com/mikey/mail-triage/internal/config"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/retry"
	"go.uber.org/zap"
)

// MailFactory creates mail providers for the configured accounts. Every call
// returns a fresh provider owning its own session.
type MailFactory struct {
	cfg      *config.Config
	executor *retry.Executor
	logger   *zap.Logger
}

// NewMailFactory creates a new mail provider factory
func NewMailFactory(cfg *config.Config, executor *retry.Executor, logger *zap.Logger) *MailFactory {
	return &MailFactory{
		cfg:      cfg,
		executor: executor,
		logger:   logger,
	}
}

// CreateProvider creates a provider for the named account
func (f *MailFactory) CreateProvider(account string) (core.MailProvider, error) {
	ac, err := f.cfg.GetAccount(account)
	if err != nil {
		return nil, err
	}

	logger := f.logger.With(zap.String("account", account))

	switch ac.Provider {
	case "gmail":
		gc := f.cfg.GetGmail()
		return gmail.NewProvider(gmail.Config{
			ClientID:     ac.Gmail.ClientID,
			ClientSecret: ac.Gmail.ClientSecret,
			RedirectURI:  ac.Gmail.RedirectURI,
			RefreshToken: ac.Gmail.RefreshToken,
			PageSize:     gc.PageSize,
			BatchSize:    gc.BatchSize,
			RequestDelay: gc.RequestDelay,
			BatchDelay:   gc.BatchDelay,
			Endpoint:     gc.Endpoint,
		}, f.executor, logger), nil
	case "imap":
		return imap.NewProvider(imap.Config{
			Host:     ac.IMAP.Host,
			Port:     ac.IMAP.Port,
			Username: ac.IMAP.Username,
			Password: ac.IMAP.Password,
			TLS:      ac.IMAP.UseTLS(),
		}, logger), nil
	case "graph":
		gc := f.cfg.GetGraph()
		return graph.NewProvider(graph.Config{
			AccessToken: ac.Graph.AccessToken,
			BaseURL:     gc.BaseURL,
			PageSize:    gc.PageSize,
		}, f.executor, logger), nil
	default:
		return nil, &core.ConfigurationError{
			Setting: "accounts." + account + ".provider",
			Message: fmt.Sprintf("unsupported mail provider %q for account %q", ac.Provider, account),
		}
	}
}

// AccountNames returns the names of every configured account
func (f *MailFactory) AccountNames() ([]string, error) {
	accounts, err := f.cfg.GetAccounts()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(accounts))
	for _, a := range accounts {
		names = append(names, a.Name)
	}
	return names, nil
}
