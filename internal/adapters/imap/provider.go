// Package imap reads an INBOX over IMAP and normalizes the raw messages.
package imap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/mikey/mail-triage/internal/adapters/rfc822"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

const (
	providerName = "imap"
	mailbox      = "INBOX"

	invalidCredentialsMessage = "Invalid IMAP credentials. Please check your username and password."
)

// Config holds the connection settings of one IMAP account
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS selects implicit TLS. STARTTLS is negotiated otherwise.
	TLS bool
}

// Provider is a core.MailProvider reading one IMAP account
type Provider struct {
	cfg    Config
	client *imapclient.Client
	logger *zap.Logger
}

// NewProvider creates a new IMAP provider
func NewProvider(cfg Config, logger *zap.Logger) *Provider {
	return &Provider{
		cfg:    cfg,
		logger: logger.With(zap.String("provider", providerName), zap.String("host", cfg.Host)),
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// Connect dials the server and logs in
func (p *Provider) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))

	var client *imapclient.Client
	var err error
	if p.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return &core.TransportError{Provider: providerName, Op: "connect to " + addr, Err: err}
	}

	if err := client.Login(p.cfg.Username, p.cfg.Password).Wait(); err != nil {
		_ = client.Close()
		p.logger.Error("IMAP login failed", zap.String("username", p.cfg.Username), zap.Error(err))
		return loginError(err)
	}

	p.client = client
	p.logger.Info("Connected to IMAP server", zap.String("address", addr))
	return nil
}

// loginError maps a failed LOGIN to the error taxonomy. Throttling codes become
// quota errors; a NO carrying no code, or an explicit credential code, is an
// authentication failure; anything else is a transport failure.
func loginError(err error) error {
	var imapErr *imap.Error
	if !errors.As(err, &imapErr) {
		return &core.TransportError{Provider: providerName, Op: "login", Err: err}
	}

	switch imapErr.Code {
	case imap.ResponseCodeLimit, imap.ResponseCodeUnavailable, imap.ResponseCodeInUse:
		return &core.QuotaError{Provider: providerName, Message: imapErr.Text, Err: err}
	case imap.ResponseCodeAuthenticationFailed, imap.ResponseCodeAuthorizationFailed, imap.ResponseCodeExpired:
		return &core.AuthenticationError{Provider: providerName, Message: invalidCredentialsMessage, Err: err}
	case "":
		if imapErr.Type == imap.StatusResponseTypeNo {
			return &core.AuthenticationError{Provider: providerName, Message: invalidCredentialsMessage, Err: err}
		}
	}
	return &core.TransportError{Provider: providerName, Op: "login", Err: err}
}

// Disconnect logs out and closes the connection
func (p *Provider) Disconnect(_ context.Context) {
	if p.client == nil {
		return
	}
	if err := p.client.Logout().Wait(); err != nil {
		p.logger.Warn("IMAP logout failed", zap.Error(err))
	}
	if err := p.client.Close(); err != nil {
		p.logger.Debug("IMAP close failed", zap.Error(err))
	}
	p.client = nil
}

// FetchMessages returns the INBOX messages received since the given date, or all
// of them when since is nil. Message ids are IMAP UIDs.
func (p *Provider) FetchMessages(ctx context.Context, since *time.Time) ([]core.NormalizedMessage, error) {
	if p.client == nil {
		return nil, &core.TransportError{Provider: providerName, Op: "fetch", Err: fmt.Errorf("not connected")}
	}

	if _, err := p.client.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, &core.TransportError{Provider: providerName, Op: "select " + mailbox, Err: err}
	}

	searchData, err := p.client.UIDSearch(searchCriteria(since), nil).Wait()
	if err != nil {
		return nil, &core.TransportError{Provider: providerName, Op: "search", Err: err}
	}

	uids := searchData.AllUIDs()
	messages := make([]core.NormalizedMessage, 0, len(uids))
	if len(uids) == 0 {
		return messages, nil
	}

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := p.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	})
	defer fetchCmd.Close()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			p.logger.Warn("Failed to collect message", zap.Error(err))
			continue
		}

		id := strconv.FormatUint(uint64(buf.UID), 10)
		raw := buf.FindBodySection(bodySection)
		if raw == nil {
			p.logger.Warn("Message has no body", zap.String("uid", id))
			continue
		}

		parsed, err := rfc822.Parse(raw, id)
		if err != nil {
			p.logger.Warn("Failed to parse message", zap.String("uid", id), zap.Error(err))
			continue
		}
		messages = append(messages, *parsed)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, &core.TransportError{Provider: providerName, Op: "fetch", Err: err}
	}

	p.logger.Info("Fetched messages", zap.Int("count", len(messages)))
	return messages, nil
}

// DownloadAttachment is not supported. IMAP attachments are returned inline.
func (p *Provider) DownloadAttachment(_ context.Context, _, _ string) ([]byte, error) {
	return nil, &core.NotImplementedError{Message: "IMAP attachments are delivered inline with the message"}
}

func searchCriteria(since *time.Time) *imap.SearchCriteria {
	if since == nil {
		return &imap.SearchCriteria{}
	}
	return &imap.SearchCriteria{Since: *since}
}
