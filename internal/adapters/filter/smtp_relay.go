package filter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/mail-triage/internal/adapters/rfc822"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

const classifyTimeout = 60 * time.Second

// RelayOptions configures the SMTP relay
type RelayOptions struct {
	ListenAddress    string
	BlockSpam        bool
	NextHopAddress   string
	NextHopPort      int
	CategoryHeader   string
	ConfidenceHeader string
	ProjectHeader    string
	ReasonHeader     string
}

// SMTPRelay receives mail over SMTP, classifies it and hands it to the next hop
// with triage headers prepended.
type SMTPRelay struct {
	orchestrator *core.Orchestrator
	projects     []core.ProjectDescriptor
	logger       *zap.Logger
	opts         RelayOptions

	mu       sync.Mutex
	server   *smtp.Server
	listener net.Listener
}

// NewSMTPRelay creates a new SMTP relay
func NewSMTPRelay(orchestrator *core.Orchestrator, projects []core.ProjectDescriptor, logger *zap.Logger, opts RelayOptions) *SMTPRelay {
	if opts.CategoryHeader == "" {
		opts.CategoryHeader = "X-Triage-Spam-Category"
	}
	if opts.ConfidenceHeader == "" {
		opts.ConfidenceHeader = "X-Triage-Spam-Confidence"
	}
	if opts.ProjectHeader == "" {
		opts.ProjectHeader = "X-Triage-Project"
	}
	if opts.ReasonHeader == "" {
		opts.ReasonHeader = "X-Triage-Reason"
	}

	return &SMTPRelay{
		orchestrator: orchestrator,
		projects:     projects,
		logger:       logger,
		opts:         opts,
	}
}

// Start starts listening for SMTP connections
func (r *SMTPRelay) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	listener, err := net.Listen("tcp", r.opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.opts.ListenAddress, err)
	}

	server := smtp.NewServer(&smtpBackend{relay: r})
	server.Addr = listener.Addr().String()
	server.Domain = "localhost"
	server.ReadTimeout = 30 * time.Second
	server.WriteTimeout = 30 * time.Second
	server.MaxMessageBytes = 30 * 1024 * 1024
	server.MaxRecipients = 50

	r.server = server
	r.listener = listener

	r.logger.Info("SMTP relay starting", zap.String("address", server.Addr))

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			r.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the address the relay listens on once started
func (r *SMTPRelay) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

// Stop stops the relay
func (r *SMTPRelay) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.server == nil {
		return nil
	}
	err := r.server.Close()
	r.server = nil
	r.listener = nil
	return err
}

// ProcessMessage classifies a parsed message against the configured projects
func (r *SMTPRelay) ProcessMessage(ctx context.Context, msg *core.NormalizedMessage) core.CombinedVerdict {
	return r.orchestrator.Classify(ctx, msg, r.projects)
}

// Annotate prepends the triage headers to a raw message
func (r *SMTPRelay) Annotate(raw []byte, v core.CombinedVerdict) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, r.opts.CategoryHeader, string(v.Spam.Category))
	writeHeader(&buf, r.opts.ConfidenceHeader, strconv.FormatFloat(v.Spam.Confidence, 'f', 4, 64))
	if project := v.Project.AssignedProject(); project != "" {
		writeHeader(&buf, r.opts.ProjectHeader, project)
	}
	writeHeader(&buf, r.opts.ReasonHeader, v.Spam.Reason)
	buf.Write(raw)
	return buf.Bytes()
}

func writeHeader(buf *bytes.Buffer, name, value string) {
	value = strings.Join(strings.Fields(value), " ")
	fmt.Fprintf(buf, "%s: %s\r\n", name, value)
}

func (r *SMTPRelay) handle(sender string, recipients []string, raw []byte) error {
	msg, err := rfc822.Parse(raw, "")
	if err != nil {
		r.logger.Warn("Failed to parse message, relaying it unclassified", zap.String("sender", sender), zap.Error(err))
		return r.forward(sender, recipients, raw)
	}
	if msg.FromAddress == "" {
		msg.FromAddress = sender
	}
	msg.ID = msg.MessageID

	ctx, cancel := context.WithTimeout(context.Background(), classifyTimeout)
	defer cancel()

	verdict := r.ProcessMessage(ctx, msg)

	if verdict.Spam.Category == core.CategorySpam && r.opts.BlockSpam {
		r.logger.Info("Rejecting spam email",
			zap.String("from", msg.FromAddress),
			zap.Float64("confidence", verdict.Spam.Confidence),
			zap.String("reason", verdict.Spam.Reason))
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      fmt.Sprintf("Rejected as spam (confidence: %.2f)", verdict.Spam.Confidence),
		}
	}

	if err := r.forward(sender, recipients, r.Annotate(raw, verdict)); err != nil {
		r.logger.Error("Failed to relay email", zap.Error(err), zap.String("sender", sender))
		return err
	}

	r.logger.Info("Processed email",
		zap.String("from", msg.FromAddress),
		zap.String("category", string(verdict.Spam.Category)),
		zap.Float64("confidence", verdict.Spam.Confidence),
		zap.String("project", verdict.Project.AssignedProject()))

	return nil
}

func (r *SMTPRelay) forward(sender string, recipients []string, data []byte) error {
	if r.opts.NextHopAddress == "" {
		r.logger.Warn("No next hop configured, dropping relayed message", zap.String("sender", sender))
		return nil
	}

	addr := net.JoinHostPort(r.opts.NextHopAddress, strconv.Itoa(r.opts.NextHopPort))

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to next hop: %w", err)
	}
	if err := conn.SetDeadline(time.Now().Add(30 * time.Second)); err != nil {
		conn.Close()
		return fmt.Errorf("failed to set connection deadline: %w", err)
	}

	c := smtp.NewClient(conn)
	defer c.Close()

	if err := c.Hello(hostname); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}
	if err := c.Mail(sender, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, recipient := range recipients {
		if err := c.Rcpt(recipient, nil); err != nil {
			r.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", recipient),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return errors.New("all recipients were rejected")
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		r.logger.Warn("QUIT command failed", zap.Error(err))
	}

	return nil
}

type smtpBackend struct {
	relay *SMTPRelay
}

func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{relay: b.relay}, nil
}

type smtpSession struct {
	relay      *SMTPRelay
	sender     string
	recipients []string
}

func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.relay.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}
	return s.relay.handle(s.sender, s.recipients, raw)
}

func (s *smtpSession) Logout() error {
	return nil
}
