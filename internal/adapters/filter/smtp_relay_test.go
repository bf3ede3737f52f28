package filter

import (
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	_ ports.EmailFilter = (*SMTPRelay)(nil)
	_ ports.EmailFilter = (*CliFilter)(nil)
)

type stubClassifier struct {
	verdict core.CombinedVerdict
}

func (s *stubClassifier) Name() string { return "stub" }

func (s *stubClassifier) ClassifySpam(ctx context.Context, content string) core.SpamCheck {
	return core.SpamCheck{}
}

func (s *stubClassifier) ClassifyProject(ctx context.Context, content string, projects []core.ProjectDescriptor) core.ProjectVerdict {
	return s.verdict.Project
}

func (s *stubClassifier) ClassifyCombined(ctx context.Context, content string, projects []core.ProjectDescriptor) core.CombinedVerdict {
	return s.verdict
}

func (s *stubClassifier) Categorize(check core.SpamCheck) core.SpamCategory {
	return core.CategoryNotSpam
}

type capturedMail struct {
	from string
	to   []string
	data string
}

type captureBackend struct {
	mu   sync.Mutex
	mail []capturedMail
	got  chan struct{}
}

func (b *captureBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &captureSession{backend: b}, nil
}

type captureSession struct {
	backend *captureBackend
	current capturedMail
}

func (s *captureSession) Reset()        { s.current = capturedMail{} }
func (s *captureSession) Logout() error { return nil }

func (s *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	s.current.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.current.to = append(s.current.to, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.current.data = string(data)
	s.backend.mu.Lock()
	s.backend.mail = append(s.backend.mail, s.current)
	s.backend.mu.Unlock()
	s.backend.got <- struct{}{}
	return nil
}

func startNextHop(t *testing.T) (*captureBackend, string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	backend := &captureBackend{got: make(chan struct{}, 4)}
	srv := smtp.NewServer(backend)
	srv.Domain = "localhost"
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	addr := l.Addr().(*net.TCPAddr)
	return backend, addr.IP.String(), addr.Port
}

const rawMail = "From: Alice <alice@example.com>\r\n" +
	"To: triage@example.com\r\n" +
	"Subject: Alpha status\r\n" +
	"Message-Id: <status@example.com>\r\n" +
	"\r\n" +
	"The alpha rollout is on track for Friday.\r\n"

func newRelay(t *testing.T, verdict core.CombinedVerdict, opts RelayOptions) *SMTPRelay {
	t.Helper()
	o := core.NewOrchestrator(&stubClassifier{verdict: verdict}, nil, nil, nil, zap.NewNop(), core.OrchestratorOptions{})
	opts.ListenAddress = "127.0.0.1:0"
	relay := NewSMTPRelay(o, []core.ProjectDescriptor{{ID: "alpha", Name: "Alpha"}}, zap.NewNop(), opts)
	require.NoError(t, relay.Start())
	t.Cleanup(func() { relay.Stop() })
	return relay
}

// sendThroughRelay submits rawMail over a plain connection since the relay offers no STARTTLS
func sendThroughRelay(t *testing.T, relay *SMTPRelay) error {
	t.Helper()
	c, err := smtp.Dial(relay.Addr())
	require.NoError(t, err)
	defer c.Close()

	return c.SendMail("alice@example.com", []string{"triage@example.com"}, strings.NewReader(rawMail))
}

func TestSMTPRelay_AnnotatesAndForwards(t *testing.T) {
	backend, host, port := startNextHop(t)
	relay := newRelay(t, core.CombinedVerdict{
		Spam:    core.SpamVerdict{Category: core.CategoryNotSpam, Confidence: 0.92, Reason: "status\nupdate"},
		Project: core.ProjectVerdict{ProjectID: core.StringPtr("alpha"), Confidence: 0.8},
	}, RelayOptions{NextHopAddress: host, NextHopPort: port})

	require.NoError(t, sendThroughRelay(t, relay))

	select {
	case <-backend.got:
	case <-time.After(5 * time.Second):
		t.Fatal("next hop never received the message")
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.mail, 1)
	got := backend.mail[0]
	assert.Equal(t, "alice@example.com", got.from)
	assert.Equal(t, []string{"triage@example.com"}, got.to)
	assert.Contains(t, got.data, "X-Triage-Spam-Category: not_spam")
	assert.Contains(t, got.data, "X-Triage-Spam-Confidence: 0.9200")
	assert.Contains(t, got.data, "X-Triage-Project: alpha")
	assert.Contains(t, got.data, "X-Triage-Reason: status update")
	assert.Contains(t, got.data, "The alpha rollout is on track for Friday.")
}

func TestSMTPRelay_RejectsSpamWhenBlocking(t *testing.T) {
	backend, host, port := startNextHop(t)
	relay := newRelay(t, core.CombinedVerdict{
		Spam: core.SpamVerdict{Category: core.CategorySpam, Confidence: 0.99, Reason: "phishing"},
	}, RelayOptions{NextHopAddress: host, NextHopPort: port, BlockSpam: true})

	err := sendThroughRelay(t, relay)

	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Empty(t, backend.mail)
}

func TestSMTPRelay_Annotate(t *testing.T) {
	relay := NewSMTPRelay(nil, nil, zap.NewNop(), RelayOptions{})

	out := string(relay.Annotate([]byte("Subject: x\r\n\r\nbody"), core.CombinedVerdict{
		Spam: core.SpamVerdict{Category: core.CategoryPossibleSpam, Confidence: 0.5, Reason: "unsure"},
	}))

	assert.True(t, strings.HasPrefix(out, "X-Triage-Spam-Category: possible_spam\r\nX-Triage-Spam-Confidence: 0.5000\r\n"))
	assert.NotContains(t, out, "X-Triage-Project")
	assert.True(t, strings.HasSuffix(out, "X-Triage-Reason: unsure\r\nSubject: x\r\n\r\nbody"))
}

func TestSMTPRelay_StopWithoutStart(t *testing.T) {
	relay := NewSMTPRelay(nil, nil, zap.NewNop(), RelayOptions{})
	assert.NoError(t, relay.Stop())
	assert.Empty(t, relay.Addr())
}
