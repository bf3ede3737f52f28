// Package gmail reads a Gmail mailbox through the Gmail REST API.
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/retry"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	providerName = "gmail"
	userID       = "me"

	DefaultPageSize     = 100
	DefaultBatchSize    = 25
	DefaultRequestDelay = 35 * time.Millisecond
	DefaultBatchDelay   = 500 * time.Millisecond

	quotaMessage = "Gmail API quota exceeded. Please wait a few minutes before trying again.\n" +
		"The system will automatically retry with delays, but you may need to:\n" +
		"1. Wait 1-2 minutes before retrying\n" +
		"2. Reduce the number of emails being fetched by using a \"since\" date\n" +
		"3. Request a quota increase in Google Cloud Console if needed"
)

// Config holds the credentials and pacing of one Gmail account
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	RefreshToken string

	PageSize     int
	BatchSize    int
	RequestDelay time.Duration
	BatchDelay   time.Duration

	// Endpoint overrides the Gmail API base URL
	Endpoint string
	// TokenURL overrides the OAuth2 token endpoint
	TokenURL string
}

// Provider is a core.MailProvider backed by the Gmail API
type Provider struct {
	cfg    Config
	oauth  *oauth2.Config
	svc    *gmail.Service
	cb     *gobreaker.CircuitBreaker
	retry  *retry.Executor
	logger *zap.Logger
}

// NewProvider creates a new Gmail provider
func NewProvider(cfg Config, executor *retry.Executor, logger *zap.Logger) *Provider {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = DefaultRequestDelay
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = DefaultBatchDelay
	}

	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	logger = logger.With(zap.String("provider", providerName))

	return &Provider{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     endpoint,
		},
		cb:     newCircuitBreaker(logger),
		retry:  executor,
		logger: logger,
	}
}

func newCircuitBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// Connect refreshes the access token to validate the credentials and builds the API client
func (p *Provider) Connect(ctx context.Context) error {
	ts := p.oauth.TokenSource(context.WithoutCancel(ctx), &oauth2.Token{RefreshToken: p.cfg.RefreshToken})
	token, err := ts.Token()
	if err != nil {
		return p.connectError(err)
	}

	opts := []option.ClientOption{option.WithTokenSource(oauth2.ReuseTokenSource(token, ts))}
	if p.cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.cfg.Endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return &core.TransportError{Provider: providerName, Op: "create service", Err: err}
	}
	p.svc = svc

	p.logger.Info("Connected to Gmail")
	return nil
}

// Disconnect drops the API client
func (p *Provider) Disconnect(_ context.Context) {
	p.svc = nil
}

// FetchMessages lists messages received after since and fetches each in full.
// Results keep list order. Messages that cannot be parsed are skipped.
func (p *Provider) FetchMessages(ctx context.Context, since *time.Time) ([]core.NormalizedMessage, error) {
	if p.svc == nil {
		return nil, &core.TransportError{Provider: providerName, Op: "fetch", Err: fmt.Errorf("not connected")}
	}

	query := ""
	if since != nil {
		query = fmt.Sprintf("after:%d", since.Unix())
		p.logger.Info("Filtering messages", zap.String("query", query), zap.Time("since", since.UTC()))
	} else {
		p.logger.Warn("No date filter provided, fetching all messages")
	}

	messages := []core.NormalizedMessage{}
	pageToken := ""
	for {
		resp, err := p.listPage(ctx, query, pageToken)
		if err != nil {
			return nil, translateError(err)
		}
		if len(resp.Messages) == 0 {
			break
		}
		p.logger.Info("Listed messages",
			zap.Int("page_count", len(resp.Messages)),
			zap.Int("total", len(messages)+len(resp.Messages)))

		for i := 0; i < len(resp.Messages); i += p.cfg.BatchSize {
			end := min(i+p.cfg.BatchSize, len(resp.Messages))

			batch, err := p.fetchBatch(ctx, resp.Messages[i:end])
			if err != nil {
				return nil, translateError(err)
			}
			messages = append(messages, batch...)

			if end < len(resp.Messages) {
				if err := wait(ctx, p.cfg.BatchDelay); err != nil {
					return nil, err
				}
			}
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
		p.logger.Debug("Fetching next page", zap.Int("count", len(messages)))
		if err := wait(ctx, p.cfg.BatchDelay); err != nil {
			return nil, err
		}
	}

	p.logger.Info("Fetched messages", zap.Int("count", len(messages)))
	return messages, nil
}

// DownloadAttachment fetches attachment bytes by message and attachment id
func (p *Provider) DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	if p.svc == nil {
		return nil, &core.TransportError{Provider: providerName, Op: "download attachment", Err: fmt.Errorf("not connected")}
	}

	body, err := retry.Do(ctx, p.retry, "get attachment "+attachmentID, func(ctx context.Context) (*gmail.MessagePartBody, error) {
		var body *gmail.MessagePartBody
		err := p.executeWithCircuitBreaker("get attachment", func() error {
			var err error
			body, err = p.svc.Users.Messages.Attachments.Get(userID, messageID, attachmentID).Context(ctx).Do()
			return err
		})
		return body, err
	})
	if err != nil {
		return nil, translateError(err)
	}

	data, err := decodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment: %w", err)
	}
	return data, nil
}

func (p *Provider) listPage(ctx context.Context, query, pageToken string) (*gmail.ListMessagesResponse, error) {
	return retry.Do(ctx, p.retry, "list messages", func(ctx context.Context) (*gmail.ListMessagesResponse, error) {
		var resp *gmail.ListMessagesResponse
		err := p.executeWithCircuitBreaker("list messages", func() error {
			call := p.svc.Users.Messages.List(userID).MaxResults(int64(p.cfg.PageSize)).Context(ctx)
			if query != "" {
				call = call.Q(query)
			}
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Do()
			return err
		})
		return resp, err
	})
}

// fetchBatch fetches one sub-batch concurrently, staggering request starts
func (p *Provider) fetchBatch(ctx context.Context, refs []*gmail.Message) ([]core.NormalizedMessage, error) {
	results := make([]*core.NormalizedMessage, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	for idx, ref := range refs {
		g.Go(func() error {
			if err := wait(gctx, time.Duration(idx)*p.cfg.RequestDelay); err != nil {
				return err
			}

			full, err := retry.Do(gctx, p.retry, "fetch message "+ref.Id, func(ctx context.Context) (*gmail.Message, error) {
				var msg *gmail.Message
				err := p.executeWithCircuitBreaker("get message", func() error {
					var err error
					msg, err = p.svc.Users.Messages.Get(userID, ref.Id).Format("full").Context(ctx).Do()
					return err
				})
				return msg, err
			})
			if err != nil {
				return err
			}

			parsed, err := parseMessage(full)
			if err != nil {
				p.logger.Warn("Skipping message that could not be parsed", zap.String("id", ref.Id), zap.Error(err))
				return nil
			}
			results[idx] = parsed
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]core.NormalizedMessage, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// executeWithCircuitBreaker runs fn through the breaker. Client errors are
// reported as successes so they never open the circuit.
func (p *Provider) executeWithCircuitBreaker(operation string, fn func() error) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}

	if err != nil {
		p.logger.Debug("Gmail call failed",
			zap.String("operation", operation),
			zap.String("breaker_state", p.cb.State().String()),
			zap.Error(err))
	}

	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func (p *Provider) connectError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	isRetrieve := errors.As(err, &retrieveErr)

	unauthorized := strings.Contains(err.Error(), "unauthorized_client") ||
		(isRetrieve && (retrieveErr.ErrorCode == "unauthorized_client" ||
			(retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusUnauthorized)))
	if unauthorized {
		p.logger.Error("Gmail authorization failed", zap.Error(err))
		return &core.AuthenticationError{
			Provider: providerName,
			Message: "OAuth unauthorized_client error. Please verify:\n" +
				"1. The redirect URI matches exactly what is configured in Google Cloud Console\n" +
				"2. The redirect URI used to obtain the refresh token matches the one you entered\n" +
				"3. The client ID and client secret are correct\n" +
				"4. The Gmail API is enabled in your Google Cloud project\n" +
				"Current redirect URI: " + p.cfg.RedirectURI,
			Err: err,
		}
	}

	if retry.IsQuotaError(err) || (isRetrieve && retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusTooManyRequests) {
		return &core.QuotaError{Provider: providerName, Message: quotaMessage, Err: err}
	}

	return &core.TransportError{Provider: providerName, Op: "refresh token", Err: err}
}

// translateError maps exhausted quota failures to the operator-facing quota error
func translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if retry.IsQuotaError(err) {
		return &core.QuotaError{Provider: providerName, Message: quotaMessage, Err: err}
	}
	return &core.TransportError{Provider: providerName, Op: "api call", Err: err}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
