// Package graph reads a Microsoft Graph mailbox over its REST API.
package graph

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mikey/mail-triage/internal/adapters/rfc822"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/retry"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	providerName    = "graph"
	DefaultBaseURL  = "https://graph.microsoft.com/v1.0"
	DefaultPageSize = 100

	messageFields = "id,subject,body,from,toRecipients,ccRecipients,bccRecipients,receivedDateTime,internetMessageId,internetMessageHeaders,hasAttachments"

	unauthorizedMessage = "Microsoft Graph rejected the access token. Please re-authorize the account and supply a fresh access token."
	throttledMessage    = "Microsoft Graph throttled the request. Please wait before retrying and narrow the fetch window with a \"since\" date."
)

// Config holds the settings of one Graph mailbox
type Config struct {
	AccessToken string
	BaseURL     string
	PageSize    int
	// HTTPClient is the transport under the bearer token. Defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Provider is a core.MailProvider reading the signed-in user's messages
type Provider struct {
	client   *http.Client
	baseURL  string
	pageSize int
	retry    *retry.Executor
	logger   *zap.Logger
}

type messagePage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphMessage struct {
	ID                     string            `json:"id"`
	Subject                string            `json:"subject"`
	Body                   graphBody         `json:"body"`
	From                   graphRecipient    `json:"from"`
	ToRecipients           []graphRecipient  `json:"toRecipients"`
	CcRecipients           []graphRecipient  `json:"ccRecipients"`
	BccRecipients          []graphRecipient  `json:"bccRecipients"`
	ReceivedDateTime       string            `json:"receivedDateTime"`
	InternetMessageID      string            `json:"internetMessageId"`
	InternetMessageHeaders []graphHeader     `json:"internetMessageHeaders"`
	HasAttachments         bool              `json:"hasAttachments"`
	Attachments            []graphAttachment `json:"attachments"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type graphHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type graphAttachment struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size"`
	ContentBytes string `json:"contentBytes"`
}

// NewProvider creates a new Graph provider
func NewProvider(cfg Config, executor *retry.Executor, logger *zap.Logger) *Provider {
	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Provider{
		client:   oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})),
		baseURL:  strings.TrimRight(baseURL, "/"),
		pageSize: pageSize,
		retry:    executor,
		logger:   logger.With(zap.String("provider", providerName)),
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// Connect validates the access token against the profile endpoint
func (p *Provider) Connect(ctx context.Context) error {
	var profile struct {
		ID                string `json:"id"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := p.doGet(ctx, p.baseURL+"/me", &profile); err != nil {
		return err
	}

	p.logger.Info("Connected to Microsoft Graph", zap.String("user", profile.UserPrincipalName))
	return nil
}

// Disconnect is a no-op. Graph sessions are stateless.
func (p *Provider) Disconnect(_ context.Context) {}

// FetchMessages follows @odata.nextLink until the last page
func (p *Provider) FetchMessages(ctx context.Context, since *time.Time) ([]core.NormalizedMessage, error) {
	nextLink := p.firstPageURL(since)
	if since == nil {
		p.logger.Info("No date filter provided, fetching all messages")
	}

	var messages []core.NormalizedMessage
	for nextLink != "" {
		link := nextLink
		page, err := retry.Do(ctx, p.retry, "graph list messages", func(ctx context.Context) (*messagePage, error) {
			var page messagePage
			if err := p.doGet(ctx, link, &page); err != nil {
				return nil, err
			}
			return &page, nil
		})
		if err != nil {
			return nil, err
		}

		for i := range page.Value {
			messages = append(messages, p.convertMessage(&page.Value[i]))
		}

		nextLink = page.NextLink
		if nextLink != "" {
			p.logger.Debug("Fetched page, continuing", zap.Int("count", len(messages)))
		}
	}

	if messages == nil {
		messages = []core.NormalizedMessage{}
	}
	p.logger.Info("Fetched messages", zap.Int("count", len(messages)))
	return messages, nil
}

// DownloadAttachment fetches one file attachment and decodes its content
func (p *Provider) DownloadAttachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/me/messages/%s/attachments/%s", p.baseURL, url.PathEscape(messageID), url.PathEscape(attachmentID))

	att, err := retry.Do(ctx, p.retry, "graph attachment", func(ctx context.Context) (*graphAttachment, error) {
		var att graphAttachment
		if err := p.doGet(ctx, endpoint, &att); err != nil {
			return nil, err
		}
		return &att, nil
	})
	if err != nil {
		return nil, err
	}

	data, err := base64.StdEncoding.DecodeString(att.ContentBytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode attachment content")
	}
	return data, nil
}

func (p *Provider) firstPageURL(since *time.Time) string {
	params := url.Values{}
	params.Set("$top", strconv.Itoa(p.pageSize))
	params.Set("$orderby", "receivedDateTime desc")
	params.Set("$select", messageFields)
	params.Set("$expand", "attachments")
	if since != nil {
		params.Set("$filter", fmt.Sprintf("receivedDateTime ge %s", since.UTC().Format(time.RFC3339)))
	}
	return p.baseURL + "/me/messages?" + params.Encode()
}

func (p *Provider) doGet(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &core.TransportError{Provider: providerName, Op: "GET", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return wrapHTTPError(resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func wrapHTTPError(statusCode int, body string) error {
	statusErr := &core.StatusError{StatusCode: statusCode, Body: body}
	switch statusCode {
	case http.StatusUnauthorized:
		return &core.AuthenticationError{Provider: providerName, Message: unauthorizedMessage, Err: statusErr}
	case http.StatusTooManyRequests:
		return &core.QuotaError{Provider: providerName, Message: throttledMessage, Err: statusErr}
	default:
		return &core.TransportError{Provider: providerName, Op: "GET", Err: statusErr}
	}
}

func (p *Provider) convertMessage(m *graphMessage) core.NormalizedMessage {
	msg := core.NormalizedMessage{
		ID:              m.ID,
		Subject:         m.Subject,
		FromAddress:     m.From.EmailAddress.Address,
		FromDisplayName: m.From.EmailAddress.Name,
		ToAddresses:     recipientAddresses(m.ToRecipients),
		CcAddresses:     recipientAddresses(m.CcRecipients),
		BccAddresses:    recipientAddresses(m.BccRecipients),
		MessageID:       m.InternetMessageID,
		InReplyTo:       headerValue(m.InternetMessageHeaders, "In-Reply-To"),
		References:      headerValue(m.InternetMessageHeaders, "References"),
		ReceivedAt:      time.Now(),
	}

	if strings.EqualFold(m.Body.ContentType, "html") {
		msg.HTMLBody = m.Body.Content
	} else {
		msg.PlainBody = m.Body.Content
	}
	rfc822.FillBodies(&msg)

	if t, err := time.Parse(time.RFC3339, m.ReceivedDateTime); err == nil {
		msg.ReceivedAt = t
	}

	if m.HasAttachments {
		for _, att := range m.Attachments {
			msg.Attachments = append(msg.Attachments, p.convertAttachment(m.ID, att))
		}
	}

	return msg
}

func (p *Provider) convertAttachment(messageID string, att graphAttachment) core.AttachmentRef {
	ref := core.AttachmentRef{
		Filename:    att.Name,
		ContentType: att.ContentType,
		SizeBytes:   att.Size,
	}
	if ref.Filename == "" {
		ref.Filename = "attachment"
	}
	if ref.ContentType == "" {
		ref.ContentType = "application/octet-stream"
	}

	if att.ContentBytes != "" {
		if data, err := base64.StdEncoding.DecodeString(att.ContentBytes); err == nil {
			ref.Content = data
			return ref
		}
		p.logger.Warn("Failed to decode inline attachment", zap.String("message_id", messageID), zap.String("attachment", att.Name))
	}

	ref.MessageID = messageID
	ref.AttachmentID = att.ID
	return ref
}

func recipientAddresses(recipients []graphRecipient) []string {
	var out []string
	for _, r := range recipients {
		if r.EmailAddress.Address != "" {
			out = append(out, r.EmailAddress.Address)
		}
	}
	return out
}

func headerValue(headers []graphHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
