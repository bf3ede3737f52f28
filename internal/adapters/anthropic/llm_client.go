package anthropic

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mikey/mail-triage/internal/classifier"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	DefaultModel     = "claude-3-5-sonnet-20241022"
	DefaultTimeout   = 60 * time.Second
	apiVersion       = "2023-06-01"
	connectionPrompt = `Say "ok"`
)

// Client is a classifier.Completer backed by the Anthropic Messages API
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *zap.Logger
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float32   `json:"temperature"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type messagesResponse struct {
	ID      string          `json:"id"`
	Content json.RawMessage `json:"content"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient creates a new Anthropic client
func NewClient(apiKey, baseURL, model string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		logger:     logger,
	}
}

// Configured reports whether an API key is present
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Complete sends one message and returns the concatenated text blocks of the reply
func (c *Client) Complete(ctx context.Context, req classifier.CompletionRequest) (string, error) {
	payload := messagesRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.System,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal payload")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &core.StatusError{StatusCode: resp.StatusCode, Body: errorMessage(respBody)}
	}

	var parsed messagesResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal response")
	}

	text := extractText(parsed.Content)
	c.logger.Debug("Anthropic completion received",
		zap.String("id", parsed.ID),
		zap.Int("length", len(text)))

	return text, nil
}

// TestConnection sends a minimal request and translates failures into operator guidance
func (c *Client) TestConnection(ctx context.Context) error {
	if !c.Configured() {
		return &core.ConfigurationError{Setting: "CLAUDE_API_KEY", Message: "CLAUDE_API_KEY is not configured"}
	}

	_, err := c.Complete(ctx, classifier.CompletionRequest{
		Prompt:      connectionPrompt,
		MaxTokens:   5,
		Temperature: 0,
	})
	if err == nil {
		return nil
	}

	c.logger.Error("Claude API connection test failed", zap.Error(err))

	var statusErr *core.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized:
			return &core.AuthenticationError{Provider: "claude", Message: "Invalid API key. Please check your CLAUDE_API_KEY.", Err: err}
		case http.StatusTooManyRequests:
			return &core.QuotaError{Provider: "claude", Message: "Rate limit exceeded. Please try again later.", Err: err}
		}
		if statusErr.Body != "" {
			return errors.New(statusErr.Body)
		}
		return errors.New("Failed to connect to Claude API")
	}

	msg := err.Error()
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") {
		return errors.New("Cannot connect to Claude API. Please check your network connection.")
	}

	return errors.Wrap(err, "Failed to connect to Claude API")
}

// extractText accepts either an array of content blocks or a plain string
func extractText(raw json.RawMessage) string {
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var sb strings.Builder
		for _, b := range blocks {
			sb.WriteString(b.Text)
		}
		return sb.String()
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return strings.TrimSpace(string(body))
}
