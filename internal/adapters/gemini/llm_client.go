package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/mikey/mail-triage/internal/classifier"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client is a classifier.Completer backed by Google Gemini
type Client struct {
	client    *genai.Client
	modelName string
	topP      float32
	logger    *zap.Logger
}

// NewClient creates a new Gemini client. Without an API key the client is
// created unconfigured and every completion fails.
func NewClient(ctx context.Context, apiKey, modelName string, topP float32, logger *zap.Logger) (*Client, error) {
	c := &Client{
		modelName: modelName,
		topP:      topP,
		logger:    logger,
	}
	if apiKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.client = client

	return c, nil
}

// Configured reports whether a Gemini client was created
func (c *Client) Configured() bool {
	return c.client != nil
}

// Close closes the Gemini client
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Complete generates content for one prompt
func (c *Client) Complete(ctx context.Context, req classifier.CompletionRequest) (string, error) {
	if c.client == nil {
		return "", &core.ConfigurationError{Setting: "gemini.api_key", Message: "GEMINI_API_KEY not configured"}
	}

	model := c.client.GenerativeModel(c.modelName)
	model.SetTemperature(req.Temperature)
	model.SetMaxOutputTokens(int32(req.MaxTokens))
	if c.topP > 0 {
		model.SetTopP(c.topP)
	}
	if req.System != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			return "", &core.StatusError{StatusCode: apiErr.Code, Body: apiErr.Message}
		}
		return "", fmt.Errorf("failed to generate content with Gemini: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("empty response from Gemini")
	}

	return partsText(resp.Candidates[0].Content.Parts), nil
}

func partsText(parts []genai.Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if t, ok := p.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}
