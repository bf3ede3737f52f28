package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/goccy/go-json"
	"github.com/mikey/mail-triage/internal/classifier"
	"github.com/mikey/mail-triage/internal/core"
	"go.uber.org/zap"
)

const anthropicVersion = "bedrock-2023-05-31"

// ModelInvoker is the subset of the Bedrock runtime client used here
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client is a classifier.Completer backed by Anthropic models on Amazon Bedrock
type Client struct {
	client  ModelInvoker
	modelID string
	logger  *zap.Logger
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float32   `json:"temperature"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
}

type invokeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// NewClient creates a new Bedrock client
func NewClient(client ModelInvoker, modelID string, logger *zap.Logger) *Client {
	return &Client{
		client:  client,
		modelID: modelID,
		logger:  logger,
	}
}

// Configured reports whether a runtime client is available. Credentials come
// from the AWS default chain and are checked on the first call.
func (c *Client) Configured() bool {
	return c.client != nil
}

// Complete invokes the model with an Anthropic messages payload
func (c *Client) Complete(ctx context.Context, req classifier.CompletionRequest) (string, error) {
	payload, err := json.Marshal(invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		System:           req.System,
		Messages:         []message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request payload: %w", err)
	}

	resp, err := c.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		Body:        payload,
		Accept:      aws.String("application/json"),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ThrottlingException" {
			return "", &core.QuotaError{Provider: "bedrock", Message: "Bedrock quota exceeded: " + apiErr.ErrorMessage(), Err: err}
		}
		return "", fmt.Errorf("failed to invoke Bedrock model: %w", err)
	}

	var parsed invokeResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal Bedrock response: %w", err)
	}

	var sb strings.Builder
	for _, block := range parsed.Content {
		sb.WriteString(block.Text)
	}

	c.logger.Debug("Bedrock completion received",
		zap.String("model", c.modelID),
		zap.String("stop_reason", parsed.StopReason))

	return sb.String(), nil
}
