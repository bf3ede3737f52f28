package bedrock

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
	"github.com/goccy/go-json"
	"github.com/mikey/mail-triage/internal/classifier"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ classifier.Completer = (*Client)(nil)

type fakeInvoker struct {
	input *bedrockruntime.InvokeModelInput
	body  string
	err   error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func TestClient_Complete(t *testing.T) {
	inv := &fakeInvoker{body: `{"content":[{"type":"text","text":"{\"spamCategory\":\"not_spam\"}"}],"stop_reason":"end_turn"}`}
	c := NewClient(inv, "anthropic.claude-3", zap.NewNop())

	text, err := c.Complete(context.Background(), classifier.CompletionRequest{
		System:      "sys",
		Prompt:      "classify",
		MaxTokens:   300,
		Temperature: 0.2,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"spamCategory":"not_spam"}`, text)
	assert.Equal(t, "anthropic.claude-3", *inv.input.ModelId)

	var sent invokeRequest
	require.NoError(t, json.Unmarshal(inv.input.Body, &sent))
	assert.Equal(t, anthropicVersion, sent.AnthropicVersion)
	assert.Equal(t, 300, sent.MaxTokens)
	assert.Equal(t, "sys", sent.System)
	assert.Equal(t, "classify", sent.Messages[0].Content)
}

func TestClient_CompleteThrottled(t *testing.T) {
	inv := &fakeInvoker{err: &smithy.GenericAPIError{Code: "ThrottlingException", Message: "Too many requests"}}
	c := NewClient(inv, "m", zap.NewNop())

	_, err := c.Complete(context.Background(), classifier.CompletionRequest{Prompt: "p"})

	var quotaErr *core.QuotaError
	require.ErrorAs(t, err, &quotaErr)
}

func TestClient_CompleteFailure(t *testing.T) {
	c := NewClient(&fakeInvoker{err: errors.New("boom")}, "m", zap.NewNop())

	_, err := c.Complete(context.Background(), classifier.CompletionRequest{Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
