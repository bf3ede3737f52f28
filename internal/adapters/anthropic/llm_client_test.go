package anthropic

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/mikey/mail-triage/internal/classifier"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ classifier.Completer = (*Client)(nil)

func TestClient_Complete(t *testing.T) {
	var got messagesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","content":[{"type":"text","text":"{\"isSpam\":"},{"type":"text","text":"false}"}]}`))
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, "", 0, zap.NewNop())
	text, err := c.Complete(context.Background(), classifier.CompletionRequest{
		System:      "sys",
		Prompt:      "hello",
		MaxTokens:   300,
		Temperature: 0.2,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"isSpam":false}`, text)
	assert.Equal(t, DefaultModel, got.Model)
	assert.Equal(t, 300, got.MaxTokens)
	assert.Equal(t, "sys", got.System)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestClient_CompleteStringContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"msg_2","content":"plain"}`))
	}))
	defer srv.Close()

	text, err := NewClient("k", srv.URL, "", 0, zap.NewNop()).Complete(context.Background(), classifier.CompletionRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "plain", text)
}

func TestClient_CompleteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", srv.URL, "", 0, zap.NewNop()).Complete(context.Background(), classifier.CompletionRequest{Prompt: "x"})

	var statusErr *core.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
	assert.Equal(t, "slow down", statusErr.Body)
}

func TestClient_TestConnection(t *testing.T) {
	t.Run("missing key", func(t *testing.T) {
		err := NewClient("", "http://127.0.0.1:1", "", 0, zap.NewNop()).TestConnection(context.Background())
		require.Error(t, err)
		assert.Equal(t, "CLAUDE_API_KEY is not configured", err.Error())
	})

	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"unauthorized", http.StatusUnauthorized, "Invalid API key. Please check your CLAUDE_API_KEY."},
		{"rate limited", http.StatusTooManyRequests, "Rate limit exceeded. Please try again later."},
		{"other", http.StatusBadRequest, "bad request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"bad request body"}}`))
			}))
			defer srv.Close()

			err := NewClient("k", srv.URL, "", 0, zap.NewNop()).TestConnection(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}

	t.Run("ok", func(t *testing.T) {
		var got messagesRequest
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &got)
			_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"ok"}]}`))
		}))
		defer srv.Close()

		require.NoError(t, NewClient("k", srv.URL, "", 0, zap.NewNop()).TestConnection(context.Background()))
		assert.Equal(t, 5, got.MaxTokens)
		assert.Equal(t, connectionPrompt, got.Messages[0].Content)
	})
}
