package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var _ core.MailProvider = (*Provider)(nil)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	executor := retry.New(zap.NewNop(), retry.WithInitialDelay(time.Millisecond))
	p := NewProvider(Config{AccessToken: "tok", BaseURL: srv.URL, HTTPClient: srv.Client()}, executor, zap.NewNop())
	return p, srv
}

func TestProvider_FetchMessagesFollowsNextLink(t *testing.T) {
	var srvURL string
	var pages int32
	p, srv := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")

		if r.URL.Query().Get("page") == "2" {
			atomic.AddInt32(&pages, 1)
			fmt.Fprint(w, `{"value":[{"id":"m2","subject":"Second","body":{"contentType":"text","content":"plain text"},
				"from":{"emailAddress":{"name":"Bob","address":"bob@example.com"}},"receivedDateTime":"2024-03-02T10:00:00Z"}]}`)
			return
		}

		atomic.AddInt32(&pages, 1)
		assert.Equal(t, "/me/messages", r.URL.Path)
		assert.Equal(t, "receivedDateTime ge 2024-03-01T00:00:00Z", r.URL.Query().Get("$filter"))
		assert.Equal(t, "100", r.URL.Query().Get("$top"))
		fmt.Fprintf(w, `{"value":[{"id":"m1","subject":"First","body":{"contentType":"html","content":"<p>Hello</p>"},
			"from":{"emailAddress":{"name":"Alice","address":"alice@example.com"}},
			"toRecipients":[{"emailAddress":{"address":"team@example.com"}},{"emailAddress":{"address":""}}],
			"receivedDateTime":"2024-03-03T09:30:00Z","internetMessageId":"<m1@example.com>",
			"internetMessageHeaders":[{"name":"In-Reply-To","value":"<p@example.com>"},{"name":"References","value":"<r@example.com>"}],
			"hasAttachments":true,"attachments":[
				{"id":"a1","name":"notes.txt","contentType":"text/plain","size":5,"contentBytes":"aGVsbG8="},
				{"id":"a2","name":"big.bin","contentType":"","size":9000000}
			]}],
			"@odata.nextLink":"%s/me/messages?page=2"}`, srvURL)
	})
	srvURL = srv.URL

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	msgs, err := p.FetchMessages(context.Background(), &since)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&pages))

	first := msgs[0]
	assert.Equal(t, "m1", first.ID)
	assert.Equal(t, "<p>Hello</p>", first.HTMLBody)
	assert.Equal(t, "Hello", first.PlainBody)
	assert.Equal(t, "alice@example.com", first.FromAddress)
	assert.Equal(t, "Alice", first.FromDisplayName)
	assert.Equal(t, []string{"team@example.com"}, first.ToAddresses)
	assert.Equal(t, "<m1@example.com>", first.MessageID)
	assert.Equal(t, "<p@example.com>", first.InReplyTo)
	assert.Equal(t, "<r@example.com>", first.References)
	assert.True(t, first.ReceivedAt.Equal(time.Date(2024, 3, 3, 9, 30, 0, 0, time.UTC)))

	require.Len(t, first.Attachments, 2)
	assert.Equal(t, []byte("hello"), first.Attachments[0].Content)
	assert.False(t, first.Attachments[1].Inline())
	assert.Equal(t, "m1", first.Attachments[1].MessageID)
	assert.Equal(t, "a2", first.Attachments[1].AttachmentID)
	assert.Equal(t, "application/octet-stream", first.Attachments[1].ContentType)

	assert.Equal(t, "m2", msgs[1].ID)
	assert.Equal(t, "plain text", msgs[1].PlainBody)
	assert.Equal(t, "plain text", msgs[1].HTMLBody)
}

func TestProvider_FetchMessagesRetriesThrottling(t *testing.T) {
	var calls int32
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"value":[]}`)
	})

	msgs, err := p.FetchMessages(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.NotNil(t, msgs)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestProvider_ThrottlingExhaustsRetries(t *testing.T) {
	var calls int32
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.FetchMessages(context.Background(), nil)

	var quotaErr *core.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, throttledMessage, quotaErr.Error())
	assert.Equal(t, int32(retry.DefaultMaxRetries+1), atomic.LoadInt32(&calls))
}

func TestProvider_ConnectUnauthorized(t *testing.T) {
	var calls int32
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/me", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
	})

	err := p.Connect(context.Background())

	var authErr *core.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, unauthorizedMessage, authErr.Error())
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestProvider_DownloadAttachment(t *testing.T) {
	p, _ := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/messages/m1/attachments/a1", r.URL.Path)
		fmt.Fprint(w, `{"id":"a1","contentBytes":"cGRmLWJ5dGVz"}`)
	})

	data, err := p.DownloadAttachment(context.Background(), "m1", "a1")
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-bytes"), data)
}
