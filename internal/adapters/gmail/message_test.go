package gmail

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
)

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestParseMessage(t *testing.T) {
	m := &gmail.Message{
		Id:           "abc",
		InternalDate: time.Date(2024, 3, 5, 10, 0, 2, 0, time.UTC).UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Subject", Value: "Invoice for March"},
				{Name: "From", Value: "Billing Team <billing@example.com>"},
				{Name: "To", Value: "a@example.com, B <b@example.com>"},
				{Name: "Cc", Value: "c@example.com"},
				{Name: "Bcc", Value: "Audit <audit@example.com>, d@example.com"},
				{Name: "Date", Value: "Tue, 05 Mar 2024 10:00:00 +0000"},
				{Name: "Message-ID", Value: "<id@example.com>"},
				{Name: "In-Reply-To", Value: "<prev@example.com>"},
				{Name: "References", Value: "<root@example.com>"},
			},
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("Please find the invoice attached.")}},
						{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64("<p>Please find the invoice attached.</p>")}},
					},
				},
				{
					MimeType: "application/pdf",
					Filename: "invoice.pdf",
					Body:     &gmail.MessagePartBody{AttachmentId: "att-1", Size: 2048},
				},
				{
					MimeType: "image/png",
					Filename: "logo.png",
					Body:     &gmail.MessagePartBody{Size: 10},
				},
			},
		},
	}

	msg, err := parseMessage(m)
	require.NoError(t, err)

	assert.Equal(t, "abc", msg.ID)
	assert.Equal(t, "Invoice for March", msg.Subject)
	assert.Equal(t, "billing@example.com", msg.FromAddress)
	assert.Equal(t, "Billing Team", msg.FromDisplayName)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, msg.ToAddresses)
	assert.Equal(t, []string{"c@example.com"}, msg.CcAddresses)
	assert.Equal(t, []string{"audit@example.com", "d@example.com"}, msg.BccAddresses)
	assert.Equal(t, "<id@example.com>", msg.MessageID)
	assert.Equal(t, "<prev@example.com>", msg.InReplyTo)
	assert.Equal(t, "<root@example.com>", msg.References)
	assert.True(t, msg.ReceivedAt.Equal(time.Date(2024, 3, 5, 10, 0, 2, 0, time.UTC)))
	assert.Equal(t, "Please find the invoice attached.", msg.PlainBody)
	assert.Equal(t, "<p>Please find the invoice attached.</p>", msg.HTMLBody)

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "invoice.pdf", att.Filename)
	assert.Equal(t, "abc", att.MessageID)
	assert.Equal(t, "att-1", att.AttachmentID)
	assert.Equal(t, int64(2048), att.SizeBytes)
	assert.False(t, att.Inline())
}

func TestParseMessage_Fallbacks(t *testing.T) {
	m := &gmail.Message{
		Id:           "x",
		InternalDate: 1700000000000,
		Payload: &gmail.MessagePart{
			MimeType: "text/html",
			Headers: []*gmail.MessagePartHeader{
				{Name: "from", Value: "plain@example.com"},
				{Name: "To", Value: "undisclosed-recipients:;, broken <<"},
			},
			Body: &gmail.MessagePartBody{Data: b64("<b>Hi</b> there")},
		},
	}

	msg, err := parseMessage(m)
	require.NoError(t, err)

	assert.Equal(t, "plain@example.com", msg.FromAddress)
	assert.Empty(t, msg.FromDisplayName)
	assert.Equal(t, "Hi there", msg.PlainBody)
	assert.Equal(t, "<b>Hi</b> there", msg.HTMLBody)
	assert.True(t, msg.ReceivedAt.Equal(time.UnixMilli(1700000000000)))
	assert.NotEmpty(t, msg.ToAddresses)
}

func TestParseMessage_ReceivedAtPrefersInternalDate(t *testing.T) {
	received := time.Date(2024, 6, 2, 8, 30, 0, 0, time.UTC)
	m := &gmail.Message{
		Id:           "backdated",
		InternalDate: received.UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers: []*gmail.MessagePartHeader{
				{Name: "Date", Value: "Mon, 1 Jan 2018 00:00:00 +0000"},
			},
			Body: &gmail.MessagePartBody{Data: b64("limited offer")},
		},
	}

	msg, err := parseMessage(m)
	require.NoError(t, err)
	assert.True(t, msg.ReceivedAt.Equal(received), "got %s", msg.ReceivedAt)

	m.InternalDate = 0
	msg, err = parseMessage(m)
	require.NoError(t, err)
	assert.True(t, msg.ReceivedAt.Equal(time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Empty(t, msg.BccAddresses)
}

func TestParseMessage_NoPayload(t *testing.T) {
	_, err := parseMessage(&gmail.Message{Id: "empty"})
	assert.ErrorIs(t, err, errNoPayload)
}

func TestWalkParts_DepthGuard(t *testing.T) {
	leaf := &gmail.MessagePart{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64("deep")}}
	root := leaf
	for i := 0; i < maxPartDepth+5; i++ {
		root = &gmail.MessagePart{MimeType: "multipart/mixed", Parts: []*gmail.MessagePart{root}}
	}

	msg, err := parseMessage(&gmail.Message{Id: "d", Payload: root})
	require.NoError(t, err)
	assert.Empty(t, msg.PlainBody)
}

func TestDecodeBase64URL(t *testing.T) {
	data, err := decodeBase64URL(base64.RawURLEncoding.EncodeToString([]byte("no padding?")))
	require.NoError(t, err)
	assert.Equal(t, "no padding?", string(data))

	data, err = decodeBase64URL(b64("padded"))
	require.NoError(t, err)
	assert.Equal(t, "padded", string(data))
}
