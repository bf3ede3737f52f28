package rfc822

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multipartMessage = "From: \"Alice Example\" <alice@example.com>\r\n" +
	"To: bob@example.com, \"Carol\" <carol@example.com>\r\n" +
	"Cc: dave@example.com\r\n" +
	"Subject: Website redesign kickoff\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n" +
	"Message-Id: <abc@example.com>\r\n" +
	"In-Reply-To: <parent@example.com>\r\n" +
	"References: <root@example.com> <parent@example.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"outer\"\r\n" +
	"\r\n" +
	"--outer\r\n" +
	"Content-Type: multipart/alternative; boundary=\"inner\"\r\n" +
	"\r\n" +
	"--inner\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hello team, the Acme redesign starts Monday.\r\n" +
	"--inner\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Hello team, the Acme redesign starts Monday.</p>\r\n" +
	"--inner--\r\n" +
	"--outer\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"brief.pdf\"\r\n" +
	"\r\n" +
	"PDFDATA\r\n" +
	"--outer--\r\n"

func TestParse_Multipart(t *testing.T) {
	msg, err := Parse([]byte(multipartMessage), "42")
	require.NoError(t, err)

	assert.Equal(t, "42", msg.ID)
	assert.Equal(t, "Website redesign kickoff", msg.Subject)
	assert.Equal(t, "alice@example.com", msg.FromAddress)
	assert.Equal(t, "Alice Example", msg.FromDisplayName)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, msg.ToAddresses)
	assert.Equal(t, []string{"dave@example.com"}, msg.CcAddresses)
	assert.Equal(t, "<abc@example.com>", msg.MessageID)
	assert.Equal(t, "<parent@example.com>", msg.InReplyTo)
	assert.Equal(t, "<root@example.com> <parent@example.com>", msg.References)
	assert.True(t, msg.ReceivedAt.Equal(time.Date(2006, 1, 2, 15, 4, 5, 0, time.UTC)))
	assert.Contains(t, msg.PlainBody, "Acme redesign starts Monday")
	assert.Contains(t, msg.HTMLBody, "<p>")

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "brief.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.True(t, att.Inline())
	assert.Equal(t, int64(len(att.Content)), att.SizeBytes)
}

func TestParse_HTMLOnlyFillsPlain(t *testing.T) {
	raw := "From: news@example.com\r\n" +
		"Subject: Offer\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><body><b>Big</b> savings</body></html>\r\n"

	msg, err := Parse([]byte(raw), "7")
	require.NoError(t, err)

	assert.Equal(t, "Big savings", strings.TrimSpace(msg.PlainBody))
	assert.Contains(t, msg.HTMLBody, "<b>Big</b>")
	assert.False(t, msg.ReceivedAt.IsZero())
}

func TestParse_PlainOnlyFillsHTML(t *testing.T) {
	raw := "From: a@example.com\r\nSubject: hi\r\n\r\nJust text\r\n"

	msg, err := Parse([]byte(raw), "1")
	require.NoError(t, err)

	assert.Equal(t, "Just text\r\n", msg.PlainBody)
	assert.Equal(t, msg.PlainBody, msg.HTMLBody)
	assert.Empty(t, msg.Attachments)
}

func TestSplitAddresses(t *testing.T) {
	got := SplitAddresses("alice@example.com, Bob <bob@example.com>, not an address")
	require.Len(t, got, 3)
	assert.Equal(t, "alice@example.com", got[0].Address)
	assert.Equal(t, "bob@example.com", got[1].Address)
	assert.Equal(t, "Bob", got[1].Name)
	assert.Equal(t, "not an address", got[2].Address)
	assert.Empty(t, SplitAddresses(" , "))
}
