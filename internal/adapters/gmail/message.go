package gmail

import (
	"encoding/base64"
	"errors"
	netmail "net/mail"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/mikey/mail-triage/internal/adapters/rfc822"
	"github.com/mikey/mail-triage/internal/core"
	"google.golang.org/api/gmail/v1"
)

// maxPartDepth bounds the MIME walk on malformed or hostile messages
const maxPartDepth = 64

var errNoPayload = errors.New("message has no payload")

func parseMessage(m *gmail.Message) (*core.NormalizedMessage, error) {
	if m == nil || m.Payload == nil {
		return nil, errNoPayload
	}

	headers := m.Payload.Headers
	msg := &core.NormalizedMessage{
		ID:         m.Id,
		Subject:    header(headers, "Subject"),
		MessageID:  header(headers, "Message-ID"),
		InReplyTo:  header(headers, "In-Reply-To"),
		References: header(headers, "References"),
	}

	msg.FromAddress, msg.FromDisplayName = parseFrom(header(headers, "From"))
	msg.ToAddresses = parseAddressList(header(headers, "To"))
	msg.CcAddresses = parseAddressList(header(headers, "Cc"))
	msg.BccAddresses = parseAddressList(header(headers, "Bcc"))
	msg.ReceivedAt = receivedAt(m.InternalDate, header(headers, "Date"))

	walkParts(m.Payload, m.Id, msg, 0)
	rfc822.FillBodies(msg)

	return msg, nil
}

func walkParts(part *gmail.MessagePart, messageID string, msg *core.NormalizedMessage, depth int) {
	if part == nil || depth > maxPartDepth {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		if data, err := decodeBase64URL(part.Body.Data); err == nil {
			switch {
			case strings.HasPrefix(part.MimeType, "text/plain") && msg.PlainBody == "":
				msg.PlainBody = string(data)
			case strings.HasPrefix(part.MimeType, "text/html") && msg.HTMLBody == "":
				msg.HTMLBody = string(data)
			}
		}
	}

	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		contentType := part.MimeType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		msg.Attachments = append(msg.Attachments, core.AttachmentRef{
			Filename:     part.Filename,
			ContentType:  contentType,
			SizeBytes:    part.Body.Size,
			MessageID:    messageID,
			AttachmentID: part.Body.AttachmentId,
		})
	}

	for _, child := range part.Parts {
		walkParts(child, messageID, msg, depth+1)
	}
}

func header(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func parseFrom(from string) (address, name string) {
	if from == "" {
		return "", ""
	}
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address, addr.Name
	}
	return strings.TrimSpace(from), ""
}

func parseAddressList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	list, err := mail.ParseAddressList(value)
	if err != nil {
		list = rfc822.SplitAddresses(value)
	}

	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

// receivedAt prefers the server receipt time. The Date header is set by the
// sender and only used when internalDate is missing.
func receivedAt(internalDate int64, date string) time.Time {
	if internalDate > 0 {
		return time.UnixMilli(internalDate)
	}
	if date != "" {
		if t, err := netmail.ParseDate(date); err == nil {
			return t
		}
	}
	return time.Now()
}

func decodeBase64URL(s string) ([]byte, error) {
	if data, err := base64.URLEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
