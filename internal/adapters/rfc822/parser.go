// Package rfc822 parses raw internet messages into normalized messages.
package rfc822

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/mikey/mail-triage/internal/core"
	"github.com/mikey/mail-triage/internal/utils"
)

// Parse decodes a raw RFC 822 message. id becomes the message's provider id.
func Parse(raw []byte, id string) (*core.NormalizedMessage, error) {
	return ParseReader(bytes.NewReader(raw), id)
}

// ParseReader decodes an RFC 822 message read from r
func ParseReader(r io.Reader, id string) (*core.NormalizedMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	defer mr.Close()

	msg := &core.NormalizedMessage{ID: id}
	readHeader(&mr.Header, msg)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			return nil, fmt.Errorf("failed to read message part: %w", err)
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}

			switch {
			case strings.HasPrefix(contentType, "text/plain") && msg.PlainBody == "":
				msg.PlainBody = string(body)
			case strings.HasPrefix(contentType, "text/html") && msg.HTMLBody == "":
				msg.HTMLBody = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}

			msg.Attachments = append(msg.Attachments, core.AttachmentRef{
				Filename:    filename,
				ContentType: contentType,
				SizeBytes:   int64(len(body)),
				Content:     body,
			})
		}
	}

	FillBodies(msg)
	return msg, nil
}

// FillBodies derives a missing plain body from the HTML body and vice versa
func FillBodies(msg *core.NormalizedMessage) {
	if msg.PlainBody == "" && msg.HTMLBody != "" {
		msg.PlainBody = utils.StripTags(msg.HTMLBody)
	}
	if msg.HTMLBody == "" && msg.PlainBody != "" {
		msg.HTMLBody = msg.PlainBody
	}
}

func readHeader(h *mail.Header, msg *core.NormalizedMessage) {
	msg.Subject, _ = h.Subject()

	if from := Addresses(h, "From"); len(from) > 0 {
		msg.FromAddress = from[0].Address
		msg.FromDisplayName = from[0].Name
	}
	msg.ToAddresses = addressStrings(Addresses(h, "To"))
	msg.CcAddresses = addressStrings(Addresses(h, "Cc"))
	msg.BccAddresses = addressStrings(Addresses(h, "Bcc"))

	msg.ReceivedAt = time.Now()
	if d, err := h.Date(); err == nil && !d.IsZero() {
		msg.ReceivedAt = d
	}

	msg.MessageID = strings.TrimSpace(h.Get("Message-Id"))
	msg.InReplyTo = strings.TrimSpace(h.Get("In-Reply-To"))
	msg.References = strings.TrimSpace(h.Get("References"))
}

// Addresses parses an address header, tolerating a single bare address or a
// list that does not strictly follow RFC 5322
func Addresses(h *mail.Header, key string) []*mail.Address {
	list, err := h.AddressList(key)
	if err == nil {
		return list
	}

	raw, err := h.Text(key)
	if err != nil {
		raw = h.Get(key)
	}
	return SplitAddresses(raw)
}

// SplitAddresses splits a comma separated header value into addresses
func SplitAddresses(raw string) []*mail.Address {
	var out []*mail.Address
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if addr, err := mail.ParseAddress(part); err == nil {
			out = append(out, addr)
			continue
		}
		out = append(out, &mail.Address{Address: strings.Trim(part, "<>")})
	}
	return out
}

func addressStrings(list []*mail.Address) []string {
	if len(list) == 0 {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}
