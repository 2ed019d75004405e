package mailbox

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"
)

const snippetLen = 200

// ParseRaw decodes an RFC 5322 message into an Email. Attachment content is
// kept so the message can be forwarded.
func ParseRaw(raw []byte) (*Email, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	email := &Email{
		From:       env.GetHeader("From"),
		To:         addressList(env, "To"),
		CC:         addressList(env, "Cc"),
		ReplyTo:    addressList(env, "Reply-To"),
		Subject:    env.GetHeader("Subject"),
		BodyPlain:  env.Text,
		BodyHTML:   env.HTML,
		MessageID:  strings.TrimSpace(env.GetHeader("Message-ID")),
		References: strings.Fields(env.GetHeader("References")),
	}
	if from := addressList(env, "From"); len(from) > 0 {
		email.From = from[0]
	}
	if date, err := mail.ParseDate(env.GetHeader("Date")); err == nil {
		email.Date = date
	}

	for _, p := range env.Attachments {
		email.Attachments = append(email.Attachments, Attachment{
			Filename: p.FileName,
			MIMEType: p.ContentType,
			Size:     int64(len(p.Content)),
			Content:  p.Content,
		})
	}

	email.Snippet = Snippet(email.BodyPlain, email.Subject)
	return email, nil
}

// Snippet returns a short preview of body, falling back to the subject.
func Snippet(body, subject string) string {
	s := strings.TrimSpace(body)
	if s == "" {
		s = subject
	}
	if len(s) > snippetLen {
		return s[:snippetLen-3] + "..."
	}
	return s
}

func addressList(env *enmime.Envelope, header string) []string {
	list, err := env.AddressList(header)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, FormatAddress(a.Name, a.Address))
	}
	return out
}

// FormatAddress renders a display name and address the way headers show them.
func FormatAddress(name, address string) string {
	if name != "" {
		return fmt.Sprintf("%s <%s>", name, address)
	}
	return address
}
