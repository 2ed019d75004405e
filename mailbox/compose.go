package mailbox

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Compose renders msg as an RFC 5322 message. Bcc recipients are left out of
// the headers. The generated Message-ID is returned alongside the bytes.
func Compose(msg Outgoing, hostname string, now time.Time) ([]byte, string, error) {
	var h mail.Header
	h.SetDate(now)

	from, err := parseAddresses([]string{msg.From})
	if err != nil {
		return nil, "", err
	}
	h.SetAddressList("From", from)

	to, err := parseAddresses(msg.To)
	if err != nil {
		return nil, "", err
	}
	if len(to) == 0 {
		return nil, "", fmt.Errorf("%w: at least one recipient is required", ErrRejected)
	}
	h.SetAddressList("To", to)

	if len(msg.CC) > 0 {
		cc, err := parseAddresses(msg.CC)
		if err != nil {
			return nil, "", err
		}
		h.SetAddressList("Cc", cc)
	}
	if len(msg.BCC) > 0 {
		if _, err := parseAddresses(msg.BCC); err != nil {
			return nil, "", err
		}
	}
	if len(msg.ReplyTo) > 0 {
		replyTo, err := parseAddresses(msg.ReplyTo)
		if err != nil {
			return nil, "", err
		}
		h.SetAddressList("Reply-To", replyTo)
	}

	h.SetSubject(msg.Subject)

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), hostname)
	h.Set("Message-ID", messageID)
	if msg.InReplyTo != "" {
		h.Set("In-Reply-To", msg.InReplyTo)
	}
	if len(msg.References) > 0 {
		h.Set("References", strings.Join(msg.References, " "))
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create message writer: %w", err)
	}

	if msg.HTML {
		// Multipart alternative for HTML and plain text
		iw, err := mw.CreateInline()
		if err != nil {
			return nil, "", fmt.Errorf("failed to create inline part: %w", err)
		}
		if err := writeInline(iw, "text/plain", stripHTML(msg.Body)); err != nil {
			return nil, "", err
		}
		if err := writeInline(iw, "text/html", msg.Body); err != nil {
			return nil, "", err
		}
		if err := iw.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to close inline part: %w", err)
		}
	} else {
		var th mail.InlineHeader
		th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		w, err := mw.CreateSingleInline(th)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create text part: %w", err)
		}
		if _, err := w.Write([]byte(msg.Body)); err != nil {
			return nil, "", fmt.Errorf("failed to write body: %w", err)
		}
		w.Close()
	}

	for _, att := range msg.Attachments {
		var ah mail.AttachmentHeader
		mimeType := att.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		ah.SetContentType(mimeType, nil)
		ah.SetFilename(att.Filename)
		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create attachment %s: %w", att.Filename, err)
		}
		if _, err := w.Write(att.Content); err != nil {
			return nil, "", fmt.Errorf("failed to write attachment %s: %w", att.Filename, err)
		}
		w.Close()
	}

	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), messageID, nil
}

func writeInline(iw *mail.InlineWriter, contentType, body string) error {
	var h mail.InlineHeader
	h.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := iw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := w.Write([]byte(body)); err != nil {
		return fmt.Errorf("failed to write %s part: %w", contentType, err)
	}
	return w.Close()
}

func parseAddresses(list []string) ([]*mail.Address, error) {
	addrs := make([]*mail.Address, 0, len(list))
	for _, s := range list {
		a, err := mail.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid address %q", ErrRejected, s)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// stripHTML removes HTML tags for the plain text alternative.
func stripHTML(html string) string {
	text := strings.ReplaceAll(html, "<br>", "\n")
	text = strings.ReplaceAll(text, "<br/>", "\n")
	text = strings.ReplaceAll(text, "<br />", "\n")
	text = strings.ReplaceAll(text, "</p>", "\n\n")
	text = strings.ReplaceAll(text, "</div>", "\n")

	inTag := false
	var result strings.Builder
	for _, char := range text {
		switch {
		case char == '<':
			inTag = true
		case char == '>':
			inTag = false
		case !inTag:
			result.WriteRune(char)
		}
	}
	return strings.TrimSpace(result.String())
}
