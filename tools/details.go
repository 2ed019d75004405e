package tools

import (
	"time"

	"github.com/rgabriel/mcp-gmail/mailbox"
)

// MailDetails is the caller-facing view of a message.
type MailDetails struct {
	ID          string           `json:"id"`
	ThreadID    string           `json:"threadId,omitempty"`
	From        string           `json:"from"`
	To          []string         `json:"to"`
	CC          []string         `json:"cc,omitempty"`
	Subject     string           `json:"subject"`
	Date        string           `json:"date,omitempty"`
	Snippet     string           `json:"snippet,omitempty"`
	Body        string           `json:"body,omitempty"`
	Labels      []string         `json:"labels,omitempty"`
	Unread      bool             `json:"unread"`
	Attachments []AttachmentInfo `json:"attachments,omitempty"`
}

// AttachmentInfo describes an attachment without its content.
type AttachmentInfo struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size"`
}

// Details converts e, including the body when withBody is set.
func Details(e mailbox.Email, withBody bool) MailDetails {
	d := MailDetails{
		ID:       e.ID,
		ThreadID: e.ThreadID,
		From:     e.From,
		To:       e.To,
		CC:       e.CC,
		Subject:  e.Subject,
		Snippet:  e.Snippet,
		Labels:   e.Labels,
		Unread:   e.Unread,
	}
	if !e.Date.IsZero() {
		d.Date = e.Date.Format(time.RFC3339)
	}
	if withBody {
		d.Body = e.BodyPlain
		if d.Body == "" {
			d.Body = e.BodyHTML
		}
	}
	for _, a := range e.Attachments {
		d.Attachments = append(d.Attachments, AttachmentInfo{Filename: a.Filename, MIMEType: a.MIMEType, Size: a.Size})
	}
	return d
}

func mailList(mails []mailbox.Email) []MailDetails {
	out := make([]MailDetails, 0, len(mails))
	for _, m := range mails {
		out = append(out, Details(m, false))
	}
	return out
}
