package mailbox

import (
	"fmt"
	"strings"
)

// Reply builds a reply to original from self. With all set, every other To
// and Cc recipient of the original is copied.
func Reply(original *Email, self, body string, all bool) Outgoing {
	to := original.ReplyTo
	if len(to) == 0 {
		to = []string{original.From}
	}

	var cc []string
	if all {
		for _, addr := range append(append([]string{}, original.To...), original.CC...) {
			if !sameMailbox(addr, self) && !contains(to, addr) {
				cc = append(cc, addr)
			}
		}
	}

	subject := original.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}

	out := Outgoing{
		From:     self,
		To:       to,
		CC:       cc,
		Subject:  subject,
		Body:     body,
		ThreadID: original.ThreadID,
	}
	if original.MessageID != "" {
		out.InReplyTo = original.MessageID
		out.References = append(append([]string{}, original.References...), original.MessageID)
	}
	return out
}

// Forward builds a forward of original with note placed above the quoted
// message. Original attachments are carried over.
func Forward(original *Email, self string, to, cc, bcc []string, note string) Outgoing {
	subject := original.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "fwd:") {
		subject = "Fwd: " + subject
	}

	quoted := original.BodyPlain
	if quoted == "" {
		quoted = stripHTML(original.BodyHTML)
	}

	var b strings.Builder
	if note != "" {
		b.WriteString(note)
		b.WriteString("\n\n")
	}
	b.WriteString("---------- Forwarded message ---------\n")
	fmt.Fprintf(&b, "From: %s\n", original.From)
	if !original.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", original.Date.Format("Mon, Jan 2, 2006 at 3:04 PM"))
	}
	fmt.Fprintf(&b, "Subject: %s\n", original.Subject)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(original.To, ", "))
	b.WriteString("\n")
	b.WriteString(quoted)

	return Outgoing{
		From:        self,
		To:          to,
		CC:          cc,
		BCC:         bcc,
		Subject:     subject,
		Body:        b.String(),
		Attachments: original.Attachments,
		ThreadID:    original.ThreadID,
	}
}

func sameMailbox(addr, self string) bool {
	return self != "" && strings.Contains(strings.ToLower(addr), strings.ToLower(self))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
