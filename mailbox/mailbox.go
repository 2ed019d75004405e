// Package mailbox defines the mail account surface the tool handlers work
// against. The Gmail REST client and the Gmail IMAP/SMTP pair both satisfy it.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is the root of every "does not exist" error a provider returns.
	ErrNotFound = errors.New("not found")
	// ErrMessageNotFound reports an unknown message id.
	ErrMessageNotFound = fmt.Errorf("message %w", ErrNotFound)
	// ErrFolderNotFound reports an unknown folder or label.
	ErrFolderNotFound = fmt.Errorf("folder %w", ErrNotFound)
	// ErrRejected reports input the provider refused, such as a malformed
	// recipient or search query.
	ErrRejected = errors.New("rejected by mail provider")
)

// AuthError signals that the account must be (re)authorized before any call
// can succeed. It is never converted into a validation or business failure.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "authorization required"
	}
	return fmt.Sprintf("authorization required: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err or anything it wraps is an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// Email represents a complete email message
type Email struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"threadId,omitempty"`
	From        string       `json:"from"`
	To          []string     `json:"to"`
	CC          []string     `json:"cc"`
	BCC         []string     `json:"bcc,omitempty"`
	ReplyTo     []string     `json:"replyTo,omitempty"`
	Subject     string       `json:"subject"`
	Date        time.Time    `json:"date"`
	BodyPlain   string       `json:"bodyPlain,omitempty"`
	BodyHTML    string       `json:"bodyHTML,omitempty"`
	Snippet     string       `json:"snippet,omitempty"`
	Labels      []string     `json:"labels,omitempty"`
	Unread      bool         `json:"unread"`
	Attachments []Attachment `json:"attachments,omitempty"`
	MessageID   string       `json:"messageId,omitempty"`
	References  []string     `json:"references,omitempty"`
}

// Attachment is a file carried by a message. Content is only populated when
// the attachment is being sent or forwarded.
type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size"`
	Content  []byte `json:"-"`
}

// Outgoing is a message ready to be composed and submitted.
type Outgoing struct {
	From        string
	To          []string
	CC          []string
	BCC         []string
	ReplyTo     []string
	Subject     string
	Body        string
	HTML        bool
	Attachments []Attachment
	InReplyTo   string
	References  []string
	// ThreadID keeps a reply in the original conversation on providers that
	// track threads explicitly.
	ThreadID string
}

// Recipients returns every envelope recipient, Bcc included.
func (o Outgoing) Recipients() []string {
	rcpts := make([]string, 0, len(o.To)+len(o.CC)+len(o.BCC))
	rcpts = append(rcpts, o.To...)
	rcpts = append(rcpts, o.CC...)
	rcpts = append(rcpts, o.BCC...)
	return rcpts
}

// Page selects a 1-based page of results.
type Page struct {
	Number int
	Size   int
}

// DefaultPage is used when a caller supplies no paging.
var DefaultPage = Page{Number: 1, Size: 10}

// Offset returns the number of results that precede the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// Mark is a state change applied to a single message.
type Mark string

const (
	MarkRead         Mark = "read"
	MarkUnread       Mark = "unread"
	MarkStarred      Mark = "starred"
	MarkUnstarred    Mark = "unstarred"
	MarkImportant    Mark = "important"
	MarkNotImportant Mark = "not-important"
)

// Marks lists every supported mark in display order.
var Marks = []Mark{MarkRead, MarkUnread, MarkStarred, MarkUnstarred, MarkImportant, MarkNotImportant}

// ParseMark maps user input onto a Mark.
func ParseMark(s string) (Mark, bool) {
	for _, m := range Marks {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}

// Reader defines read-only account operations.
type Reader interface {
	MessageExists(ctx context.Context, id string) (bool, error)
	// Folders lists system mailboxes such as INBOX, SPAM or TRASH.
	Folders(ctx context.Context) ([]string, error)
	// Labels lists user-created labels.
	Labels(ctx context.Context) ([]string, error)
	Search(ctx context.Context, query string, page Page) ([]Email, error)
	// ListByLabel lists messages under a folder or label name.
	ListByLabel(ctx context.Context, name string, page Page) ([]Email, error)
	GetMessage(ctx context.Context, id string) (*Email, error)
	// GetRaw returns the RFC 5322 source of a message.
	GetRaw(ctx context.Context, id string) ([]byte, error)
}

// Modifier defines mutating account operations.
type Modifier interface {
	Move(ctx context.Context, id, folder string) error
	Mark(ctx context.Context, id string, mark Mark) error
}

// Sender submits outgoing mail and returns the provider's id for it.
type Sender interface {
	Send(ctx context.Context, msg Outgoing) (string, error)
}

// Provider combines all account operations for one mailbox.
type Provider interface {
	Reader
	Modifier
	Sender
	Address() string
}

// Watcher is implemented by providers that can push change notifications.
type Watcher interface {
	Watch(ctx context.Context, topic string, labels []string) (historyID uint64, expiration time.Time, err error)
	// History returns ids of messages added since startHistoryID and the
	// newest history id seen.
	History(ctx context.Context, startHistoryID uint64) ([]string, uint64, error)
}
