// Package imap reads and files Gmail messages over IMAP with an app
// password. Message ids have the form "mailbox:uid".
package imap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/rgabriel/mcp-gmail/mailbox"
)

const (
	imapServer = "imap.gmail.com"
	imapPort   = 993

	allMail = "[Gmail]/All Mail"
)

// backend is the part of *client.Client this package uses.
type backend interface {
	List(ref, name string, ch chan *imap.MailboxInfo) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	UidStore(seqset *imap.SeqSet, item imap.StoreItem, value interface{}, ch chan *imap.Message) error
	UidMove(seqset *imap.SeqSet, dest string) error
	UidCopy(seqset *imap.SeqSet, dest string) error
	Expunge(ch chan uint32) error
	Logout() error
}

// Client wraps an IMAP connection to Gmail.
type Client struct {
	mu       sync.Mutex
	backend  backend
	username string
}

// NewClient connects to Gmail's IMAP server and logs in. A rejected login is
// reported as *mailbox.AuthError.
func NewClient(email, password string) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", imapServer, imapPort)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(email, password); err != nil {
		c.Logout()
		return nil, &mailbox.AuthError{Err: fmt.Errorf("failed to login: %w", err)}
	}

	return NewClientWithBackend(c, email), nil
}

// NewClientWithBackend wraps an established session.
func NewClientWithBackend(b backend, username string) *Client {
	return &Client{backend: b, username: username}
}

// Close closes the IMAP connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.backend != nil {
		return c.backend.Logout()
	}
	return nil
}

// Address returns the logged in account.
func (c *Client) Address() string {
	return c.username
}

// FormatID builds the id of message uid in mailbox name.
func FormatID(name string, uid uint32) string {
	return name + ":" + strconv.FormatUint(uint64(uid), 10)
}

// ParseID splits an id produced by FormatID.
func ParseID(id string) (string, uint32, error) {
	i := strings.LastIndex(id, ":")
	if i <= 0 {
		return "", 0, fmt.Errorf("%w: malformed id %q", mailbox.ErrMessageNotFound, id)
	}
	uid, err := strconv.ParseUint(id[i+1:], 10, 32)
	if err != nil || uid == 0 {
		return "", 0, fmt.Errorf("%w: malformed id %q", mailbox.ErrMessageNotFound, id)
	}
	return id[:i], uint32(uid), nil
}

// listNames is the internal implementation (caller must hold c.mu)
func (c *Client) listNames() ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)

	go func() {
		done <- c.backend.List("", "*", mailboxes)
	}()

	names := []string{}
	for m := range mailboxes {
		if hasAttr(m.Attributes, imap.NoSelectAttr) {
			continue
		}
		names = append(names, m.Name)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	return names, nil
}

func hasAttr(attrs []string, want string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a, want) {
			return true
		}
	}
	return false
}

func isSystem(name string) bool {
	return name == "INBOX" || strings.HasPrefix(name, "[Gmail]/")
}

func (c *Client) filterNames(system bool) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	names, err := c.listNames()
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, n := range names {
		if isSystem(n) == system {
			out = append(out, n)
		}
	}
	return out, nil
}

// Folders lists INBOX and the [Gmail]/ system mailboxes.
func (c *Client) Folders(ctx context.Context) ([]string, error) {
	return c.filterNames(true)
}

// Labels lists user labels, which Gmail exposes as mailboxes.
func (c *Client) Labels(ctx context.Context) ([]string, error) {
	return c.filterNames(false)
}

// exists reports whether name is a selectable mailbox (caller must hold c.mu)
func (c *Client) exists(name string) (bool, error) {
	names, err := c.listNames()
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// selectMessage selects the mailbox holding id and confirms the uid is
// present (caller must hold c.mu)
func (c *Client) selectMessage(id string, readOnly bool) (*imap.SeqSet, error) {
	folder, uid, err := ParseID(id)
	if err != nil {
		return nil, err
	}
	ok, err := c.exists(folder)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", mailbox.ErrMessageNotFound, id)
	}
	if _, err := c.backend.Select(folder, readOnly); err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", folder, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	criteria := imap.NewSearchCriteria()
	criteria.Uid = seqSet
	uids, err := c.backend.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}
	if len(uids) == 0 {
		return nil, fmt.Errorf("%w: %s", mailbox.ErrMessageNotFound, id)
	}
	return seqSet, nil
}

// MessageExists reports whether id names a message in the account.
func (c *Client) MessageExists(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.selectMessage(id, true)
	if errors.Is(err, mailbox.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Search runs query against every message in the account, newest first.
func (c *Client) Search(ctx context.Context, query string, page mailbox.Page) ([]mailbox.Email, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.backend.Select(allMail, true); err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", allMail, err)
	}
	criteria := imap.NewSearchCriteria()
	if query != "" {
		criteria.Text = []string{query}
	}
	return c.searchPage(allMail, criteria, page)
}

// ListByLabel returns one page of the named mailbox, newest first.
func (c *Client) ListByLabel(ctx context.Context, name string, page mailbox.Page) ([]mailbox.Email, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok, err := c.exists(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", mailbox.ErrFolderNotFound, name)
	}
	if _, err := c.backend.Select(name, true); err != nil {
		return nil, fmt.Errorf("failed to select folder %s: %w", name, err)
	}
	return c.searchPage(name, imap.NewSearchCriteria(), page)
}

// searchPage is the internal implementation (caller must hold c.mu)
func (c *Client) searchPage(folder string, criteria *imap.SearchCriteria, page mailbox.Page) ([]mailbox.Email, error) {
	uids, err := c.backend.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search emails: %w", err)
	}

	// Highest UID is the most recent.
	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	offset := page.Offset()
	if offset >= len(uids) || page.Size <= 0 {
		return []mailbox.Email{}, nil
	}
	uids = uids[offset:min(len(uids), offset+page.Size)]

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.backend.UidFetch(seqSet, []imap.FetchItem{imap.FetchEnvelope, imap.FetchFlags, imap.FetchUid}, messages)
	}()

	emails := []mailbox.Email{}
	for msg := range messages {
		if email := parseMessageData(folder, msg); email != nil {
			emails = append(emails, *email)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	sort.SliceStable(emails, func(i, j int) bool { return emails[i].Date.After(emails[j].Date) })
	return emails, nil
}

// fetchFull is the internal implementation (caller must hold c.mu)
func (c *Client) fetchFull(id string) (*imap.Message, []byte, error) {
	seqSet, err := c.selectMessage(id, true)
	if err != nil {
		return nil, nil, err
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	section := &imap.BodySectionName{Peek: true}
	go func() {
		done <- c.backend.UidFetch(seqSet, []imap.FetchItem{imap.FetchFlags, imap.FetchUid, section.FetchItem()}, messages)
	}()

	msg := <-messages
	for range messages {
	}
	if err := <-done; err != nil {
		return nil, nil, fmt.Errorf("failed to fetch message: %w", err)
	}
	if msg == nil {
		return nil, nil, fmt.Errorf("%w: %s", mailbox.ErrMessageNotFound, id)
	}

	for _, literal := range msg.Body {
		raw, err := io.ReadAll(literal)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read message: %w", err)
		}
		return msg, raw, nil
	}
	return nil, nil, fmt.Errorf("message %s has no body", id)
}

// GetRaw returns the RFC 5322 source of a message.
func (c *Client) GetRaw(ctx context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, raw, err := c.fetchFull(id)
	return raw, err
}

// GetMessage fetches and parses a complete message.
func (c *Client) GetMessage(ctx context.Context, id string) (*mailbox.Email, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, raw, err := c.fetchFull(id)
	if err != nil {
		return nil, err
	}
	email, err := mailbox.ParseRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}
	folder, _, _ := ParseID(id)
	email.ID = id
	email.Labels = []string{folder}
	email.Unread = !hasFlag(msg.Flags, imap.SeenFlag)
	return email, nil
}

// Move moves a message into folder.
func (c *Client) Move(ctx context.Context, id, folder string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ok, err := c.exists(folder)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", mailbox.ErrFolderNotFound, folder)
	}
	seqSet, err := c.selectMessage(id, false)
	if err != nil {
		return err
	}

	// Try to use MOVE command (if supported)
	// Otherwise fall back to COPY + DELETE
	if err := c.backend.UidMove(seqSet, folder); err != nil {
		if err := c.backend.UidCopy(seqSet, folder); err != nil {
			return fmt.Errorf("failed to copy email: %w", err)
		}

		item := imap.FormatFlagsOp(imap.AddFlags, true)
		flags := []interface{}{imap.DeletedFlag}
		if err := c.backend.UidStore(seqSet, item, flags, nil); err != nil {
			return fmt.Errorf("failed to mark email as deleted: %w", err)
		}

		if err := c.backend.Expunge(nil); err != nil {
			return fmt.Errorf("failed to expunge: %w", err)
		}
	}
	return nil
}

// Mark applies a read, star or importance change. Importance uses Gmail's
// X-GM-LABELS extension.
func (c *Client) Mark(ctx context.Context, id string, mark mailbox.Mark) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	seqSet, err := c.selectMessage(id, false)
	if err != nil {
		return err
	}

	var (
		item imap.StoreItem
		flag string
	)
	switch mark {
	case mailbox.MarkRead:
		item, flag = imap.FormatFlagsOp(imap.AddFlags, true), imap.SeenFlag
	case mailbox.MarkUnread:
		item, flag = imap.FormatFlagsOp(imap.RemoveFlags, true), imap.SeenFlag
	case mailbox.MarkStarred:
		item, flag = imap.FormatFlagsOp(imap.AddFlags, true), imap.FlaggedFlag
	case mailbox.MarkUnstarred:
		item, flag = imap.FormatFlagsOp(imap.RemoveFlags, true), imap.FlaggedFlag
	case mailbox.MarkImportant:
		item, flag = imap.StoreItem("+X-GM-LABELS.SILENT"), `\Important`
	case mailbox.MarkNotImportant:
		item, flag = imap.StoreItem("-X-GM-LABELS.SILENT"), `\Important`
	default:
		return fmt.Errorf("%w: unknown mark %q", mailbox.ErrRejected, mark)
	}

	if err := c.backend.UidStore(seqSet, item, []interface{}{flag}, nil); err != nil {
		return fmt.Errorf("failed to mark email: %w", err)
	}
	return nil
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// parseMessageData parses envelope data into a summary Email.
func parseMessageData(folder string, msg *imap.Message) *mailbox.Email {
	if msg.Envelope == nil {
		return nil
	}

	email := &mailbox.Email{
		ID:        FormatID(folder, msg.Uid),
		Subject:   msg.Envelope.Subject,
		Date:      msg.Envelope.Date,
		Unread:    !hasFlag(msg.Flags, imap.SeenFlag),
		Labels:    []string{folder},
		MessageID: msg.Envelope.MessageId,
	}

	if len(msg.Envelope.From) > 0 {
		email.From = formatAddress(msg.Envelope.From[0])
	}

	email.To = make([]string, 0, len(msg.Envelope.To))
	for _, addr := range msg.Envelope.To {
		email.To = append(email.To, formatAddress(addr))
	}

	email.CC = make([]string, 0, len(msg.Envelope.Cc))
	for _, addr := range msg.Envelope.Cc {
		email.CC = append(email.CC, formatAddress(addr))
	}

	if msg.Envelope.InReplyTo != "" {
		email.References = append(email.References, msg.Envelope.InReplyTo)
	}

	email.Snippet = mailbox.Snippet("", email.Subject)
	return email
}

// formatAddress formats an IMAP address as a string
func formatAddress(addr *imap.Address) string {
	return mailbox.FormatAddress(addr.PersonalName, addr.Address())
}
