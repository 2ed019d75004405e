package gmailapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/rgabriel/mcp-gmail/mailbox"
	"google.golang.org/api/gmail/v1"
)

var metadataHeaders = []string{"From", "To", "Cc", "Subject", "Date", "Message-ID"}

// MessageExists reports whether id names a message in the account.
func (c *Client) MessageExists(ctx context.Context, id string) (bool, error) {
	err := c.do("messages.get", func() error {
		_, err := c.svc.Users.Messages.Get(userID, id).Format("minimal").Context(ctx).Do()
		return err
	})
	if errors.Is(err, mailbox.ErrNotFound) || errors.Is(err, mailbox.ErrRejected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) listLabels(ctx context.Context) ([]*gmail.Label, error) {
	var resp *gmail.ListLabelsResponse
	err := c.do("labels.list", func() (err error) {
		resp, err = c.svc.Users.Labels.List(userID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp.Labels, nil
}

func (c *Client) labelNames(ctx context.Context, kind string) ([]string, error) {
	labels, err := c.listLabels(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, l := range labels {
		if l.Type == kind {
			names = append(names, l.Name)
		}
	}
	return names, nil
}

// Folders lists Gmail's system labels.
func (c *Client) Folders(ctx context.Context) ([]string, error) {
	return c.labelNames(ctx, "system")
}

// Labels lists user-created labels.
func (c *Client) Labels(ctx context.Context) ([]string, error) {
	return c.labelNames(ctx, "user")
}

// resolveLabel maps a label or folder name to its id.
func (c *Client) resolveLabel(ctx context.Context, name string) (string, error) {
	labels, err := c.listLabels(ctx)
	if err != nil {
		return "", err
	}
	for _, l := range labels {
		if l.Name == name || l.Id == name {
			return l.Id, nil
		}
	}
	return "", fmt.Errorf("%w: %s", mailbox.ErrFolderNotFound, name)
}

// Search runs a Gmail search query and returns one page of matches.
func (c *Client) Search(ctx context.Context, query string, page mailbox.Page) ([]mailbox.Email, error) {
	return c.list(ctx, query, nil, page)
}

// ListByLabel returns one page of messages carrying the named label.
func (c *Client) ListByLabel(ctx context.Context, name string, page mailbox.Page) ([]mailbox.Email, error) {
	id, err := c.resolveLabel(ctx, name)
	if err != nil {
		return nil, err
	}
	return c.list(ctx, "", []string{id}, page)
}

func (c *Client) list(ctx context.Context, query string, labelIDs []string, page mailbox.Page) ([]mailbox.Email, error) {
	offset := page.Offset()
	want := offset + page.Size

	var ids []string
	token := ""
	for len(ids) < want {
		call := c.svc.Users.Messages.List(userID).MaxResults(int64(min(want-len(ids), 500))).Context(ctx)
		if query != "" {
			call = call.Q(query)
		}
		if len(labelIDs) > 0 {
			call = call.LabelIds(labelIDs...)
		}
		if token != "" {
			call = call.PageToken(token)
		}

		var resp *gmail.ListMessagesResponse
		if err := c.do("messages.list", func() (err error) {
			resp, err = call.Do()
			return err
		}); err != nil {
			return nil, err
		}
		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}

	if offset >= len(ids) {
		return []mailbox.Email{}, nil
	}
	ids = ids[offset:min(len(ids), want)]

	mails := make([]mailbox.Email, 0, len(ids))
	for _, id := range ids {
		var msg *gmail.Message
		err := c.do("messages.get", func() (err error) {
			msg, err = c.svc.Users.Messages.Get(userID, id).Format("metadata").MetadataHeaders(metadataHeaders...).Context(ctx).Do()
			return err
		})
		if errors.Is(err, mailbox.ErrNotFound) {
			// Deleted between list and get.
			continue
		}
		if err != nil {
			return nil, err
		}
		mails = append(mails, fromMetadata(msg))
	}
	return mails, nil
}

func fromMetadata(msg *gmail.Message) mailbox.Email {
	e := mailbox.Email{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Labels:   msg.LabelIds,
		Unread:   hasLabel(msg.LabelIds, "UNREAD"),
	}
	if msg.InternalDate > 0 {
		e.Date = time.UnixMilli(msg.InternalDate)
	}
	if msg.Payload == nil {
		return e
	}
	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			if list := addresses(h.Value); len(list) > 0 {
				e.From = list[0]
			}
		case "to":
			e.To = addresses(h.Value)
		case "cc":
			e.CC = addresses(h.Value)
		case "subject":
			e.Subject = h.Value
		case "message-id":
			e.MessageID = h.Value
		}
	}
	return e
}

func addresses(value string) []string {
	list, err := mail.ParseAddressList(value)
	if err != nil {
		return []string{strings.TrimSpace(value)}
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, mailbox.FormatAddress(a.Name, a.Address))
	}
	return out
}

func hasLabel(labels []string, id string) bool {
	for _, l := range labels {
		if l == id {
			return true
		}
	}
	return false
}

func (c *Client) getRaw(ctx context.Context, id string) (*gmail.Message, []byte, error) {
	var msg *gmail.Message
	err := c.do("messages.get", func() (err error) {
		msg, err = c.svc.Users.Messages.Get(userID, id).Format("raw").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	raw, err := decodeRaw(msg.Raw)
	if err != nil {
		return nil, nil, fmt.Errorf("decoding message %s: %w", id, err)
	}
	return msg, raw, nil
}

// GetRaw returns the RFC 5322 source of a message.
func (c *Client) GetRaw(ctx context.Context, id string) ([]byte, error) {
	_, raw, err := c.getRaw(ctx, id)
	return raw, err
}

// GetMessage fetches and parses a complete message.
func (c *Client) GetMessage(ctx context.Context, id string) (*mailbox.Email, error) {
	msg, raw, err := c.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	e, err := mailbox.ParseRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing message %s: %w", id, err)
	}
	e.ID = msg.Id
	e.ThreadID = msg.ThreadId
	e.Labels = msg.LabelIds
	e.Unread = hasLabel(msg.LabelIds, "UNREAD")
	if msg.Snippet != "" {
		e.Snippet = msg.Snippet
	}
	if e.Date.IsZero() && msg.InternalDate > 0 {
		e.Date = time.UnixMilli(msg.InternalDate)
	}
	return e, nil
}

func decodeRaw(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}

// Move files a message under folder and takes it out of the inbox.
func (c *Client) Move(ctx context.Context, id, folder string) error {
	labelID, err := c.resolveLabel(ctx, folder)
	if err != nil {
		return err
	}
	req := &gmail.ModifyMessageRequest{AddLabelIds: []string{labelID}}
	switch labelID {
	case "INBOX":
		req.RemoveLabelIds = []string{"SPAM", "TRASH"}
	default:
		req.RemoveLabelIds = []string{"INBOX"}
	}
	return c.modify(ctx, id, req)
}

// Mark applies a read, star or importance change.
func (c *Client) Mark(ctx context.Context, id string, mark mailbox.Mark) error {
	req := &gmail.ModifyMessageRequest{}
	switch mark {
	case mailbox.MarkRead:
		req.RemoveLabelIds = []string{"UNREAD"}
	case mailbox.MarkUnread:
		req.AddLabelIds = []string{"UNREAD"}
	case mailbox.MarkStarred:
		req.AddLabelIds = []string{"STARRED"}
	case mailbox.MarkUnstarred:
		req.RemoveLabelIds = []string{"STARRED"}
	case mailbox.MarkImportant:
		req.AddLabelIds = []string{"IMPORTANT"}
	case mailbox.MarkNotImportant:
		req.RemoveLabelIds = []string{"IMPORTANT"}
	default:
		return fmt.Errorf("%w: unknown mark %q", mailbox.ErrRejected, mark)
	}
	return c.modify(ctx, id, req)
}

func (c *Client) modify(ctx context.Context, id string, req *gmail.ModifyMessageRequest) error {
	return c.do("messages.modify", func() error {
		_, err := c.svc.Users.Messages.Modify(userID, id, req).Context(ctx).Do()
		return err
	})
}

// Send submits msg and returns the id Gmail assigned to it.
func (c *Client) Send(ctx context.Context, msg mailbox.Outgoing) (string, error) {
	if msg.From == "" {
		msg.From = c.address
	}
	raw, _, err := mailbox.Compose(msg, domainOf(c.address), time.Now())
	if err != nil {
		return "", err
	}

	var sent *gmail.Message
	err = c.do("messages.send", func() (err error) {
		sent, err = c.svc.Users.Messages.Send(userID, &gmail.Message{
			Raw:      base64.URLEncoding.EncodeToString(raw),
			ThreadId: msg.ThreadID,
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return sent.Id, nil
}

func domainOf(address string) string {
	if at := strings.LastIndex(address, "@"); at >= 0 && at < len(address)-1 {
		return address[at+1:]
	}
	return "gmail.com"
}
