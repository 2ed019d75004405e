package gmailapi

import (
	"context"
	"time"

	"google.golang.org/api/gmail/v1"
)

// Watch asks Gmail to publish changes to the given labels on a Pub/Sub
// topic. Label names are resolved to ids first.
func (c *Client) Watch(ctx context.Context, topic string, labels []string) (uint64, time.Time, error) {
	ids := make([]string, 0, len(labels))
	for _, name := range labels {
		id, err := c.resolveLabel(ctx, name)
		if err != nil {
			return 0, time.Time{}, err
		}
		ids = append(ids, id)
	}

	var resp *gmail.WatchResponse
	err := c.do("users.watch", func() (err error) {
		resp, err = c.svc.Users.Watch(userID, &gmail.WatchRequest{
			TopicName:         topic,
			LabelIds:          ids,
			LabelFilterAction: "include",
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return resp.HistoryId, time.UnixMilli(resp.Expiration), nil
}

// History returns ids of messages added since startHistoryID, and the
// newest history id Gmail reported.
func (c *Client) History(ctx context.Context, startHistoryID uint64) ([]string, uint64, error) {
	var (
		ids    []string
		latest = startHistoryID
		token  string
	)
	for {
		call := c.svc.Users.History.List(userID).
			StartHistoryId(startHistoryID).
			HistoryTypes("messageAdded").
			Context(ctx)
		if token != "" {
			call = call.PageToken(token)
		}

		var resp *gmail.ListHistoryResponse
		if err := c.do("history.list", func() (err error) {
			resp, err = call.Do()
			return err
		}); err != nil {
			return nil, 0, err
		}
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message != nil {
					ids = append(ids, added.Message.Id)
				}
			}
		}
		if resp.HistoryId > latest {
			latest = resp.HistoryId
		}
		if resp.NextPageToken == "" {
			return ids, latest, nil
		}
		token = resp.NextPageToken
	}
}
