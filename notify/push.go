// Package notify receives Gmail push notifications relayed by Cloud Pub/Sub
// and forwards the newly added messages to a sink.
package notify

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Envelope is the body of a Pub/Sub push request.
type Envelope struct {
	Message struct {
		Data        string `json:"data"`
		MessageID   string `json:"messageId"`
		PublishTime string `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// Notification is the payload Gmail publishes for a mailbox change.
type Notification struct {
	EmailAddress string    `json:"emailAddress"`
	HistoryID    HistoryID `json:"historyId"`
}

// HistoryID accepts both the quoted and the bare numeric form Gmail uses.
type HistoryID uint64

func (h *HistoryID) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid historyId %s", b)
	}
	*h = HistoryID(v)
	return nil
}

// Decode extracts the Gmail notification carried by env.
func (env Envelope) Decode() (Notification, error) {
	var n Notification
	if env.Message.Data == "" {
		return n, fmt.Errorf("push message has no data")
	}
	raw, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		// Some relays strip padding or use the URL alphabet.
		raw, err = base64.RawURLEncoding.DecodeString(env.Message.Data)
		if err != nil {
			return n, fmt.Errorf("decoding push data: %w", err)
		}
	}
	if err := json.Unmarshal(raw, &n); err != nil {
		return n, fmt.Errorf("parsing push data: %w", err)
	}
	if n.HistoryID == 0 {
		return n, fmt.Errorf("push data has no historyId")
	}
	return n, nil
}
