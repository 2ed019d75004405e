package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rgabriel/mcp-gmail/tools"
)

// Delivery is what a sink receives for one processed notification.
type Delivery struct {
	Account   string              `json:"account"`
	HistoryID uint64              `json:"historyId"`
	Mails     []tools.MailDetails `json:"mails"`
}

// Sink receives new mail.
type Sink interface {
	Deliver(ctx context.Context, d Delivery) error
}

// HookSink posts deliveries as JSON to an HTTP endpoint.
type HookSink struct {
	URL    string
	Token  string
	Client *http.Client
}

func (h HookSink) Deliver(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build hook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending hook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("hook returned unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// LogSink writes deliveries to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Deliver(ctx context.Context, d Delivery) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, m := range d.Mails {
		logger.InfoContext(ctx, "new mail",
			"account", d.Account,
			"history_id", d.HistoryID,
			"id", m.ID,
			"from", m.From,
			"subject", m.Subject,
		)
	}
	return nil
}
