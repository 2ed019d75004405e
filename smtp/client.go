// Package smtp submits mail through Gmail's SMTP relay with an app password.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/rgabriel/mcp-gmail/mailbox"
)

const (
	smtpServer = "smtp.gmail.com"
	smtpPort   = 587
)

// Client handles SMTP operations for sending emails
type Client struct {
	username string
	password string
	host     string
	port     int
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewClient creates a new SMTP client
func NewClient(username, password string) *Client {
	return &Client{
		username: username,
		password: password,
		host:     smtpServer,
		port:     smtpPort,
		sendMail: smtp.SendMail,
	}
}

// Send submits msg and returns its Message-ID. Bcc recipients receive the
// message through the envelope only.
func (c *Client) Send(ctx context.Context, msg mailbox.Outgoing) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if msg.From == "" {
		msg.From = c.username
	}

	raw, messageID, err := mailbox.Compose(msg, c.host, time.Now())
	if err != nil {
		return "", err
	}

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	auth := smtp.PlainAuth("", c.username, c.password, c.host)
	if err := c.sendMail(addr, auth, c.username, msg.Recipients(), raw); err != nil {
		return "", classify(err)
	}
	return messageID, nil
}

// classify maps SMTP reply codes onto mailbox errors.
func classify(err error) error {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		switch {
		case tpErr.Code == 534 || tpErr.Code == 535:
			return &mailbox.AuthError{Err: fmt.Errorf("failed to authenticate: %w", err)}
		case tpErr.Code >= 550 && tpErr.Code <= 554:
			return fmt.Errorf("%w: %v", mailbox.ErrRejected, err)
		}
	}
	return fmt.Errorf("failed to send email: %w", err)
}
