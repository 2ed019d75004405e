// Package gmailapi implements the mailbox surface over the Gmail REST API.
package gmailapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rgabriel/mcp-gmail/mailbox"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const userID = "me"

// Client talks to one Gmail account.
type Client struct {
	svc     *gmail.Service
	address string
	cb      *gobreaker.CircuitBreaker
}

// New creates a Client for address. opts must carry credentials, typically
// option.WithTokenSource.
func New(ctx context.Context, address string, opts ...option.ClientOption) (*Client, error) {
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return &Client{
		svc:     svc,
		address: address,
		cb:      gobreaker.NewCircuitBreaker(breakerSettings()),
	}, nil
}

func breakerSettings() gobreaker.Settings {
	return gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		IsSuccessful: func(err error) bool {
			var nce *nonCircuitError
			return err == nil || errors.As(err, &nce)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
}

// Address returns the account's email address.
func (c *Client) Address() string {
	return c.address
}

// do runs one API call behind the circuit breaker and maps its error onto
// the mailbox error kinds. Client errors do not count against the breaker.
func (c *Client) do(op string, fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if !tripsBreaker(err) {
				return nil, &nonCircuitError{err: err}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		err = nce.err
	}
	if err != nil {
		return wrapError(op, err)
	}
	return nil
}

// tripsBreaker reports whether err says the service itself is unhealthy.
// Authorization and client errors do not.
func tripsBreaker(err error) bool {
	if mailbox.IsAuthError(err) {
		return false
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 500 || apiErr.Code == 429
	}
	return true
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func wrapError(op string, err error) error {
	var authErr *mailbox.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return &mailbox.AuthError{Err: fmt.Errorf("%s: %w", op, err)}
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return &mailbox.AuthError{Err: fmt.Errorf("%s: %w", op, err)}
		case 404:
			return fmt.Errorf("%s: %w: %s", op, mailbox.ErrMessageNotFound, apiErr.Message)
		case 400:
			return fmt.Errorf("%s: %w: %s", op, mailbox.ErrRejected, apiErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
