package gmailapi

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rgabriel/mcp-gmail/mailbox"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
)

// Scopes are the OAuth scopes every operation needs.
var Scopes = []string{
	gmail.GmailModifyScope,
	gmail.GmailSendScope,
	gmail.GmailLabelsScope,
}

// OAuthConfig returns the OAuth client configuration for Gmail.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       Scopes,
		Endpoint:     google.Endpoint,
	}
}

// TokenSaver persists a refreshed token.
type TokenSaver func(*oauth2.Token) error

type savingSource struct {
	mu   sync.Mutex
	src  oauth2.TokenSource
	save TokenSaver
	last string
}

// NewTokenSource refreshes tok through cfg and hands every new token to
// save. Refresh failures are reported as *mailbox.AuthError.
func NewTokenSource(ctx context.Context, cfg *oauth2.Config, tok *oauth2.Token, save TokenSaver) oauth2.TokenSource {
	return &savingSource{
		src:  cfg.TokenSource(ctx, tok),
		save: save,
		last: tok.AccessToken,
	}
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.src.Token()
	if err != nil {
		return nil, &mailbox.AuthError{Err: err}
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if s.save != nil {
			if err := s.save(tok); err != nil {
				slog.Warn("failed to persist refreshed token", "error", err)
			}
		}
	}
	return tok, nil
}
