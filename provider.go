package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rgabriel/mcp-gmail/config"
	"github.com/rgabriel/mcp-gmail/credential"
	"github.com/rgabriel/mcp-gmail/gmailapi"
	"github.com/rgabriel/mcp-gmail/imap"
	"github.com/rgabriel/mcp-gmail/mailbox"
	"github.com/rgabriel/mcp-gmail/smtp"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
)

var errNoWatch = errors.New("push notifications need the api backend")

// imapProvider reads over IMAP and sends over SMTP.
type imapProvider struct {
	*imap.Client
	sender *smtp.Client
}

func (p imapProvider) Send(ctx context.Context, msg mailbox.Outgoing) (string, error) {
	return p.sender.Send(ctx, msg)
}

// resolveSecrets fills secrets missing from the environment with keyring
// values. creds may be nil when no keyring is available.
func resolveSecrets(cfg *config.Config, creds *credential.Store) error {
	if creds == nil {
		return cfg.RequireSecrets()
	}
	var err error
	switch cfg.Backend {
	case config.BackendAPI:
		if cfg.RefreshToken == "" {
			if cfg.RefreshToken, err = creds.Lookup(credential.KeyRefreshToken, ""); err != nil {
				return err
			}
		}
		if cfg.RefreshToken == "" {
			if tok, err := creds.LoadToken(); err == nil {
				cfg.RefreshToken = tok.RefreshToken
			} else if !errors.Is(err, credential.ErrNotFound) {
				return err
			}
		}
	case config.BackendIMAP:
		if cfg.AppPassword == "" {
			if cfg.AppPassword, err = creds.Lookup(credential.KeyAppPassword, ""); err != nil {
				return err
			}
		}
	}
	return cfg.RequireSecrets()
}

// initialToken starts from the last saved token when it belongs to the
// configured refresh token, so a still-valid access token is reused.
func initialToken(cfg *config.Config, creds *credential.Store) *oauth2.Token {
	tok := &oauth2.Token{RefreshToken: cfg.RefreshToken}
	if creds == nil {
		return tok
	}
	saved, err := creds.LoadToken()
	if err != nil || saved.RefreshToken != cfg.RefreshToken {
		return tok
	}
	return saved
}

// openProvider connects the configured backend. The returned close function
// releases its connections.
func openProvider(ctx context.Context, cfg *config.Config, creds *credential.Store) (mailbox.Provider, func(), error) {
	switch cfg.Backend {
	case config.BackendIMAP:
		imapClient, err := imap.NewClient(cfg.Address, cfg.AppPassword)
		if err != nil {
			return nil, nil, err
		}
		p := imapProvider{Client: imapClient, sender: smtp.NewClient(cfg.Address, cfg.AppPassword)}
		return p, func() { imapClient.Close() }, nil

	case config.BackendAPI:
		var save gmailapi.TokenSaver
		if creds != nil {
			save = creds.SaveToken
		}
		oauthCfg := gmailapi.OAuthConfig(cfg.ClientID, cfg.ClientSecret, cfg.RedirectURL)
		ts := gmailapi.NewTokenSource(ctx, oauthCfg, initialToken(cfg, creds), save)
		client, err := gmailapi.New(ctx, cfg.Address, option.WithTokenSource(ts))
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
}

// openCredentials opens the keyring, or returns nil when none is usable.
func openCredentials(cfg *config.Config) *credential.Store {
	creds, err := credential.Open(keyringService, cfg.KeyringDir)
	if err != nil {
		slog.Warn("keyring unavailable, using environment secrets only", "error", err)
		return nil
	}
	return creds
}
