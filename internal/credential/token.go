package credential

import (
	"context"
	"errors"
	"fmt"
	"os"
	gosync "sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/nhle/mail-triage/internal/mailbox"
)

// Scopes requested from the user: read and relabel mail, send mail and
// manage drafts.
var Scopes = []string{
	gmailapi.GmailModifyScope,
	gmailapi.GmailComposeScope,
}

// LoadOAuthConfig reads a Google OAuth client JSON file.
func LoadOAuthConfig(path string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading oauth client file %s: %w", path, err)
	}
	cfg, err := google.ConfigFromJSON(data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing oauth client file %s: %w", path, err)
	}
	return cfg, nil
}

// TokenProvider hands out token sources backed by the vault. The consent
// flow itself (AuthCodeURL, Exchange) runs out of band.
type TokenProvider struct {
	cfg   *oauth2.Config
	vault *Vault
	key   string
}

// NewTokenProvider creates a provider storing its token under key.
func NewTokenProvider(cfg *oauth2.Config, vault *Vault, key string) *TokenProvider {
	return &TokenProvider{cfg: cfg, vault: vault, key: key}
}

// AuthCodeURL returns the consent page URL for an offline token.
func (p *TokenProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func (p *TokenProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging auth code: %w", err)
	}
	if err := p.vault.SaveToken(p.key, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

// TokenSource returns a refreshing token source for the stored token. It
// fails with a mailbox.AuthError when no token is stored.
func (p *TokenProvider) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tok, err := p.vault.LoadToken(p.key)
	if errors.Is(err, ErrNoToken) {
		return nil, &mailbox.AuthError{
			Provider: "gmail",
			Message:  "no stored token, run `mailtriage auth`",
			Err:      err,
		}
	}
	if err != nil {
		return nil, err
	}

	return &persistingSource{
		base:  oauth2.ReuseTokenSource(tok, p.cfg.TokenSource(ctx, tok)),
		vault: p.vault,
		key:   p.key,
		last:  tok.AccessToken,
	}, nil
}

// persistingSource writes refreshed tokens back to the vault.
type persistingSource struct {
	base  oauth2.TokenSource
	vault *Vault
	key   string

	mu   gosync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &mailbox.AuthError{Provider: "gmail", Message: "token refresh failed", Err: err}
		}
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		if err := s.vault.SaveToken(s.key, tok); err != nil {
			return nil, err
		}
		s.last = tok.AccessToken
	}
	return tok, nil
}
