// Package oauth handles the Google OAuth side of account management: token
// refresh for stored accounts and the interactive flow that adds new ones.
package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/MattyMroz/geminicli2api/internal/account"
)

// DefaultClientID and DefaultClientSecret are the public installed-app
// credentials used by the Gemini CLI. They identify the application, not a
// user; access still requires each account's own refresh token.
const (
	DefaultClientID     = "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com"
	DefaultClientSecret = "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"
)

// Client refreshes account tokens and runs the login flow.
type Client struct {
	clientID     string
	clientSecret string
	scopes       []string
	httpClient   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithClientCredentials overrides the OAuth application identity.
func WithClientCredentials(id, secret string) Option {
	return func(c *Client) {
		if id != "" {
			c.clientID = id
		}
		if secret != "" {
			c.clientSecret = secret
		}
	}
}

// WithHTTPClient sets the HTTP client used for token exchanges.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a Client requesting the given scopes.
func NewClient(scopes []string, opts ...Option) *Client {
	c := &Client{
		clientID:     DefaultClientID,
		clientSecret: DefaultClientSecret,
		scopes:       scopes,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) config(redirectURL string) *oauth2.Config {
	clientID, clientSecret := c.clientID, c.clientSecret
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       c.scopes,
		RedirectURL:  redirectURL,
	}
}

// Refresh exchanges the account's refresh token for a new access token and
// updates the account in place. Accounts that carry their own client
// identity keep it; others fall back to the client's.
func (c *Client) Refresh(ctx context.Context, a *account.Account) error {
	cfg := c.config("")
	if a.ClientID != "" && a.ClientSecret != "" {
		cfg.ClientID = a.ClientID
		cfg.ClientSecret = a.ClientSecret
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: a.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return fmt.Errorf("refresh token exchange: %w", err)
	}
	a.Update(tok.AccessToken, tok.Expiry)
	return nil
}
