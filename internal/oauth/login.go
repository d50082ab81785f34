package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/MattyMroz/geminicli2api/internal/account"
)

// Login runs the interactive authorization-code flow with PKCE: it prints
// the consent URL, waits for the browser redirect on localhost, exchanges
// the code, and saves the result as the next account_N.json in dir.
func (c *Client) Login(ctx context.Context, dir string, callbackPort int) (*account.Account, error) {
	redirect := fmt.Sprintf("http://localhost:%d", callbackPort)
	cfg := c.config(redirect)

	state, err := randomToken()
	if err != nil {
		return nil, err
	}
	verifier := oauth2.GenerateVerifier()

	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.S256ChallengeOption(verifier),
	)

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", callbackPort))
	if err != nil {
		return nil, fmt.Errorf("listen for oauth callback: %w", err)
	}

	fmt.Println("Open this URL in your browser to add a Google account:")
	fmt.Println(authURL)

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- errors.New("oauth callback state mismatch")
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			errCh <- errors.New("oauth callback missing code")
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<h1>Account added. You can close this window.</h1>")
		codeCh <- code
	})}
	go srv.Serve(ln)
	defer srv.Close()

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(5 * time.Minute):
		return nil, errors.New("timed out waiting for oauth callback")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, errors.New("no refresh token returned; revoke the app's access and retry")
	}

	path, err := nextAccountPath(dir)
	if err != nil {
		return nil, err
	}
	a := &account.Account{
		Path:         path,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Token:        tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenURI:     cfg.Endpoint.TokenURL,
		Scopes:       c.scopes,
		Expiry:       tok.Expiry.UTC(),
	}
	if err := a.Save(); err != nil {
		return nil, err
	}
	log.Infof("account saved as %s", path)
	return a, nil
}

func nextAccountPath(dir string) (string, error) {
	existing, err := filepath.Glob(filepath.Join(dir, "account_*.json"))
	if err != nil {
		return "", fmt.Errorf("scan accounts dir: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("account_%d.json", len(existing)+1)), nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(b), nil
}
