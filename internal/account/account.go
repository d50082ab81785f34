package account

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

const tokenURI = "https://oauth2.googleapis.com/token"

// Account is one stored Google OAuth credential, backed by a JSON file in
// the accounts directory.
type Account struct {
	mu sync.Mutex

	Path         string // file the account was loaded from
	ClientID     string
	ClientSecret string
	Token        string
	RefreshToken string
	TokenURI     string
	Scopes       []string
	Expiry       time.Time // zero when unknown
	ProjectID    string
}

// fileShape is the canonical on-disk layout. Every save writes the whole
// record in this shape regardless of what the file looked like before.
type fileShape struct {
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Token        string   `json:"token"`
	RefreshToken string   `json:"refresh_token"`
	Scopes       []string `json:"scopes"`
	TokenURI     string   `json:"token_uri"`
	Expiry       string   `json:"expiry,omitempty"`
	ProjectID    string   `json:"project_id,omitempty"`
}

// LoadFile reads one credential file, normalizing the legacy field spellings
// written by older tooling: access_token for token, a space-separated scope
// string for scopes, and +00:00 or Z styled expiry timestamps.
func LoadFile(path string) (*Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("parse %s: invalid JSON", path)
	}
	root := gjson.ParseBytes(data)

	refreshToken := root.Get("refresh_token").String()
	if refreshToken == "" {
		return nil, fmt.Errorf("%s: missing refresh_token", path)
	}

	a := &Account{
		Path:         path,
		ClientID:     root.Get("client_id").String(),
		ClientSecret: root.Get("client_secret").String(),
		RefreshToken: refreshToken,
		TokenURI:     tokenURI,
		ProjectID:    root.Get("project_id").String(),
	}

	a.Token = root.Get("token").String()
	if a.Token == "" {
		a.Token = root.Get("access_token").String()
	}

	if scopes := root.Get("scopes"); scopes.IsArray() {
		for _, s := range scopes.Array() {
			a.Scopes = append(a.Scopes, s.String())
		}
	} else if scope := root.Get("scope").String(); scope != "" {
		a.Scopes = strings.Fields(scope)
	}

	if expiry := root.Get("expiry").String(); expiry != "" {
		a.Expiry = parseExpiry(expiry)
	}
	return a, nil
}

// parseExpiry accepts RFC 3339 with either a Z or a +00:00 offset and
// normalizes to UTC. Unparseable values collapse to zero, which reads as
// expired and forces a refresh on first use.
func parseExpiry(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// ExpiredWithin reports whether the access token is missing, already
// expired, or expires inside the given window.
func (a *Account) ExpiredWithin(window time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Token == "" || a.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(window).After(a.Expiry)
}

// AccessToken returns the current bearer token.
func (a *Account) AccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Token
}

// Project returns the cached project ID, empty when undiscovered.
func (a *Account) Project() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ProjectID
}

// Update replaces the token and expiry after a refresh.
func (a *Account) Update(token string, expiry time.Time) {
	a.mu.Lock()
	a.Token = token
	a.Expiry = expiry.UTC()
	a.mu.Unlock()
}

// Save writes the account back to its file in the canonical shape.
func (a *Account) Save() error {
	a.mu.Lock()
	shape := fileShape{
		ClientID:     a.ClientID,
		ClientSecret: a.ClientSecret,
		Token:        a.Token,
		RefreshToken: a.RefreshToken,
		Scopes:       a.Scopes,
		TokenURI:     a.TokenURI,
		ProjectID:    a.ProjectID,
	}
	if !a.Expiry.IsZero() {
		shape.Expiry = a.Expiry.UTC().Format(time.RFC3339)
	}
	path := a.Path
	a.mu.Unlock()

	data, err := json.MarshalIndent(shape, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Name is the base file name, used in logs.
func (a *Account) Name() string {
	return filepath.Base(a.Path)
}
