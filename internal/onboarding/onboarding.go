// Package onboarding provisions Code Assist access for each account: it
// discovers the account's cloudaicompanion project and, when the account has
// no current tier, runs the onboardUser long-running operation to
// completion. Completion is memoized per account for the process lifetime.
package onboarding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/MattyMroz/geminicli2api/internal/account"
	"github.com/MattyMroz/geminicli2api/internal/util"
)

const (
	pollInterval = 5 * time.Second
	pollTimeout  = 120 * time.Second
)

// Error marks a provisioning failure. It is specific to the failing request:
// the dispatcher reports it as a 500 without rotating accounts, and the next
// request for the same account retries the full sequence.
type Error struct {
	Account string
	Err     error
}

func (e *Error) Error() string { return fmt.Sprintf("onboarding failed for %s: %v", e.Account, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// ProjectStore persists a discovered project binding.
type ProjectStore interface {
	SetProjectID(a *account.Account, projectID string)
}

// Controller runs discovery and provisioning against the Code Assist API.
type Controller struct {
	endpoint       string
	userAgent      string
	httpClient     *http.Client
	projects       ProjectStore
	projectDefault string // config override, skips API discovery

	mu        sync.Mutex
	onboarded map[string]struct{} // keyed by account path
}

// New creates a Controller. projectDefault, when non-empty, pins every
// account to that project instead of discovering one per account.
func New(endpoint, userAgent string, projects ProjectStore, projectDefault string) *Controller {
	return &Controller{
		endpoint:       endpoint,
		userAgent:      userAgent,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		projects:       projects,
		projectDefault: projectDefault,
		onboarded:      make(map[string]struct{}),
	}
}

// EnsureProject returns the account's project binding, discovering and
// caching it on first use.
func (c *Controller) EnsureProject(ctx context.Context, a *account.Account) (string, error) {
	if pid := a.Project(); pid != "" {
		return pid, nil
	}
	if c.projectDefault != "" {
		c.projects.SetProjectID(a, c.projectDefault)
		return c.projectDefault, nil
	}

	body, err := c.post(ctx, a, "loadCodeAssist", map[string]any{
		"metadata": util.ClientMetadata(),
	})
	if err != nil {
		return "", &Error{Account: a.Name(), Err: fmt.Errorf("project discovery: %w", err)}
	}
	discovered := gjson.GetBytes(body, "cloudaicompanionProject").String()
	if discovered == "" {
		return "", &Error{Account: a.Name(), Err: fmt.Errorf("no cloudaicompanionProject in response")}
	}
	c.projects.SetProjectID(a, discovered)
	log.Infof("discovered project %s for %s", discovered, a.Name())
	return discovered, nil
}

// Ensure completes provisioning for the account. Once an account is marked
// provisioned in this process no further calls are issued for it.
func (c *Controller) Ensure(ctx context.Context, a *account.Account, projectID string) error {
	c.mu.Lock()
	_, done := c.onboarded[a.Path]
	c.mu.Unlock()
	if done {
		return nil
	}

	body, err := c.post(ctx, a, "loadCodeAssist", map[string]any{
		"cloudaicompanionProject": projectID,
		"metadata":                util.ClientMetadataForProject(projectID),
	})
	if err != nil {
		return &Error{Account: a.Name(), Err: err}
	}

	if gjson.GetBytes(body, "currentTier").Exists() {
		c.markDone(a)
		return nil
	}

	tier := pickTier(body)
	if tier.Get("userDefinedCloudaicompanionProject").Bool() && projectID == "" {
		return &Error{Account: a.Name(), Err: fmt.Errorf("account requires GOOGLE_CLOUD_PROJECT to be set")}
	}

	if err := c.runOnboardLRO(ctx, a, tier.Get("id").String(), projectID); err != nil {
		return &Error{Account: a.Name(), Err: err}
	}
	c.markDone(a)
	log.Infof("onboarding complete for %s", a.Name())
	return nil
}

// runOnboardLRO polls onboardUser until the operation reports done or the
// deadline passes. A timeout fails this request only; the account stays
// eligible for future attempts.
func (c *Controller) runOnboardLRO(ctx context.Context, a *account.Account, tierID, projectID string) error {
	payload := map[string]any{
		"tierId":                  tierID,
		"cloudaicompanionProject": projectID,
		"metadata":                util.ClientMetadataForProject(projectID),
	}

	deadline := time.Now().Add(pollTimeout)
	for {
		if time.Now().After(deadline) {
			return fmt.Errorf("onboarding timed out after %s", pollTimeout)
		}
		body, err := c.post(ctx, a, "onboardUser", payload)
		if err != nil {
			return err
		}
		if gjson.GetBytes(body, "done").Bool() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (c *Controller) markDone(a *account.Account) {
	c.mu.Lock()
	c.onboarded[a.Path] = struct{}{}
	c.mu.Unlock()
}

func (c *Controller) post(ctx context.Context, a *account.Account, action string, payload map[string]any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1internal:%s", c.endpoint, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.AccessToken())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d", action, resp.StatusCode)
	}
	return body, nil
}

// pickTier returns the current tier if present, else the default allowed
// tier, else a synthetic legacy tier matching gemini-cli behavior.
func pickTier(body []byte) gjson.Result {
	if tier := gjson.GetBytes(body, "currentTier"); tier.Exists() {
		return tier
	}
	var def gjson.Result
	gjson.GetBytes(body, "allowedTiers").ForEach(func(_, t gjson.Result) bool {
		if t.Get("isDefault").Bool() {
			def = t
			return false
		}
		return true
	})
	if def.Exists() {
		return def
	}
	return gjson.Parse(`{"id":"legacy-tier","userDefinedCloudaicompanionProject":true}`)
}
