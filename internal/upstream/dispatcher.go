package upstream

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/MattyMroz/geminicli2api/internal/account"
	"github.com/MattyMroz/geminicli2api/internal/onboarding"
)

// Dispatcher orchestrates one client request against the account pool:
// acquire, provision, call, and fail over to the next account on a 403.
// It holds no per-request state; all shared state lives in the store and
// the onboarding controller.
type Dispatcher struct {
	accounts *account.Store
	onboard  *onboarding.Controller
	client   *Client
}

// NewDispatcher wires the dispatcher's collaborators.
func NewDispatcher(accounts *account.Store, onboard *onboarding.Controller, client *Client) *Dispatcher {
	return &Dispatcher{accounts: accounts, onboard: onboard, client: client}
}

// Send performs the upstream call, rotating across accounts on 403 up to the
// pool size. Any other status — success or failure — is returned to the
// caller as-is; translating the body is the caller's job.
func (d *Dispatcher) Send(ctx context.Context, env *Envelope, streaming bool) *Result {
	maxAttempts := d.accounts.Count()
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last *Result
	for attempt := 0; attempt < maxAttempts; attempt++ {
		res, skip := d.attempt(ctx, env, streaming)
		last = res
		if attempt < maxAttempts-1 {
			if skip {
				log.Warnf("account unusable, trying next account (%d/%d)", attempt+1, maxAttempts)
				continue
			}
			if res.Retryable() {
				log.Warnf("account returned 403, trying next account (%d/%d)", attempt+1, maxAttempts)
				continue
			}
		}
		return res
	}
	return last
}

// attempt runs one account through the full sequence. The second return is
// true when the account was unusable locally (missing token after a failed
// refresh) — the loop moves on without contacting upstream. Other local
// failures (empty pool, onboarding) come back as 500 results so the retry
// loop and the handlers branch on status tags, never on panics.
func (d *Dispatcher) attempt(ctx context.Context, env *Envelope, streaming bool) (*Result, bool) {
	a, err := d.accounts.Next(ctx)
	if err != nil {
		return &Result{
			Status:  http.StatusInternalServerError,
			Message: "Authentication failed. Please restart the proxy to log in.",
		}, false
	}

	if a.AccessToken() == "" {
		return &Result{
			Status:  http.StatusInternalServerError,
			Message: "No access token. Please restart the proxy to re-authenticate.",
		}, true
	}

	projectID, err := d.onboard.EnsureProject(ctx, a)
	if err != nil {
		log.WithError(err).Error("project discovery failed")
		return &Result{
			Status:  http.StatusInternalServerError,
			Message: "Failed to get user project ID.",
		}, false
	}

	if err := d.onboard.Ensure(ctx, a, projectID); err != nil {
		log.WithError(err).Error("onboarding failed")
		return &Result{
			Status:  http.StatusInternalServerError,
			Message: err.Error(),
		}, false
	}

	if streaming {
		return d.client.GenerateStream(ctx, a.AccessToken(), env, projectID), false
	}
	return d.client.Generate(ctx, a.AccessToken(), env, projectID), false
}
