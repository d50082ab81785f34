package account

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Refresher exchanges a refresh token for a fresh access token and updates
// the account in place. Implemented by the oauth package.
type Refresher interface {
	Refresh(ctx context.Context, a *Account) error
}

// Store holds every loaded account and hands them out round-robin. All
// rotation state lives behind a single mutex; token refresh happens on the
// selected account outside that lock so one slow refresh does not stall the
// other accounts.
type Store struct {
	mu       sync.Mutex
	accounts []*Account
	next     int

	dir          string
	legacyFile   string
	refresher    Refresher
	refreshAhead time.Duration
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLegacyFile sets a single-credential fallback file that is loaded only
// when the accounts directory holds no usable account.
func WithLegacyFile(path string) StoreOption {
	return func(s *Store) { s.legacyFile = path }
}

// WithRefresher installs the token refresher used by Next and the periodic
// refresh loop.
func WithRefresher(r Refresher) StoreOption {
	return func(s *Store) { s.refresher = r }
}

// WithRefreshAhead sets how long before expiry a token counts as stale.
func WithRefreshAhead(d time.Duration) StoreOption {
	return func(s *Store) { s.refreshAhead = d }
}

// NewStore creates a Store over the given accounts directory and loads it.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		dir:          dir,
		refreshAhead: 3 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload re-reads every credential file. Files that fail to parse are
// skipped with a warning so one corrupt account never takes the pool down.
func (s *Store) Reload() error {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("scan accounts dir: %w", err)
	}
	sort.Strings(paths)

	var loaded []*Account
	for _, p := range paths {
		a, err := LoadFile(p)
		if err != nil {
			log.WithError(err).Warnf("skipping account file %s", filepath.Base(p))
			continue
		}
		loaded = append(loaded, a)
		log.Infof("loaded account: %s", a.Name())
	}

	if len(loaded) == 0 && s.legacyFile != "" {
		if a, err := LoadFile(s.legacyFile); err == nil {
			loaded = append(loaded, a)
			log.Infof("loaded legacy credentials: %s", s.legacyFile)
		}
	}

	s.mu.Lock()
	s.accounts = loaded
	if s.next >= len(loaded) {
		s.next = 0
	}
	s.mu.Unlock()

	log.Infof("account store: %d account(s) loaded", len(loaded))

	// Records that arrive already stale get refreshed right away so the
	// first request never pays for it. A failed refresh keeps the record.
	s.refreshStale(context.Background())
	return nil
}

// Count returns the number of loaded accounts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

// ErrNoAccounts is returned by Next when the pool is empty.
var ErrNoAccounts = fmt.Errorf("no accounts available")

// Next returns the next account in rotation, refreshing its token first if
// it is stale. A failed refresh still returns the account; the upstream call
// decides whether the stored token is usable.
func (s *Store) Next(ctx context.Context) (*Account, error) {
	s.mu.Lock()
	if len(s.accounts) == 0 {
		s.mu.Unlock()
		return nil, ErrNoAccounts
	}
	idx := s.next
	a := s.accounts[idx]
	s.next = (s.next + 1) % len(s.accounts)
	s.mu.Unlock()

	log.Infof("using account #%d (%s)", idx+1, a.Name())

	if s.refresher != nil && a.ExpiredWithin(s.refreshAhead) {
		if err := s.refresher.Refresh(ctx, a); err != nil {
			log.WithError(err).Warnf("failed to refresh %s", a.Name())
		} else {
			if err := a.Save(); err != nil {
				log.WithError(err).Warnf("failed to persist %s", a.Name())
			}
			log.Infof("refreshed credentials for %s", a.Name())
		}
	}
	return a, nil
}

// SetProjectID caches the discovered project for an account and persists it.
func (s *Store) SetProjectID(a *Account, projectID string) {
	a.mu.Lock()
	a.ProjectID = projectID
	a.mu.Unlock()
	if err := a.Save(); err != nil {
		log.WithError(err).Warnf("failed to persist project for %s", a.Name())
	}
}

// StartPeriodicRefresh refreshes stale tokens in the background every
// interval until ctx is done. It keeps tokens warm so request latency never
// pays for a refresh.
func (s *Store) StartPeriodicRefresh(ctx context.Context, interval time.Duration) {
	if s.refresher == nil || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.refreshStale(ctx)
			}
		}
	}()
}

func (s *Store) refreshStale(ctx context.Context) {
	if s.refresher == nil {
		return
	}
	s.mu.Lock()
	snapshot := make([]*Account, len(s.accounts))
	copy(snapshot, s.accounts)
	s.mu.Unlock()

	for _, a := range snapshot {
		if !a.ExpiredWithin(s.refreshAhead) {
			continue
		}
		if err := s.refresher.Refresh(ctx, a); err != nil {
			log.WithError(err).Warnf("periodic refresh failed for %s", a.Name())
			continue
		}
		if err := a.Save(); err != nil {
			log.WithError(err).Warnf("failed to persist %s", a.Name())
		}
		log.Debugf("periodic refresh succeeded for %s", a.Name())
	}
}
