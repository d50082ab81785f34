package account

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watch reloads the store whenever a credential file is added, changed, or
// removed. Events are debounced because editors and the OAuth login flow
// fire several events per logical change.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var reload <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".json") {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				log.Debugf("account file event: %s %s", ev.Op, filepath.Base(ev.Name))
				reload = time.After(500 * time.Millisecond)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("account watcher error")
			case <-reload:
				reload = nil
				if err := s.Reload(); err != nil {
					log.WithError(err).Warn("account reload failed")
				}
			}
		}
	}()

	log.Infof("watching %s for account changes", s.dir)
	return nil
}
