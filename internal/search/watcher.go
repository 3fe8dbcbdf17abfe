package search

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/mindforge/internal/models"
)

// WarmDelay is how long the watcher waits for writes to settle.
const WarmDelay = 200 * time.Millisecond

// Watch rebuilds the index in the background whenever a tracked document
// changes, until ctx is cancelled. It only warms the cache: Index checks
// the fingerprint on every call regardless. onWarm, if non-nil, runs after
// each rebuild attempt.
func (e *Engine) Watch(ctx context.Context, onWarm func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := e.store.Root()
	if err := w.Add(root); err != nil {
		return err
	}
	e.logger.Info("watcher: started", slog.String("root", root))

	var warmTimer *time.Timer
	var warmCh <-chan time.Time
	scheduleWarm := func() {
		if warmTimer == nil {
			warmTimer = time.NewTimer(WarmDelay)
			warmCh = warmTimer.C
		} else {
			warmTimer.Reset(WarmDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if warmTimer != nil {
				warmTimer.Stop()
			}
			e.logger.Info("watcher: stopped")
			return nil

		case <-warmCh:
			if _, err := e.Index(); err != nil {
				e.logger.Warn("watcher: rebuild failed", slog.String("error", err.Error()))
			}
			if onWarm != nil {
				onWarm()
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			// Atomic replaces show up as a Create of the final name.
			name := filepath.Base(ev.Name)
			if !models.IsDocument(name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				e.logger.Debug("watcher: document changed", slog.String("document", name), slog.String("op", ev.Op.String()))
				scheduleWarm()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
