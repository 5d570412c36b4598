// Package watch triggers a sync once a tracked tree has been quiet for a while.
package watch

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"gitnot/internal/errors"
	"gitnot/internal/fingerprint"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// SyncFunc runs one sync. It is called from the watch loop only, never
// concurrently with itself.
type SyncFunc func(ctx context.Context) error

type Watcher struct {
	root     string
	filter   *fingerprint.Filter
	debounce time.Duration
	sync     SyncFunc
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
}

func New(root string, filter *fingerprint.Filter, debounce time.Duration, fn SyncFunc, logger *zap.Logger) (*Watcher, error) {
	if debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path for root %s: %w", root, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	w := &Watcher{
		root:     absRoot,
		filter:   filter,
		debounce: debounce,
		sync:     fn,
		watcher:  watcher,
		logger:   logger,
	}

	if err := w.addTree(absRoot); err != nil {
		watcher.Close()
		return nil, err
	}
	return w, nil
}

// Run blocks until ctx is done. Every burst of relevant events is followed by one
// sync after debounce of quiet. A sync that finds the tree locked is retried after
// the next quiet period.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))

		case <-timer.C:
			err := w.sync(ctx)
			switch {
			case err == nil:
			case stderrors.Is(err, errors.ErrLockHeld):
				w.logger.Info("tree locked, retrying", zap.Duration("after", w.debounce))
				timer.Reset(w.debounce)
			case ctx.Err() != nil:
				return nil
			default:
				w.logger.Error("sync failed", zap.Error(err))
			}
		}
	}
}

// handleEvent reports whether event concerns a tracked path.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}

	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		w.logger.Error("getting relative path", zap.Error(err))
		return false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || w.filter.SkipDir(rel) {
		return false
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Error("adding new directory to watcher", zap.Error(err))
			}
			return true
		}
	}

	// A removed path may have been a directory, so only its parent can rule it out
	if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
		dir := path.Dir(rel)
		return dir == "." || !w.filter.SkipDir(dir)
	}

	return !w.filter.Excluded(rel)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return fmt.Errorf("getting relative path: %w", err)
		}
		if rel != "." && w.filter.SkipDir(filepath.ToSlash(rel)) {
			return filepath.SkipDir
		}

		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}
