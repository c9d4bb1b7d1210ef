package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mfeld/recentws/internal/logfields"
)

// Watcher monitors the settings file and invokes a callback after changes.
// Rapid successive writes are debounced into a single notification.
type Watcher struct {
	settingsPath string
	onChange     func()
	watcher      *fsnotify.Watcher
	debounce     time.Duration

	mu       sync.Mutex
	stopChan chan struct{}
	stopped  bool
}

// NewWatcher creates a watcher for the settings file at path. onChange runs
// on the watcher goroutine; callers are expected to hand off quickly.
func NewWatcher(path string, onChange func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{
		settingsPath: absPath,
		onChange:     onChange,
		watcher:      fsw,
		debounce:     500 * time.Millisecond,
		stopChan:     make(chan struct{}),
	}, nil
}

// Start begins monitoring. The directory is watched rather than the file so
// atomic replaces (rename over) keep being observed.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.settingsPath)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	slog.Debug("Watching settings file", logfields.Path(w.settingsPath))
	go w.loop(ctx)
	return nil
}

// Stop stops monitoring. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		slog.Warn("Error closing settings watcher", logfields.Error(err))
	}
}

func (w *Watcher) loop(ctx context.Context) {
	name := filepath.Base(w.settingsPath)

	var pending <-chan time.Time
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = timer.C
		case <-pending:
			pending = nil
			slog.Debug("Settings changed", logfields.Path(w.settingsPath))
			w.onChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Settings watcher error", logfields.Error(err))
		}
	}
}
