// Package engine ties discovery, reconciliation, caching, and refresh
// scheduling together behind an explicit lifecycle object. All mutable state
// is owned by a single cooperative run loop; long enumerations are chunked
// and yield between batches so nothing blocks the loop for long.
package engine

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/mfeld/recentws/internal/cache"
	"github.com/mfeld/recentws/internal/config"
	"github.com/mfeld/recentws/internal/editors"
	rwerrors "github.com/mfeld/recentws/internal/errors"
	"github.com/mfeld/recentws/internal/events"
	"github.com/mfeld/recentws/internal/launch"
	"github.com/mfeld/recentws/internal/logfields"
	"github.com/mfeld/recentws/internal/metrics"
	"github.com/mfeld/recentws/internal/store"
)

// Engine is the workspace discovery and cache synchronization engine.
type Engine struct {
	settingsPath string
	registry     *editors.Registry
	cache        *cache.Cache
	bus          *events.Bus
	recorder     metrics.Recorder
	home         string

	tasks   chan func()
	started atomic.Bool
	runCtx  context.Context
	cancel  context.CancelFunc

	watcher *config.Watcher
	refresh *refreshScheduler

	// Run-loop-owned state below. Never touched outside tasks.
	cfg         *config.Settings
	active      *editors.Descriptor
	favorites   map[string]bool
	nofailNames map[string]bool

	cycleRunning bool
	pendingKind  string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecorder injects a metrics recorder. Default is a noop.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithRegistry overrides the editor catalog, mainly for tests.
func WithRegistry(r *editors.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithHome anchors the key-value extraction heuristic, mainly for tests.
func WithHome(home string) Option {
	return func(e *Engine) { e.home = home }
}

// New constructs an engine and loads settings from settingsPath.
func New(settingsPath string, opts ...Option) (*Engine, error) {
	cfg, err := config.Load(settingsPath)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		settingsPath: settingsPath,
		cache:        cache.New(),
		bus:          events.NewBus(),
		recorder:     metrics.NoopRecorder{},
		tasks:        make(chan func(), 256),
		cfg:          cfg,
		favorites:    cfg.Favorites(),
		nofailNames:  cfg.NofailNames(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = editors.NewRegistry("", "")
	}

	// Warm the cache from the last run so recents are available before the
	// first discovery cycle finishes. Live scans dedup on URI.
	if loaded, err := cache.LoadSnapshot(e.snapshotPath(), e.cache); err != nil {
		slog.Warn("Cache snapshot unreadable, starting cold", logfields.Error(err))
	} else if loaded > 0 {
		slog.Debug("Cache snapshot loaded", logfields.Count(loaded))
	}

	return e, nil
}

// snapshotPath is the persisted cache location, next to the settings file.
func (e *Engine) snapshotPath() string {
	return filepath.Join(filepath.Dir(e.settingsPath), "cache.json")
}

// saveSnapshot persists the cache best-effort after mutations.
func (e *Engine) saveSnapshot() {
	if err := cache.SaveSnapshot(e.snapshotPath(), e.cache); err != nil {
		slog.Warn("Cache snapshot not saved", logfields.Error(err))
	}
}

// Bus exposes the event bus for consumers to subscribe on.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Settings returns a copy of the current settings.
func (e *Engine) Settings() *config.Settings {
	var out *config.Settings
	e.do(func() { out = e.cfg.Clone() })
	return out
}

// Start brings up the run loop, the settings watcher, and the adaptive
// refresh scheduler, and runs an immediate full cycle.
func (e *Engine) Start(ctx context.Context) error {
	e.runCtx, e.cancel = context.WithCancel(ctx)

	watcher, err := config.NewWatcher(e.settingsPath, func() {
		e.enqueue(e.reloadSettings)
	})
	if err == nil {
		e.watcher = watcher
		if err := watcher.Start(e.runCtx); err != nil {
			slog.Warn("Settings watcher not started", logfields.Error(err))
			e.watcher = nil
		}
	} else {
		slog.Warn("Settings watcher unavailable", logfields.Error(err))
	}

	refresh, err := newRefreshScheduler(
		time.Duration(e.cfg.RefreshIntervalSeed)*time.Second,
		func(kind string) { e.enqueue(func() { e.requestCycle(kind) }) },
	)
	if err != nil {
		return err
	}
	e.refresh = refresh

	e.started.Store(true)
	go e.loop()

	e.refresh.start()
	return nil
}

// Stop tears the engine down: pending timers are canceled and in-flight scan
// state is dropped without completing.
func (e *Engine) Stop() {
	if e.refresh != nil {
		e.refresh.stop()
	}
	if e.watcher != nil {
		e.watcher.Stop()
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.started.Store(false)
	e.bus.Close()
}

func (e *Engine) loop() {
	for {
		select {
		case <-e.runCtx.Done():
			return
		case fn := <-e.tasks:
			fn()
		}
	}
}

// enqueue schedules fn on the run loop. Before Start (CLI one-shots) the
// caller goroutine is the only writer, so fn runs inline.
func (e *Engine) enqueue(fn func()) {
	if !e.started.Load() {
		fn()
		return
	}
	select {
	case e.tasks <- fn:
	case <-e.runCtx.Done():
	}
}

// do runs fn on the run loop and waits for it.
func (e *Engine) do(fn func()) {
	if !e.started.Load() {
		fn()
		return
	}
	done := make(chan struct{})
	select {
	case e.tasks <- func() { fn(); close(done) }:
	case <-e.runCtx.Done():
		return
	}
	select {
	case <-done:
	case <-e.runCtx.Done():
	}
}

// ScanOnce runs a single full cycle to completion on the caller goroutine.
// Intended for one-shot CLI use before Start.
func (e *Engine) ScanOnce() {
	e.enqueue(func() { e.requestCycle(cycleFull) })
}

// RecentWorkspaces returns the bounded, favorite-partitioned recent view.
func (e *Engine) RecentWorkspaces() []cache.View {
	var view []cache.View
	e.do(func() {
		view = e.cache.RecentView(cache.DefaultViewLimit, e.favorites)
	})
	return view
}

// Favorites returns the favorite URI set.
func (e *Engine) Favorites() map[string]bool {
	out := make(map[string]bool)
	e.do(func() {
		for uri := range e.favorites {
			out[uri] = true
		}
	})
	return out
}

// Open marks the workspace as just used and returns the command line to
// launch it. The caller execs the command.
func (e *Engine) Open(uri string) ([]string, error) {
	var argv []string
	var err error
	e.do(func() {
		ws := e.cache.Get(uri)
		if ws == nil {
			err = rwerrors.ValidationError("workspace not in cache").WithContext("uri", uri)
			return
		}
		if e.active == nil {
			err = rwerrors.ResolutionFailure("no active editor to launch with")
			return
		}
		e.cache.Touch(uri)
		e.saveSnapshot()
		argv = launch.Argv(e.active, e.cfg.CustomLaunchArgs, ws.URI)
		e.notifyRecents()
	})
	e.interacted()
	return argv, err
}

// ToggleFavorite flips the favorite flag for uri and persists it.
func (e *Engine) ToggleFavorite(uri string) error {
	var err error
	e.do(func() {
		if e.favorites[uri] {
			delete(e.favorites, uri)
		} else {
			e.favorites[uri] = true
		}
		err = e.persistFavorites()
		e.notifyRecents()
	})
	e.interacted()
	return err
}

// SoftRemove archives the workspace's store record and drops it from the
// cache. On archive failure the cache is left unchanged and the error is
// returned.
func (e *Engine) SoftRemove(uri string) error {
	return e.removeWith(uri, store.Archive)
}

// HardRemove deletes the workspace's store record and drops it from the
// cache.
func (e *Engine) HardRemove(uri string) error {
	return e.removeWith(uri, store.Delete)
}

func (e *Engine) removeWith(uri string, op func(string) error) error {
	var err error
	e.do(func() {
		ws := e.cache.Get(uri)
		if ws == nil {
			err = rwerrors.ValidationError("workspace not in cache").WithContext("uri", uri)
			return
		}
		if ws.Handle != "" {
			if opErr := op(ws.Handle); opErr != nil {
				slog.Warn("Store record removal failed",
					logfields.URI(uri), logfields.Store(ws.Handle), logfields.Error(opErr))
				err = opErr
				return
			}
		}
		e.cache.Remove(uri)
		e.saveSnapshot()
		e.notifyRecents()
	})
	e.interacted()
	return err
}

// ForceRefresh triggers an immediate full cycle.
func (e *Engine) ForceRefresh() {
	e.enqueue(func() { e.requestCycle(cycleFull) })
	e.interacted()
}

// interacted snaps the refresh scheduler back to maximum freshness.
func (e *Engine) interacted() {
	if e.refresh != nil {
		e.refresh.recordInteraction()
	}
}

// notifyRecents announces the new cache state without blocking; a consumer
// that stops draining its subscription misses events instead of stalling
// the run loop.
func (e *Engine) notifyRecents() {
	e.bus.TryPublish(events.RecentsChanged{
		At:    time.Now(),
		Count: e.cache.Len(),
	})
}

// persistFavorites writes the favorites set back into the settings file.
func (e *Engine) persistFavorites() error {
	uris := make([]string, 0, len(e.favorites))
	for uri := range e.favorites {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	e.cfg.FavoriteWorkspaceURIs = uris
	return config.Save(e.settingsPath, e.cfg)
}

// reloadSettings re-reads the full settings set after a change notification.
// A changed editor location triggers a full cycle.
func (e *Engine) reloadSettings() {
	cfg, err := config.Load(e.settingsPath)
	if err != nil {
		slog.Warn("Settings reload failed, keeping previous settings", logfields.Error(err))
		return
	}

	prevLocation := e.cfg.EditorLocation
	e.cfg = cfg
	e.favorites = cfg.Favorites()
	e.nofailNames = cfg.NofailNames()
	slog.Info("Settings reloaded", slog.String("settings", cfg.String()))

	if cfg.EditorLocation != prevLocation {
		e.requestCycle(cycleFull)
		return
	}
	e.notifyRecents()
}
