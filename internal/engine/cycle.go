package engine

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfeld/recentws/internal/cache"
	"github.com/mfeld/recentws/internal/editors"
	"github.com/mfeld/recentws/internal/events"
	"github.com/mfeld/recentws/internal/kvextract"
	"github.com/mfeld/recentws/internal/logfields"
	"github.com/mfeld/recentws/internal/store"
)

const (
	cycleFull  = "full"
	cycleLight = "lightweight"

	// scanBatchSize bounds how many store entries one task processes before
	// yielding back to the run loop.
	scanBatchSize = 10
)

// cycleState tracks one scan cycle from trigger to finalize.
type cycleState struct {
	id         string
	kind       string
	startedAt  time.Time
	discovered int
	finalized  bool
}

// requestCycle starts a cycle, or coalesces the request when one is already
// in flight. Two concurrent writers must never interleave; a full request
// outranks a pending lightweight one.
func (e *Engine) requestCycle(kind string) {
	if e.cycleRunning {
		if e.pendingKind == "" || kind == cycleFull {
			e.pendingKind = kind
		}
		return
	}
	e.startCycle(kind)
}

func (e *Engine) startCycle(kind string) {
	st := &cycleState{
		id:        uuid.NewString()[:8],
		kind:      kind,
		startedAt: time.Now(),
	}
	e.cycleRunning = true
	slog.Debug("Scan cycle starting", logfields.CycleID(st.id), logfields.CycleKind(kind))

	if kind == cycleFull {
		found := e.registry.Found()
		active, err := editors.ResolveActive(e.registry, e.cfg.EditorLocation, found)
		if err != nil {
			// Cycle ends early; cache stays at its previous state.
			slog.Warn("No active editor resolved", logfields.Error(err))
			e.bus.TryPublish(events.NoEditor{Location: e.cfg.EditorLocation})
			e.finishCycle(st)
			return
		}
		if e.active == nil || e.active.Name != active.Name {
			e.bus.TryPublish(events.ActiveEditorChanged{Name: active.Name})
		}
		e.active = active
	}

	if e.active == nil {
		slog.Debug("Lightweight cycle with no active editor", logfields.CycleID(st.id))
		e.bus.TryPublish(events.NoEditor{Location: e.cfg.EditorLocation})
		e.finishCycle(st)
		return
	}

	switch e.active.Kind {
	case editors.StorageKeyValueDB:
		e.enqueue(func() { e.scanKeyValue(st) })
	default:
		e.startBatchScan(st)
	}
}

// startBatchScan snapshots the store's entries and processes them in
// fixed-size batches, yielding to the run loop between batches. Finalize
// fires exactly once per cycle, including for an empty store.
func (e *Engine) startBatchScan(st *cycleState) {
	ds := store.NewDirStore(e.active.StoragePath)
	entries, err := ds.Entries()
	if err != nil {
		slog.Warn("Store enumeration failed",
			logfields.Store(e.active.StoragePath), logfields.Error(err))
		e.finishCycle(st)
		return
	}
	e.enqueue(func() { e.scanBatch(st, entries, 0) })
}

func (e *Engine) scanBatch(st *cycleState, entries []string, start int) {
	end := start + scanBatchSize
	if end > len(entries) {
		end = len(entries)
	}
	for _, dir := range entries[start:end] {
		e.scanEntry(st, dir)
	}

	if end < len(entries) {
		e.enqueue(func() { e.scanBatch(st, entries, end) })
		return
	}
	e.finishCycle(st)
}

// scanEntry parses one store record, applies the nofail list, reconciles
// orphans, and ingests the survivor. Parse failures are logged and skipped.
func (e *Engine) scanEntry(st *cycleState, dir string) {
	rec, err := store.ReadRecord(dir)
	if err != nil {
		slog.Debug("Skipping store entry", logfields.Store(dir), logfields.Error(err))
		return
	}

	ws := &cache.Workspace{
		URI:    rec.URI,
		Editor: e.active.Name,
		Handle: dir,
		Nofail: rec.Nofail,
		Remote: rec.Remote,
	}
	e.applyNofailList(ws)

	if !e.reconcile(ws) {
		return
	}
	if e.cache.Ingest(ws) {
		st.discovered++
	}
}

// applyNofailList marks the workspace protected when its basename is on the
// persisted nofail list, and writes the flag back to the store record.
func (e *Engine) applyNofailList(ws *cache.Workspace) {
	if ws.Nofail || !e.nofailNames[cache.DisplayName(ws.URI)] {
		return
	}
	ws.Nofail = true
	if ws.Handle == "" {
		return
	}
	if err := store.SetNofail(ws.Handle); err != nil {
		slog.Warn("Failed to persist nofail flag",
			logfields.Store(ws.Handle), logfields.Error(err))
	}
}

// scanKeyValue runs the extraction fallback chain against the active
// editor's database and ingests the results.
func (e *Engine) scanKeyValue(st *cycleState) {
	extractor := kvextract.New(e.active.DatabasePath, e.home)
	paths, strategy := extractor.Projects(context.Background())
	slog.Debug("Key-value extraction finished",
		logfields.CycleID(st.id), logfields.Strategy(strategy), logfields.Count(len(paths)))

	now := time.Now()
	for _, p := range paths {
		ws := &cache.Workspace{
			URI:          fileURI(p),
			Editor:       e.active.Name,
			LastAccessed: now,
		}
		e.applyNofailList(ws)
		if !e.reconcile(ws) {
			continue
		}
		if e.cache.Ingest(ws) {
			st.discovered++
		}
	}
	e.finishCycle(st)
}

// finishCycle is the single finalize step every cycle reaches: eviction,
// metrics, consumer notification, and release of the in-flight slot. A
// coalesced pending request starts immediately after.
func (e *Engine) finishCycle(st *cycleState) {
	if st.finalized {
		return
	}
	st.finalized = true

	evicted := e.cache.EvictIfNeeded()
	if len(evicted) > 0 {
		slog.Info("Evicted stale workspaces", logfields.Count(len(evicted)))
	}

	duration := time.Since(st.startedAt)
	e.recorder.IncCycle(st.kind)
	e.recorder.ObserveCycleDuration(st.kind, duration)
	if e.active != nil {
		e.recorder.AddDiscovered(e.active.Name, st.discovered)
	}
	e.recorder.IncEvicted(len(evicted))
	e.recorder.SetCacheSize(e.cache.Len())

	slog.Debug("Scan cycle finished",
		logfields.CycleID(st.id),
		logfields.CycleKind(st.kind),
		logfields.Count(st.discovered),
		logfields.DurationMS(float64(duration.Milliseconds())))

	e.saveSnapshot()

	e.bus.TryPublish(events.CycleFinished{
		CycleID:    st.id,
		Kind:       st.kind,
		Duration:   duration,
		Discovered: st.discovered,
	})
	e.notifyRecents()

	e.cycleRunning = false
	if e.pendingKind != "" {
		next := e.pendingKind
		e.pendingKind = ""
		e.startCycle(next)
	}
}

// fileURI normalizes a filesystem path to a file URI.
func fileURI(p string) string {
	if strings.Contains(p, "://") {
		return p
	}
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}
