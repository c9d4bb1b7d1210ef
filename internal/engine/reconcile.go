package engine

import (
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mfeld/recentws/internal/cache"
	"github.com/mfeld/recentws/internal/logfields"
	"github.com/mfeld/recentws/internal/store"
)

// reconcile decides whether a discovered workspace survives ingestion.
// Remote targets cannot be checked locally and always pass. For local
// targets: an existing target passes (optionally rewritten to a contained
// workspace file); a vanished target is archived when cleanup is enabled and
// the record is not protected, otherwise retained.
func (e *Engine) reconcile(ws *cache.Workspace) bool {
	if ws.Remote {
		return true
	}

	path := cache.PathOf(ws.URI)

	if e.cfg.PreferWorkspaceFile {
		if wsFile := findWorkspaceFile(path); wsFile != "" {
			u := url.URL{Scheme: "file", Path: wsFile}
			ws.URI = u.String()
			path = wsFile
		}
	}

	if _, err := os.Stat(path); err == nil {
		return true
	}

	if e.cfg.CleanupOrphanedWorkspaces && !ws.Nofail {
		if ws.Handle == "" {
			// Nothing on disk to archive for extracted entries.
			slog.Debug("Dropping orphaned workspace without store record", logfields.URI(ws.URI))
			return false
		}
		if err := store.Archive(ws.Handle); err != nil {
			// Best effort: the record is still dropped from the cache.
			slog.Warn("Orphan archive failed",
				logfields.Store(ws.Handle), logfields.Error(err))
			return false
		}
		e.recorder.IncOrphanArchived()
		slog.Info("Archived orphaned workspace", logfields.URI(ws.URI))
		return false
	}

	reason := "cleanup disabled"
	if ws.Nofail {
		reason = "nofail"
	}
	slog.Debug("Retaining orphaned workspace",
		logfields.URI(ws.URI), logfields.Reason(reason))
	return true
}

// findWorkspaceFile returns a workspace file among dir's immediate children,
// or "". Multiple candidates resolve to the lexically first for determinism.
func findWorkspaceFile(dir string) string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return ""
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	var candidates []string
	for _, entry := range entries {
		if entry.Type().IsRegular() && strings.HasSuffix(entry.Name(), ".code-workspace") {
			candidates = append(candidates, entry.Name())
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Strings(candidates)
	return filepath.Join(dir, candidates[0])
}
