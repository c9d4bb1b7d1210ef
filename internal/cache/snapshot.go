package cache

import (
	"encoding/json"
	"os"
	"time"

	rwerrors "github.com/mfeld/recentws/internal/errors"
)

// snapshotVersion guards against reading a snapshot written by a future
// format revision.
const snapshotVersion = "1"

type snapshotFile struct {
	Version    string           `json:"version"`
	SavedAt    time.Time        `json:"saved_at"`
	Workspaces []snapshotRecord `json:"workspaces"`
}

type snapshotRecord struct {
	URI          string    `json:"uri"`
	Editor       string    `json:"editor,omitempty"`
	Handle       string    `json:"handle,omitempty"`
	Nofail       bool      `json:"nofail,omitempty"`
	Remote       bool      `json:"remote,omitempty"`
	LastAccessed time.Time `json:"last_accessed"`
}

// SaveSnapshot persists the full cache to path atomically, so consumers can
// show recents before the first discovery cycle of the next run finishes.
func SaveSnapshot(path string, c *Cache) error {
	snap := snapshotFile{
		Version: snapshotVersion,
		SavedAt: c.now(),
	}
	for _, ws := range c.All() {
		snap.Workspaces = append(snap.Workspaces, snapshotRecord{
			URI:          ws.URI,
			Editor:       ws.Editor,
			Handle:       ws.Handle,
			Nofail:       ws.Nofail,
			Remote:       ws.Remote,
			LastAccessed: ws.LastAccessed,
		})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return rwerrors.Wrap(err, rwerrors.CategoryStore, rwerrors.SeverityError, "marshal cache snapshot")
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return rwerrors.StoreWriteFailure(err, "write cache snapshot")
	}
	if err := os.Rename(tempPath, path); err != nil {
		return rwerrors.StoreWriteFailure(err, "replace cache snapshot")
	}
	return nil
}

// LoadSnapshot ingests a previously saved snapshot into the cache. A missing
// file is not an error; an unreadable or incompatible one is reported and
// the cache is left as it was. Live discovery afterwards dedups on URI.
func LoadSnapshot(path string, c *Cache) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, rwerrors.WrapParseFailure(err, "read cache snapshot")
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, rwerrors.WrapParseFailure(err, "decode cache snapshot")
	}
	if snap.Version != snapshotVersion {
		return 0, rwerrors.ParseFailure("unsupported cache snapshot version").
			WithContext("version", snap.Version)
	}

	loaded := 0
	for _, rec := range snap.Workspaces {
		if rec.URI == "" {
			continue
		}
		ws := &Workspace{
			URI:          rec.URI,
			Editor:       rec.Editor,
			Handle:       rec.Handle,
			Nofail:       rec.Nofail,
			Remote:       rec.Remote,
			LastAccessed: rec.LastAccessed,
		}
		if c.Ingest(ws) {
			loaded++
		}
	}
	return loaded, nil
}
