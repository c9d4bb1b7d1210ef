// Package store reads and mutates directory-based editor history stores:
// one sub-directory per historical workspace, each holding a small JSON
// record describing the opened folder or workspace file.
package store

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	rwerrors "github.com/mfeld/recentws/internal/errors"
)

// RecordFile is the per-workspace JSON record inside each store sub-directory.
const RecordFile = "workspace.json"

// Record is the parsed on-disk record. URI comes from the record's "folder"
// field, or "workspace" when folder is absent.
type Record struct {
	URI    string
	Nofail bool
	Remote bool
}

// remoteSchemes are URI schemes that indicate a remote or container resource.
var remoteSchemes = map[string]bool{
	"vscode-remote":      true,
	"ssh-remote":         true,
	"ssh":                true,
	"docker":             true,
	"dev-container":      true,
	"attached-container": true,
	"codespaces":         true,
}

// DirStore enumerates one editor's workspaceStorage directory.
type DirStore struct {
	root string
}

func NewDirStore(root string) *DirStore {
	return &DirStore{root: root}
}

// Root returns the store directory.
func (s *DirStore) Root() string { return s.root }

// Entries returns the store's sub-directory paths in sorted order. A missing
// store yields an empty slice, not an error.
func (s *DirStore) Entries() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, rwerrors.Wrap(err, rwerrors.CategoryStore, rwerrors.SeverityError, "read store directory")
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(s.root, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ReadRecord reads and parses the JSON record in a store sub-directory.
// A missing or unparsable file, or a record with neither folder nor
// workspace, is a ParseFailure: non-fatal, skip the entry.
func ReadRecord(dir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, RecordFile))
	if err != nil {
		return nil, rwerrors.WrapParseFailure(err, "read store record")
	}

	var raw struct {
		Folder    string `json:"folder"`
		Workspace string `json:"workspace"`
		Nofail    bool   `json:"nofail"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, rwerrors.WrapParseFailure(err, "decode store record")
	}

	uri := raw.Folder
	if uri == "" {
		uri = raw.Workspace
	}
	if uri == "" {
		return nil, rwerrors.ParseFailure("record has neither folder nor workspace")
	}

	return &Record{
		URI:    uri,
		Nofail: raw.Nofail,
		Remote: IsRemoteURI(uri),
	}, nil
}

// IsRemoteURI reports whether the URI scheme indicates a remote or container
// resource.
func IsRemoteURI(uri string) bool {
	u, err := url.Parse(uri)
	if err != nil {
		return false
	}
	return remoteSchemes[u.Scheme]
}

// SetNofail rewrites the record in dir with nofail set true, preserving all
// other fields. The replacement is written atomically (write-temp-then-
// replace) to avoid truncation on interruption.
func SetNofail(dir string) error {
	path := filepath.Join(dir, RecordFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return rwerrors.StoreWriteFailure(err, "read record for rewrite")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return rwerrors.StoreWriteFailure(err, "decode record for rewrite")
	}
	fields["nofail"] = json.RawMessage("true")

	out, err := json.MarshalIndent(fields, "", "\t")
	if err != nil {
		return rwerrors.StoreWriteFailure(err, "encode rewritten record")
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, out, 0o600); err != nil {
		return rwerrors.StoreWriteFailure(err, "write temporary record")
	}
	if err := os.Rename(tempPath, path); err != nil {
		return rwerrors.StoreWriteFailure(err, "replace record")
	}
	return nil
}

// Archive renames a store sub-directory aside so the editor no longer sees
// it, without destroying the record. Best-effort soft removal.
func Archive(dir string) error {
	dest := dir + ".archived-" + uuid.NewString()[:8]
	if err := os.Rename(dir, dest); err != nil {
		return rwerrors.StoreWriteFailure(err, "archive store record")
	}
	return nil
}

// Delete removes a store sub-directory permanently.
func Delete(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return rwerrors.StoreWriteFailure(err, "delete store record")
	}
	return nil
}
