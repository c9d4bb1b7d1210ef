// Package editors holds the static catalog of known editor descriptors and
// resolves the single active editor from user configuration and what was
// actually found on disk.
package editors

import (
	"os"
	"path/filepath"
	"strings"

	rwerrors "github.com/mfeld/recentws/internal/errors"
)

// StorageKind distinguishes how an editor persists workspace history.
type StorageKind string

const (
	// StorageDirectoryJSON is one sub-directory per historical workspace,
	// each holding a small JSON record.
	StorageDirectoryJSON StorageKind = "directory-json"

	// StorageKeyValueDB is a single embedded key-value database.
	StorageKeyValueDB StorageKind = "keyvalue-db"
)

// Descriptor describes one known or synthesized editor. Immutable once
// constructed; referenced, not copied, by the active-editor pointer.
type Descriptor struct {
	Name         string
	Binary       string
	Kind         StorageKind
	StoragePath  string // workspaceStorage directory for StorageDirectoryJSON
	DatabasePath string // database file for StorageKeyValueDB
	Default      bool
}

// Registry is the static catalog plus dynamically synthesized custom
// descriptors. It is owned by the engine and not safe for concurrent
// mutation; the engine's run loop is its single writer.
type Registry struct {
	configBase string // e.g. ~/.config
	dataBase   string // e.g. ~/.local/share

	known  []*Descriptor
	custom map[string]*Descriptor
}

// NewRegistry builds the catalog rooted at the given base directories.
// Empty bases fall back to the user's config and home directories.
func NewRegistry(configBase, dataBase string) *Registry {
	if configBase == "" {
		if d, err := os.UserConfigDir(); err == nil {
			configBase = d
		}
	}
	if dataBase == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataBase = filepath.Join(home, ".local", "share")
		}
	}

	r := &Registry{
		configBase: configBase,
		dataBase:   dataBase,
		custom:     make(map[string]*Descriptor),
	}

	r.known = []*Descriptor{
		{
			Name:        "code",
			Binary:      "code",
			Kind:        StorageDirectoryJSON,
			StoragePath: r.workspaceStorage("Code"),
			Default:     true,
		},
		{
			Name:        "code-insiders",
			Binary:      "code-insiders",
			Kind:        StorageDirectoryJSON,
			StoragePath: r.workspaceStorage("Code - Insiders"),
		},
		{
			Name:        "codium",
			Binary:      "codium",
			Kind:        StorageDirectoryJSON,
			StoragePath: r.workspaceStorage("VSCodium"),
		},
		{
			Name:        "cursor",
			Binary:      "cursor",
			Kind:        StorageDirectoryJSON,
			StoragePath: r.workspaceStorage("Cursor"),
		},
		{
			Name:         "zed",
			Binary:       "zed",
			Kind:         StorageKeyValueDB,
			DatabasePath: filepath.Join(dataBase, "zed", "db", "db.sqlite"),
		},
	}

	return r
}

func (r *Registry) workspaceStorage(product string) string {
	return filepath.Join(r.configBase, product, "User", "workspaceStorage")
}

// Known returns all catalog descriptors in fixed order.
func (r *Registry) Known() []*Descriptor {
	return r.known
}

// Found returns the descriptors whose store actually exists on disk, in
// catalog order. Custom descriptors are not part of discovery.
func (r *Registry) Found() []*Descriptor {
	var found []*Descriptor
	for _, d := range r.known {
		if storeExists(d) {
			found = append(found, d)
		}
	}
	return found
}

// Get returns a descriptor by name, checking the catalog first and then
// registered custom descriptors.
func (r *Registry) Get(name string) *Descriptor {
	for _, d := range r.known {
		if d.Name == name {
			return d
		}
	}
	return r.custom[name]
}

func storeExists(d *Descriptor) bool {
	switch d.Kind {
	case StorageKeyValueDB:
		_, err := os.Stat(d.DatabasePath)
		return err == nil
	default:
		info, err := os.Stat(d.StoragePath)
		return err == nil && info.IsDir()
	}
}

// storageGuesses is the ordered rule table for guessing a custom binary's
// storage directory, matched case-insensitively against the basename.
var storageGuesses = []struct {
	substr  string
	product string
}{
	{"insiders", "Code - Insiders"},
	{"codium", "VSCodium"},
	{"cursor", "Cursor"},
	{"code", "Code"},
}

// alternativeProducts is the fixed probe order when the guessed storage
// directory does not exist.
var alternativeProducts = []string{"Cursor", "cursor", "Code", "code", "VSCodium", "codium"}

// ResolveActive resolves the single active editor from the location setting
// and the descriptors found on disk. Resolution is deterministic: repeated
// calls with the same inputs return the same descriptor.
func ResolveActive(r *Registry, location string, found []*Descriptor) (*Descriptor, error) {
	if location == "auto" || location == "" {
		for _, d := range found {
			if d.Default {
				return d, nil
			}
		}
		if len(found) > 0 {
			return found[0], nil
		}
		return nil, rwerrors.ResolutionFailure("no editor found on disk")
	}

	if strings.ContainsRune(location, os.PathSeparator) {
		return r.synthesize(location, filepath.Base(location)), nil
	}

	for _, d := range found {
		if d.Binary == location {
			return d, nil
		}
	}

	if location != "" {
		return r.synthesize(location, location), nil
	}

	if len(found) > 0 {
		return found[0], nil
	}
	return nil, rwerrors.ResolutionFailure("no editor matches location setting").
		WithContext("location", location)
}

// synthesize builds (or reuses) a custom descriptor for a binary not in the
// catalog. A binary with no discoverable history is still usable for
// launching, so a missing storage directory keeps the guess.
func (r *Registry) synthesize(binary, basename string) *Descriptor {
	name := "custom(" + basename + ")"
	if d, ok := r.custom[name]; ok {
		return d
	}

	storage := r.guessStorage(basename)
	if _, err := os.Stat(storage); err != nil {
		for _, product := range alternativeProducts {
			alt := r.workspaceStorage(product)
			if _, err := os.Stat(alt); err == nil {
				storage = alt
				break
			}
		}
	}

	d := &Descriptor{
		Name:        name,
		Binary:      binary,
		Kind:        StorageDirectoryJSON,
		StoragePath: storage,
	}
	r.custom[name] = d
	return d
}

func (r *Registry) guessStorage(basename string) string {
	lower := strings.ToLower(basename)
	for _, rule := range storageGuesses {
		if strings.Contains(lower, rule.substr) {
			return r.workspaceStorage(rule.product)
		}
	}
	return r.workspaceStorage(basename)
}
