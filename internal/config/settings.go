// Package config loads and persists engine settings. Settings live in a
// single YAML file; changes on disk are surfaced through Watcher so the
// engine can re-read the full set on every notification.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	rwerrors "github.com/mfeld/recentws/internal/errors"
)

const (
	// LocationAuto selects the default editor, falling back to the first
	// editor actually found on disk.
	LocationAuto = "auto"

	defaultRefreshSeed = 30
)

// Settings is the full set of recognized options. The engine re-reads all of
// them on every change notification.
type Settings struct {
	// EditorLocation is "auto", a binary name, or a literal binary path.
	EditorLocation string `yaml:"editorLocation"`

	// RefreshIntervalSeed is the initial refresh floor in seconds.
	RefreshIntervalSeed int `yaml:"refreshIntervalSeed"`

	// PreferWorkspaceFile rewrites directory workspaces to a contained
	// workspace file when one exists.
	PreferWorkspaceFile bool `yaml:"preferWorkspaceFile"`

	// CleanupOrphanedWorkspaces archives store records whose target vanished.
	CleanupOrphanedWorkspaces bool `yaml:"cleanupOrphanedWorkspaces"`

	// NofailWorkspaceNames protects workspaces by basename from orphan cleanup.
	NofailWorkspaceNames []string `yaml:"nofailWorkspaceNames"`

	// FavoriteWorkspaceURIs pins workspaces to the favorites partition.
	FavoriteWorkspaceURIs []string `yaml:"favoriteWorkspaceURIs"`

	// CustomLaunchArgs is passed through to the launcher, not consumed by
	// the engine.
	CustomLaunchArgs string `yaml:"customLaunchArgs"`
}

// Default returns settings with all defaults applied.
func Default() *Settings {
	return &Settings{
		EditorLocation:      LocationAuto,
		RefreshIntervalSeed: defaultRefreshSeed,
	}
}

// DefaultPath returns the settings file location under the user config dir.
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", rwerrors.ConfigError(err, "resolve user config dir")
	}
	return filepath.Join(base, "recentws", "settings.yaml"), nil
}

// Load reads settings from path and applies defaults and environment
// overrides. A missing file yields defaults, not an error.
func Load(path string) (*Settings, error) {
	// .env values never override an already-exported environment.
	_ = godotenv.Load()

	s := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.applyEnv()
			return s.normalize(), nil
		}
		return nil, rwerrors.ConfigError(err, "read settings file")
	}

	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, rwerrors.ConfigError(err, "parse settings file")
	}

	s.applyEnv()
	return s.normalize(), nil
}

// Save writes settings atomically (write-temp-then-replace).
func Save(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return rwerrors.ConfigError(err, "create settings directory")
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return rwerrors.ConfigError(err, "marshal settings")
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return rwerrors.ConfigError(err, "write temporary settings file")
	}
	if err := os.Rename(tempPath, path); err != nil {
		return rwerrors.ConfigError(err, "replace settings file")
	}
	return nil
}

// applyEnv applies RECENTWS_* environment overrides.
func (s *Settings) applyEnv() {
	if v := os.Getenv("RECENTWS_EDITOR_LOCATION"); v != "" {
		s.EditorLocation = v
	}
	if v := os.Getenv("RECENTWS_REFRESH_SEED"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.RefreshIntervalSeed = n
		}
	}
	if v := os.Getenv("RECENTWS_LAUNCH_ARGS"); v != "" {
		s.CustomLaunchArgs = v
	}
}

// normalize fills defaults for zero or out-of-range values.
func (s *Settings) normalize() *Settings {
	if s.EditorLocation == "" {
		s.EditorLocation = LocationAuto
	}
	if s.RefreshIntervalSeed <= 0 {
		s.RefreshIntervalSeed = defaultRefreshSeed
	}
	return s
}

// Favorites returns the favorite URIs as a set.
func (s *Settings) Favorites() map[string]bool {
	set := make(map[string]bool, len(s.FavoriteWorkspaceURIs))
	for _, uri := range s.FavoriteWorkspaceURIs {
		set[uri] = true
	}
	return set
}

// NofailNames returns the protected basenames as a set.
func (s *Settings) NofailNames() map[string]bool {
	set := make(map[string]bool, len(s.NofailWorkspaceNames))
	for _, name := range s.NofailWorkspaceNames {
		set[name] = true
	}
	return set
}

// Clone returns a deep copy so callers can mutate without racing the engine.
func (s *Settings) Clone() *Settings {
	out := *s
	out.NofailWorkspaceNames = append([]string(nil), s.NofailWorkspaceNames...)
	out.FavoriteWorkspaceURIs = append([]string(nil), s.FavoriteWorkspaceURIs...)
	return &out
}

// String implements fmt.Stringer for debug logging without favorites spam.
func (s *Settings) String() string {
	return fmt.Sprintf("editor=%s seed=%ds preferWorkspaceFile=%t cleanup=%t favorites=%d nofail=%d",
		s.EditorLocation, s.RefreshIntervalSeed, s.PreferWorkspaceFile,
		s.CleanupOrphanedWorkspaces, len(s.FavoriteWorkspaceURIs), len(s.NofailWorkspaceNames))
}
