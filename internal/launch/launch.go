// Package launch builds the argument vector used to open a workspace in the
// active editor. It is a collaborator of the engine, consumed by the CLI;
// the engine itself never spawns processes.
package launch

import (
	"strings"

	"github.com/mfeld/recentws/internal/cache"
	"github.com/mfeld/recentws/internal/editors"
	"github.com/mfeld/recentws/internal/store"
)

// Argv returns the command line to open uri with the given editor.
// customLaunchArgs is split on whitespace and inserted before the target.
// Remote URIs are passed as --folder-uri so the editor resolves them itself.
func Argv(desc *editors.Descriptor, customLaunchArgs, uri string) []string {
	argv := []string{desc.Binary}
	argv = append(argv, strings.Fields(customLaunchArgs)...)

	if store.IsRemoteURI(uri) {
		return append(argv, "--folder-uri", uri)
	}
	return append(argv, cache.PathOf(uri))
}
