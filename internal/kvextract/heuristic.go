package kvextract

import (
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	git "github.com/go-git/go-git/v5"
)

// commonRoots are directory names under the home directory commonly used as
// project roots.
var commonRoots = []string{
	"Projects", "Development", "src", "Code", "git",
	"workspace", "workspaces", "work",
	"GitHub", "github", "GitLab", "gitlab",
}

// markerFiles identify a directory as a project even without version control.
var markerFiles = []string{
	"go.mod", "package.json", "Cargo.toml", "pyproject.toml",
	"pom.xml", "build.gradle", "CMakeLists.txt", "Makefile",
}

const (
	maxHeuristicProjects = 25
	heuristicDepth       = 2
)

// recentlyUsedFile is the freedesktop recently-used registry under the data
// dir; directories referenced there widen the root set.
const recentlyUsedFile = ".local/share/recently-used.xbel"

var fileHrefPattern = regexp.MustCompile(`href="file://([^"]+)"`)

// heuristic scans common project roots (plus roots recovered from the
// recently-used registry) for version-controlled or marker-file projects.
// When nothing is found the home directory itself is the single fallback.
func (e *Extractor) heuristic() []string {
	roots := make([]string, 0, len(commonRoots))
	for _, name := range commonRoots {
		roots = append(roots, filepath.Join(e.home, name))
	}
	roots = append(roots, e.recentDirs()...)

	seen := make(map[string]bool)
	var projects []string
	for _, root := range roots {
		if len(projects) >= maxHeuristicProjects {
			break
		}
		e.searchRoot(root, 0, seen, &projects)
	}

	if len(projects) == 0 {
		return []string{e.home}
	}
	return projects
}

// searchRoot recursively searches root up to heuristicDepth for project
// directories. A recognized project is not descended into.
func (e *Extractor) searchRoot(root string, depth int, seen map[string]bool, projects *[]string) {
	if len(*projects) >= maxHeuristicProjects {
		return
	}

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return
	}

	if isProject(root) {
		if !seen[root] {
			seen[root] = true
			*projects = append(*projects, root)
		}
		return
	}

	if depth >= heuristicDepth {
		return
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if len(*projects) >= maxHeuristicProjects {
			return
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		e.searchRoot(filepath.Join(root, entry.Name()), depth+1, seen, projects)
	}
}

// isProject reports whether dir is a version-controlled repository or
// carries a known project marker file.
func isProject(dir string) bool {
	if _, err := git.PlainOpen(dir); err == nil {
		return true
	}
	for _, marker := range markerFiles {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// recentDirs recovers directory references from the recently-used registry.
// The registry lists files; their parent directories become extra roots.
func (e *Extractor) recentDirs() []string {
	data, err := os.ReadFile(filepath.Join(e.home, recentlyUsedFile))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	for _, match := range fileHrefPattern.FindAllStringSubmatch(string(data), -1) {
		p, err := url.PathUnescape(match[1])
		if err != nil {
			continue
		}
		dir := filepath.Dir(p)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			seen[dir] = true
		}
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}
