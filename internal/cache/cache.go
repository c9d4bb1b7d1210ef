// Package cache holds the canonical deduplicated set of discovered
// workspaces and derives the bounded, sorted recent view exposed to
// consumers.
package cache

import (
	"net/url"
	"path"
	"sort"
	"strings"
	"time"
)

const (
	// DefaultMaxSize is the cache size above which eviction is considered.
	DefaultMaxSize = 100

	// DefaultMaxAge is how old a record must be to be evicted once the
	// size threshold is exceeded.
	DefaultMaxAge = 30 * 24 * time.Hour

	// DefaultViewLimit bounds the recent view.
	DefaultViewLimit = 50
)

// Workspace is one discovered project location plus its protection and
// recency metadata. URI is the unique key.
type Workspace struct {
	URI    string
	Editor string

	// Handle is the store sub-directory backing this record, used only for
	// trash/delete/rewrite operations. Empty for records with no on-disk
	// home (key-value extraction). Never an identity key.
	Handle string

	Nofail       bool
	Remote       bool
	LastAccessed time.Time
}

// Name returns the URI basename with any workspace-file suffix stripped.
func (w *Workspace) Name() string {
	return DisplayName(w.URI)
}

// FullPath returns the filesystem path for file URIs, or the raw URI for
// anything else.
func (w *Workspace) FullPath() string {
	return PathOf(w.URI)
}

// View is the derived read-only projection of a Workspace for the consumer.
type View struct {
	Name         string
	FullPath     string
	URI          string
	Editor       string
	Favorite     bool
	LastAccessed time.Time
}

// Cache maps uri → Workspace. Value-based dedup on URI, not identity.
// Not safe for concurrent writers; the engine's run loop is the single
// writer.
type Cache struct {
	byURI   map[string]*Workspace
	maxSize int
	maxAge  time.Duration
	now     func() time.Time
}

func New() *Cache {
	return &Cache{
		byURI:   make(map[string]*Workspace),
		maxSize: DefaultMaxSize,
		maxAge:  DefaultMaxAge,
		now:     time.Now,
	}
}

// NewWithLimits is used by tests and settings-driven construction.
func NewWithLimits(maxSize int, maxAge time.Duration) *Cache {
	c := New()
	if maxSize > 0 {
		c.maxSize = maxSize
	}
	if maxAge > 0 {
		c.maxAge = maxAge
	}
	return c
}

// SetClock overrides the time source for tests.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// Len returns the number of cached records.
func (c *Cache) Len() int { return len(c.byURI) }

// Get returns the record for uri, or nil.
func (c *Cache) Get(uri string) *Workspace { return c.byURI[uri] }

// Ingest inserts a workspace unless a record with the same URI already
// exists. Returns true when inserted. LastAccessed defaults to now when
// unset.
func (c *Cache) Ingest(ws *Workspace) bool {
	if _, exists := c.byURI[ws.URI]; exists {
		return false
	}
	if ws.LastAccessed.IsZero() {
		ws.LastAccessed = c.now()
	}
	c.byURI[ws.URI] = ws
	return true
}

// Touch bumps LastAccessed to now on open. Returns false when uri is not
// cached.
func (c *Cache) Touch(uri string) bool {
	ws, ok := c.byURI[uri]
	if !ok {
		return false
	}
	ws.LastAccessed = c.now()
	return true
}

// Remove drops the record for uri and returns it, or nil.
func (c *Cache) Remove(uri string) *Workspace {
	ws, ok := c.byURI[uri]
	if !ok {
		return nil
	}
	delete(c.byURI, uri)
	return ws
}

// All returns every cached record, unordered.
func (c *Cache) All() []*Workspace {
	out := make([]*Workspace, 0, len(c.byURI))
	for _, ws := range c.byURI {
		out = append(out, ws)
	}
	return out
}

// EvictIfNeeded removes records older than maxAge, but only once the cache
// exceeds maxSize. Below the threshold nothing is evicted regardless of age.
// Returns the removed records.
func (c *Cache) EvictIfNeeded() []*Workspace {
	if len(c.byURI) <= c.maxSize {
		return nil
	}

	cutoff := c.now().Add(-c.maxAge)
	var removed []*Workspace
	for uri, ws := range c.byURI {
		if ws.LastAccessed.Before(cutoff) {
			removed = append(removed, ws)
			delete(c.byURI, uri)
		}
	}
	return removed
}

// RecentView sorts all records by LastAccessed descending, truncates to
// limit, and partitions favorites ahead of the rest. Ties break on URI so
// repeated calls produce identical output.
func (c *Cache) RecentView(limit int, favorites map[string]bool) []View {
	if limit <= 0 {
		limit = DefaultViewLimit
	}

	sorted := c.All()
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].LastAccessed.Equal(sorted[j].LastAccessed) {
			return sorted[i].LastAccessed.After(sorted[j].LastAccessed)
		}
		return sorted[i].URI < sorted[j].URI
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	var favs, rest []View
	for _, ws := range sorted {
		v := View{
			Name:         ws.Name(),
			FullPath:     ws.FullPath(),
			URI:          ws.URI,
			Editor:       ws.Editor,
			Favorite:     favorites[ws.URI],
			LastAccessed: ws.LastAccessed,
		}
		if v.Favorite {
			favs = append(favs, v)
		} else {
			rest = append(rest, v)
		}
	}
	return append(favs, rest...)
}

// DisplayName derives a workspace's display name from its URI: the basename
// with the ".code-workspace" suffix stripped.
func DisplayName(uri string) string {
	base := path.Base(PathOf(uri))
	return strings.TrimSuffix(base, ".code-workspace")
}

// PathOf extracts a filesystem path from a file URI; other URIs pass through
// unchanged.
func PathOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return uri
	}
	return u.Path
}
