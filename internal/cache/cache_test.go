package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngestDeduplicatesOnURI(t *testing.T) {
	c := New()

	require.True(t, c.Ingest(&Workspace{URI: "file:///home/u/proj", Editor: "code"}))
	assert.False(t, c.Ingest(&Workspace{URI: "file:///home/u/proj", Editor: "codium"}))

	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "code", c.Get("file:///home/u/proj").Editor)
}

func TestIngestDefaultsLastAccessed(t *testing.T) {
	c := New()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return fixed })

	c.Ingest(&Workspace{URI: "file:///a"})
	assert.Equal(t, fixed, c.Get("file:///a").LastAccessed)

	explicit := fixed.Add(-time.Hour)
	c.Ingest(&Workspace{URI: "file:///b", LastAccessed: explicit})
	assert.Equal(t, explicit, c.Get("file:///b").LastAccessed)
}

func TestTouchBumpsLastAccessed(t *testing.T) {
	c := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	c.SetClock(func() time.Time { return now })

	c.Ingest(&Workspace{URI: "file:///a"})
	now = base.Add(time.Hour)
	require.True(t, c.Touch("file:///a"))
	assert.Equal(t, now, c.Get("file:///a").LastAccessed)

	assert.False(t, c.Touch("file:///missing"))
}

func TestEvictionOnlyAboveSizeThreshold(t *testing.T) {
	c := NewWithLimits(100, 30*24*time.Hour)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })

	old := now.Add(-60 * 24 * time.Hour)
	// 100 records, 10 of them ancient: still at the threshold, nothing goes.
	for i := 0; i < 100; i++ {
		ts := now
		if i < 10 {
			ts = old
		}
		c.Ingest(&Workspace{URI: fmt.Sprintf("file:///p/%03d", i), LastAccessed: ts})
	}
	assert.Empty(t, c.EvictIfNeeded())
	assert.Equal(t, 100, c.Len())

	// One more record tips it over: exactly the 10 ancient ones go.
	c.Ingest(&Workspace{URI: "file:///p/extra", LastAccessed: now})
	removed := c.EvictIfNeeded()
	assert.Len(t, removed, 10)
	assert.Equal(t, 91, c.Len())
	for _, ws := range removed {
		assert.True(t, ws.LastAccessed.Before(now.Add(-30*24*time.Hour)))
	}
}

func TestRecentViewBoundedSortedPartitioned(t *testing.T) {
	c := New()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	favorites := map[string]bool{}
	for i := 0; i < 60; i++ {
		uri := fmt.Sprintf("file:///home/u/p%02d", i)
		c.Ingest(&Workspace{URI: uri, LastAccessed: base.Add(time.Duration(i) * time.Minute)})
		if i%10 == 0 {
			favorites[uri] = true
		}
	}

	view := c.RecentView(50, favorites)
	require.Len(t, view, 50)

	// Favorites lead, then the rest; each partition ordered by recency.
	var split int
	for i, v := range view {
		if !v.Favorite {
			split = i
			break
		}
	}
	last := time.Time{}
	for i, v := range view[:split] {
		assert.True(t, v.Favorite)
		if i > 0 {
			assert.False(t, v.LastAccessed.After(last))
		}
		last = v.LastAccessed
	}
	last = time.Time{}
	for i, v := range view[split:] {
		assert.False(t, v.Favorite)
		if i > 0 {
			assert.False(t, v.LastAccessed.After(last))
		}
		last = v.LastAccessed
	}

	// Truncation happens before partitioning, so even the favorite p00
	// falls off when it is among the 10 least-recent records.
	for _, v := range view {
		assert.NotEqual(t, "p00", v.Name)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "proj", DisplayName("file:///home/u/proj"))
	assert.Equal(t, "proj", DisplayName("file:///home/u/proj.code-workspace"))
	assert.Equal(t, "srv", DisplayName("ssh://host/data/srv"))
}

func TestPathOf(t *testing.T) {
	assert.Equal(t, "/home/u/proj", PathOf("file:///home/u/proj"))
	assert.Equal(t, "vscode-remote://box/home", PathOf("vscode-remote://box/home"))
	assert.Equal(t, "/plain/path", PathOf("/plain/path"))
}
