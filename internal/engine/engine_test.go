package engine

import (
	"database/sql"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfeld/recentws/internal/cache"
	"github.com/mfeld/recentws/internal/config"
	"github.com/mfeld/recentws/internal/editors"
	"github.com/mfeld/recentws/internal/events"
	"github.com/mfeld/recentws/internal/store"
)

type fixture struct {
	engine     *Engine
	settings   string
	storage    string
	configBase string
	dataBase   string
	home       string
}

// newFixture builds an engine over a temporary editor catalog with an
// existing (empty) VS Code store, so "auto" resolves to "code".
func newFixture(t *testing.T, cfg *config.Settings, opts ...Option) *fixture {
	t.Helper()

	configBase := t.TempDir()
	dataBase := t.TempDir()
	home := t.TempDir()
	storage := filepath.Join(configBase, "Code", "User", "workspaceStorage")
	require.NoError(t, os.MkdirAll(storage, 0o755))

	settings := filepath.Join(t.TempDir(), "settings.yaml")
	if cfg != nil {
		require.NoError(t, config.Save(settings, cfg))
	}

	opts = append([]Option{
		WithRegistry(editors.NewRegistry(configBase, dataBase)),
		WithHome(home),
	}, opts...)
	eng, err := New(settings, opts...)
	require.NoError(t, err)

	return &fixture{
		engine:     eng,
		settings:   settings,
		storage:    storage,
		configBase: configBase,
		dataBase:   dataBase,
		home:       home,
	}
}

func writeRecord(t *testing.T, storage, name string, rec map[string]any) string {
	t.Helper()
	dir := filepath.Join(storage, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.RecordFile), data, 0o644))
	return dir
}

func dirURI(p string) string {
	u := url.URL{Scheme: "file", Path: p}
	return u.String()
}

func TestScanOnceDiscoversStoreRecords(t *testing.T) {
	f := newFixture(t, nil)

	alpha := filepath.Join(t.TempDir(), "alpha")
	beta := filepath.Join(t.TempDir(), "beta")
	require.NoError(t, os.MkdirAll(alpha, 0o755))
	require.NoError(t, os.MkdirAll(beta, 0o755))
	writeRecord(t, f.storage, "ws-alpha", map[string]any{"folder": dirURI(alpha)})
	writeRecord(t, f.storage, "ws-beta", map[string]any{"folder": dirURI(beta)})

	f.engine.ScanOnce()

	view := f.engine.RecentWorkspaces()
	require.Len(t, view, 2)
	names := []string{view[0].Name, view[1].Name}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
	assert.Equal(t, "code", view[0].Editor)
}

func TestScanOnceDeduplicatesByURI(t *testing.T) {
	f := newFixture(t, nil)

	target := filepath.Join(t.TempDir(), "shared")
	require.NoError(t, os.MkdirAll(target, 0o755))
	writeRecord(t, f.storage, "ws-one", map[string]any{"folder": dirURI(target)})
	writeRecord(t, f.storage, "ws-two", map[string]any{"folder": dirURI(target)})

	f.engine.ScanOnce()
	f.engine.ScanOnce()

	assert.Len(t, f.engine.RecentWorkspaces(), 1)
}

func TestMalformedRecordIsSkipped(t *testing.T) {
	f := newFixture(t, nil)

	good := filepath.Join(t.TempDir(), "good")
	require.NoError(t, os.MkdirAll(good, 0o755))
	writeRecord(t, f.storage, "ws-good", map[string]any{"folder": dirURI(good)})

	dir := filepath.Join(f.storage, "ws-bad")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, store.RecordFile), []byte("{not json"), 0o644))

	f.engine.ScanOnce()

	view := f.engine.RecentWorkspaces()
	require.Len(t, view, 1)
	assert.Equal(t, "good", view[0].Name)
}

func TestOrphanArchivedWhenCleanupEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.CleanupOrphanedWorkspaces = true
	f := newFixture(t, cfg)

	gone := filepath.Join(t.TempDir(), "vanished")
	recDir := writeRecord(t, f.storage, "ws-gone", map[string]any{"folder": dirURI(gone)})

	f.engine.ScanOnce()

	assert.Empty(t, f.engine.RecentWorkspaces())

	_, err := os.Stat(recDir)
	assert.True(t, os.IsNotExist(err), "record directory should have been renamed away")
	archived, err := filepath.Glob(recDir + ".archived-*")
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestNofailOrphanNeverArchived(t *testing.T) {
	cfg := config.Default()
	cfg.CleanupOrphanedWorkspaces = true
	f := newFixture(t, cfg)

	gone := filepath.Join(t.TempDir(), "vanished")
	recDir := writeRecord(t, f.storage, "ws-protected", map[string]any{
		"folder": dirURI(gone),
		"nofail": true,
	})

	f.engine.ScanOnce()

	view := f.engine.RecentWorkspaces()
	require.Len(t, view, 1)
	assert.Equal(t, "vanished", view[0].Name)

	_, err := os.Stat(recDir)
	assert.NoError(t, err, "protected record must stay in place")
}

func TestOrphanRetainedWhenCleanupDisabled(t *testing.T) {
	f := newFixture(t, nil)

	gone := filepath.Join(t.TempDir(), "vanished")
	recDir := writeRecord(t, f.storage, "ws-gone", map[string]any{"folder": dirURI(gone)})

	f.engine.ScanOnce()

	assert.Len(t, f.engine.RecentWorkspaces(), 1)
	_, err := os.Stat(recDir)
	assert.NoError(t, err)
}

func TestNofailListPersistsFlagIntoRecord(t *testing.T) {
	cfg := config.Default()
	cfg.CleanupOrphanedWorkspaces = true
	cfg.NofailWorkspaceNames = []string{"vanished"}
	f := newFixture(t, cfg)

	gone := filepath.Join(t.TempDir(), "vanished")
	recDir := writeRecord(t, f.storage, "ws-listed", map[string]any{"folder": dirURI(gone)})

	f.engine.ScanOnce()

	// Listed by name, so the orphan survives and the flag is written back.
	require.Len(t, f.engine.RecentWorkspaces(), 1)
	rec, err := store.ReadRecord(recDir)
	require.NoError(t, err)
	assert.True(t, rec.Nofail)
}

func TestPreferWorkspaceFileRewritesURI(t *testing.T) {
	cfg := config.Default()
	cfg.PreferWorkspaceFile = true
	f := newFixture(t, cfg)

	target := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.MkdirAll(target, 0o755))
	for _, name := range []string{"zeta.code-workspace", "alpha.code-workspace"} {
		require.NoError(t, os.WriteFile(filepath.Join(target, name), []byte("{}"), 0o644))
	}
	writeRecord(t, f.storage, "ws-proj", map[string]any{"folder": dirURI(target)})

	f.engine.ScanOnce()

	view := f.engine.RecentWorkspaces()
	require.Len(t, view, 1)
	assert.Equal(t, "alpha", view[0].Name)
	assert.Equal(t, filepath.Join(target, "alpha.code-workspace"), view[0].FullPath)
}

func TestEmptyStoreFinalizesExactlyOnce(t *testing.T) {
	f := newFixture(t, nil)

	finished, cancel := events.Subscribe[events.CycleFinished](f.engine.Bus(), 4)
	defer cancel()

	f.engine.ScanOnce()

	require.Len(t, finished, 1)
	evt := <-finished
	assert.Equal(t, cycleFull, evt.Kind)
	assert.Zero(t, evt.Discovered)
}

func TestRequestCycleCoalescing(t *testing.T) {
	f := newFixture(t, nil)

	f.engine.cycleRunning = true

	f.engine.requestCycle(cycleLight)
	assert.Equal(t, cycleLight, f.engine.pendingKind)

	// A full request outranks the pending lightweight one.
	f.engine.requestCycle(cycleFull)
	assert.Equal(t, cycleFull, f.engine.pendingKind)

	// And is not downgraded afterwards.
	f.engine.requestCycle(cycleLight)
	assert.Equal(t, cycleFull, f.engine.pendingKind)
}

func TestKeyValueEditorFallsBackToHome(t *testing.T) {
	cfg := config.Default()
	cfg.EditorLocation = "zed"
	f := newFixture(t, cfg)

	// An empty file is a valid empty database: extraction finds no keys and
	// the filesystem heuristic finds no project roots, leaving the home
	// directory as the only result.
	dbPath := filepath.Join(f.dataBase, "zed", "db", "db.sqlite")
	require.NoError(t, os.MkdirAll(filepath.Dir(dbPath), 0o755))
	require.NoError(t, os.WriteFile(dbPath, nil, 0o644))

	f.engine.ScanOnce()

	view := f.engine.RecentWorkspaces()
	require.Len(t, view, 1)
	assert.Equal(t, f.home, view[0].FullPath)
	assert.Equal(t, "zed", view[0].Editor)
}

func TestSnapshotWarmsNextRun(t *testing.T) {
	f := newFixture(t, nil)

	target := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.MkdirAll(target, 0o755))
	writeRecord(t, f.storage, "ws-proj", map[string]any{"folder": dirURI(target)})

	f.engine.ScanOnce()
	require.Len(t, f.engine.RecentWorkspaces(), 1)

	// A second engine over the same settings path sees the snapshot before
	// running any cycle.
	warm, err := New(f.settings,
		WithRegistry(editors.NewRegistry(f.configBase, f.dataBase)),
		WithHome(f.home),
	)
	require.NoError(t, err)

	view := warm.RecentWorkspaces()
	require.Len(t, view, 1)
	assert.Equal(t, "proj", view[0].Name)
}

func TestOpenReturnsLaunchCommandAndTouches(t *testing.T) {
	cfg := config.Default()
	cfg.CustomLaunchArgs = "--reuse-window"
	f := newFixture(t, cfg)

	target := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.MkdirAll(target, 0o755))
	writeRecord(t, f.storage, "ws-proj", map[string]any{"folder": dirURI(target)})

	f.engine.ScanOnce()

	argv, err := f.engine.Open(dirURI(target))
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "--reuse-window", target}, argv)

	_, err = f.engine.Open("file:///not/in/cache")
	assert.Error(t, err)
}

func TestToggleFavoritePersistsAndPartitions(t *testing.T) {
	f := newFixture(t, config.Default())

	alpha := filepath.Join(t.TempDir(), "alpha")
	beta := filepath.Join(t.TempDir(), "beta")
	require.NoError(t, os.MkdirAll(alpha, 0o755))
	require.NoError(t, os.MkdirAll(beta, 0o755))
	writeRecord(t, f.storage, "ws-alpha", map[string]any{"folder": dirURI(alpha)})
	writeRecord(t, f.storage, "ws-beta", map[string]any{"folder": dirURI(beta)})

	f.engine.ScanOnce()
	require.NoError(t, f.engine.ToggleFavorite(dirURI(beta)))

	view := f.engine.RecentWorkspaces()
	require.Len(t, view, 2)
	assert.Equal(t, "beta", view[0].Name)
	assert.True(t, view[0].Favorite)

	persisted, err := config.Load(f.settings)
	require.NoError(t, err)
	assert.Equal(t, []string{dirURI(beta)}, persisted.FavoriteWorkspaceURIs)

	require.NoError(t, f.engine.ToggleFavorite(dirURI(beta)))
	persisted, err = config.Load(f.settings)
	require.NoError(t, err)
	assert.Empty(t, persisted.FavoriteWorkspaceURIs)
}

func TestSoftRemoveArchivesRecord(t *testing.T) {
	f := newFixture(t, nil)

	target := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.MkdirAll(target, 0o755))
	recDir := writeRecord(t, f.storage, "ws-proj", map[string]any{"folder": dirURI(target)})

	f.engine.ScanOnce()
	require.NoError(t, f.engine.SoftRemove(dirURI(target)))

	assert.Empty(t, f.engine.RecentWorkspaces())
	_, err := os.Stat(recDir)
	assert.True(t, os.IsNotExist(err))
	archived, err := filepath.Glob(recDir + ".archived-*")
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestHardRemoveDeletesRecord(t *testing.T) {
	f := newFixture(t, nil)

	target := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.MkdirAll(target, 0o755))
	recDir := writeRecord(t, f.storage, "ws-proj", map[string]any{"folder": dirURI(target)})

	f.engine.ScanOnce()
	require.NoError(t, f.engine.HardRemove(dirURI(target)))

	assert.Empty(t, f.engine.RecentWorkspaces())
	_, err := os.Stat(recDir)
	assert.True(t, os.IsNotExist(err))
	archived, err := filepath.Glob(recDir + ".archived-*")
	require.NoError(t, err)
	assert.Empty(t, archived)
}

// countingRecorder captures metric calls for assertions.
type countingRecorder struct {
	cycles    int
	orphans   int
	evicted   int
	cacheSize int
}

func (r *countingRecorder) IncCycle(string)                            { r.cycles++ }
func (r *countingRecorder) ObserveCycleDuration(string, time.Duration) {}
func (r *countingRecorder) AddDiscovered(string, int)                  {}
func (r *countingRecorder) IncOrphanArchived()                         { r.orphans++ }
func (r *countingRecorder) IncEvicted(n int)                           { r.evicted += n }
func (r *countingRecorder) SetCacheSize(n int)                         { r.cacheSize = n }

func TestUndrainedSubscriberNeverBlocksTheEngine(t *testing.T) {
	f := newFixture(t, nil)

	target := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.MkdirAll(target, 0o755))
	writeRecord(t, f.storage, "ws-proj", map[string]any{"folder": dirURI(target)})

	// Unbuffered subscription that is never read: cycle finalize and
	// consumer operations must still complete.
	_, cancel := events.Subscribe[events.RecentsChanged](f.engine.Bus(), 0)
	defer cancel()

	f.engine.ScanOnce()
	require.Len(t, f.engine.RecentWorkspaces(), 1)

	_, err := f.engine.Open(dirURI(target))
	require.NoError(t, err)
	require.NoError(t, f.engine.ToggleFavorite(dirURI(target)))
}

func TestOpenPersistsRecencyBump(t *testing.T) {
	f := newFixture(t, nil)

	target := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.MkdirAll(target, 0o755))
	writeRecord(t, f.storage, "ws-proj", map[string]any{"folder": dirURI(target)})

	f.engine.ScanOnce()
	_, err := f.engine.Open(dirURI(target))
	require.NoError(t, err)

	// The snapshot carries the touched timestamp, not the scan-time one.
	persisted := cache.New()
	_, err = cache.LoadSnapshot(filepath.Join(filepath.Dir(f.settings), "cache.json"), persisted)
	require.NoError(t, err)
	ws := persisted.Get(dirURI(target))
	require.NotNil(t, ws)
	assert.True(t, ws.LastAccessed.Equal(f.engine.cache.Get(dirURI(target)).LastAccessed))
}

func TestOrphanMetricCountsSuccessfulArchives(t *testing.T) {
	cfg := config.Default()
	cfg.CleanupOrphanedWorkspaces = true
	rec := &countingRecorder{}
	f := newFixture(t, cfg, WithRecorder(rec))

	gone := filepath.Join(t.TempDir(), "vanished")
	writeRecord(t, f.storage, "ws-gone", map[string]any{"folder": dirURI(gone)})

	f.engine.ScanOnce()

	assert.Empty(t, f.engine.RecentWorkspaces())
	assert.Equal(t, 1, rec.orphans)
}

func TestHandleLessOrphanDropIsNotCountedAsArchive(t *testing.T) {
	cfg := config.Default()
	cfg.CleanupOrphanedWorkspaces = true
	cfg.EditorLocation = "zed"
	rec := &countingRecorder{}
	f := newFixture(t, cfg, WithRecorder(rec))

	// Extracted entries carry no store handle; a vanished target is
	// dropped but nothing was archived.
	dbPath := filepath.Join(f.dataBase, "zed", "db", "db.sqlite")
	require.NoError(t, os.MkdirAll(filepath.Dir(dbPath), 0o755))
	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE ItemTable (key TEXT PRIMARY KEY, value BLOB)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO ItemTable (key, value) VALUES (?, ?)`,
		"recent.projectPaths", []byte(`["`+filepath.Join(t.TempDir(), "missing")+`"]`))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	f.engine.ScanOnce()

	assert.Empty(t, f.engine.RecentWorkspaces())
	assert.Zero(t, rec.orphans)
	assert.Equal(t, 1, rec.cycles)
}

func TestRemoveFailureLeavesCacheUnchanged(t *testing.T) {
	f := newFixture(t, nil)

	target := filepath.Join(t.TempDir(), "proj")
	require.NoError(t, os.MkdirAll(target, 0o755))
	recDir := writeRecord(t, f.storage, "ws-proj", map[string]any{"folder": dirURI(target)})

	f.engine.ScanOnce()

	// Remove the store directory out from under the engine so the archive
	// rename fails.
	require.NoError(t, os.RemoveAll(recDir))

	err := f.engine.SoftRemove(dirURI(target))
	assert.Error(t, err)
	assert.Len(t, f.engine.RecentWorkspaces(), 1)
}
