// Package kvextract extracts workspace paths from an editor's embedded
// key-value database. Strategies are tried in order: a targeted key lookup,
// a broad pattern query, and finally a filesystem heuristic when the
// database itself is unavailable or yields nothing.
package kvextract

import (
	"context"
	"database/sql"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	rwerrors "github.com/mfeld/recentws/internal/errors"
	"github.com/mfeld/recentws/internal/logfields"
)

// Strategy names, for logging and tests.
const (
	StrategyDirect    = "direct"
	StrategyBroad     = "broad"
	StrategyHeuristic = "heuristic"
)

// directKey is the single key expected to hold a JSON array of project
// entries.
const directKey = "recent.projectPaths"

// Extractor reads one editor's key-value database.
type Extractor struct {
	dbPath string
	home   string
}

// New creates an extractor for the database at dbPath. home anchors the
// filesystem heuristic; empty means the user's home directory.
func New(dbPath, home string) *Extractor {
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		}
	}
	return &Extractor{dbPath: dbPath, home: home}
}

// Projects runs the fallback chain and returns the extracted project paths
// plus the strategy that produced them. The chain never fails outright: the
// heuristic ends with the home directory as a last-resort project.
func (e *Extractor) Projects(ctx context.Context) ([]string, string) {
	db, err := e.openDB()
	if err != nil {
		slog.Debug("Query database unavailable, using filesystem heuristic",
			logfields.Path(e.dbPath), logfields.Error(err))
		return e.heuristic(), StrategyHeuristic
	}
	defer db.Close()

	if paths, err := e.directQuery(ctx, db); err == nil && len(paths) > 0 {
		return paths, StrategyDirect
	} else if err != nil {
		slog.Debug("Direct query failed", logfields.Strategy(StrategyDirect), logfields.Error(err))
	}

	if paths, err := e.broadQuery(ctx, db); err == nil && len(paths) > 0 {
		return paths, StrategyBroad
	} else if err != nil {
		slog.Debug("Broad query failed", logfields.Strategy(StrategyBroad), logfields.Error(err))
	}

	return e.heuristic(), StrategyHeuristic
}

// openDB verifies the database is present and readable. A missing or
// unopenable database is ToolUnavailable and advances the chain.
func (e *Extractor) openDB() (*sql.DB, error) {
	if _, err := os.Stat(e.dbPath); err != nil {
		return nil, rwerrors.WrapToolUnavailable(err, "query database missing")
	}

	db, err := sql.Open("sqlite", "file:"+e.dbPath+"?mode=ro")
	if err != nil {
		return nil, rwerrors.WrapToolUnavailable(err, "open query database")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, rwerrors.WrapToolUnavailable(err, "ping query database")
	}
	return db, nil
}
