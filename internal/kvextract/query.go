package kvextract

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	rwerrors "github.com/mfeld/recentws/internal/errors"
)

// directQuery looks up the single key expected to hold a JSON array of
// project entries. String elements are paths; object elements carry a
// "path" or "worktree" field.
func (e *Extractor) directQuery(ctx context.Context, db *sql.DB) ([]string, error) {
	var value []byte
	err := db.QueryRowContext(ctx,
		"SELECT value FROM ItemTable WHERE key = ?", directKey,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, rwerrors.Wrap(err, rwerrors.CategoryTool, rwerrors.SeverityWarning, "direct key lookup")
	}

	var entries []any
	if err := json.Unmarshal(value, &entries); err != nil {
		return nil, rwerrors.WrapParseFailure(err, "decode project list")
	}

	seen := make(map[string]bool)
	var paths []string
	for _, entry := range entries {
		switch v := entry.(type) {
		case string:
			appendPath(v, seen, &paths)
		case map[string]any:
			if p, ok := v["path"].(string); ok {
				appendPath(p, seen, &paths)
			} else if p, ok := v["worktree"].(string); ok {
				appendPath(p, seen, &paths)
			}
		}
	}
	return paths, nil
}

// broadQuery runs a looser lookup for project-like keys and treats each
// value as newline-delimited JSON fragments. One bad line never aborts the
// batch.
func (e *Extractor) broadQuery(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT value FROM ItemTable WHERE key LIKE '%project%' OR key LIKE '%recent%'")
	if err != nil {
		return nil, rwerrors.Wrap(err, rwerrors.CategoryTool, rwerrors.SeverityWarning, "broad key lookup")
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var paths []string
	for rows.Next() {
		var value []byte
		if err := rows.Scan(&value); err != nil {
			return nil, rwerrors.Wrap(err, rwerrors.CategoryTool, rwerrors.SeverityWarning, "scan broad result")
		}
		for _, line := range strings.Split(string(value), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			var fragment any
			if err := json.Unmarshal([]byte(line), &fragment); err != nil {
				continue // skip unparsable lines, keep the batch
			}
			collectPaths(fragment, seen, &paths)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, rwerrors.Wrap(err, rwerrors.CategoryTool, rwerrors.SeverityWarning, "iterate broad results")
	}
	return paths, nil
}

// collectPaths recursively extracts "path" and "worktree" fields from nested
// objects, and descends into a "projects" array when present.
func collectPaths(v any, seen map[string]bool, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		if p, ok := t["path"].(string); ok {
			appendPath(p, seen, out)
		}
		if p, ok := t["worktree"].(string); ok {
			appendPath(p, seen, out)
		}
		if projects, ok := t["projects"].([]any); ok {
			for _, p := range projects {
				collectPaths(p, seen, out)
			}
		}
		// Sorted keys keep extraction order stable across runs.
		keys := make([]string, 0, len(t))
		for key := range t {
			if key != "projects" {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			switch nested := t[key].(type) {
			case map[string]any, []any:
				collectPaths(nested, seen, out)
			}
		}
	case []any:
		for _, item := range t {
			collectPaths(item, seen, out)
		}
	}
}

func appendPath(p string, seen map[string]bool, out *[]string) {
	if p == "" || seen[p] {
		return
	}
	seen[p] = true
	*out = append(*out, p)
}
