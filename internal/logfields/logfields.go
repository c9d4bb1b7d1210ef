package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyEditor     = "editor"
	KeyURI        = "uri"
	KeyPath       = "path"
	KeyStore      = "store"
	KeyCycleID    = "cycle_id"
	KeyCycleKind  = "cycle_kind"
	KeyStrategy   = "strategy"
	KeyCount      = "count"
	KeyInterval   = "interval"
	KeyDurationMS = "duration_ms"
	KeyReason     = "reason"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func Editor(name string) slog.Attr       { return slog.String(KeyEditor, name) }
func URI(u string) slog.Attr             { return slog.String(KeyURI, u) }
func Path(p string) slog.Attr            { return slog.String(KeyPath, p) }
func Store(p string) slog.Attr           { return slog.String(KeyStore, p) }
func CycleID(id string) slog.Attr        { return slog.String(KeyCycleID, id) }
func CycleKind(k string) slog.Attr       { return slog.String(KeyCycleKind, k) }
func Strategy(s string) slog.Attr        { return slog.String(KeyStrategy, s) }
func Count(n int) slog.Attr              { return slog.Int(KeyCount, n) }
func Interval(s string) slog.Attr        { return slog.String(KeyInterval, s) }
func DurationMS(ms float64) slog.Attr    { return slog.Float64(KeyDurationMS, ms) }
func Reason(r string) slog.Attr          { return slog.String(KeyReason, r) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
