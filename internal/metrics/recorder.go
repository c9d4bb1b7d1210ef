// Package metrics defines observability hooks for the discovery engine.
// Components receive a Recorder through injection; the default NoopRecorder
// makes metrics strictly optional.
package metrics

import "time"

// Recorder defines observability hooks for scan cycles and the cache.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	IncCycle(kind string) // kind: full|lightweight
	ObserveCycleDuration(kind string, d time.Duration)
	AddDiscovered(editor string, n int)
	IncOrphanArchived()
	IncEvicted(n int)
	SetCacheSize(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are
// not configured).
type NoopRecorder struct{}

func (NoopRecorder) IncCycle(string)                          {}
func (NoopRecorder) ObserveCycleDuration(string, time.Duration) {}
func (NoopRecorder) AddDiscovered(string, int)                {}
func (NoopRecorder) IncOrphanArchived()                       {}
func (NoopRecorder) IncEvicted(int)                           {}
func (NoopRecorder) SetCacheSize(int)                         {}
