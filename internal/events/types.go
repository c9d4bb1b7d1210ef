package events

import "time"

// RecentsChanged signals that the recent-workspaces view was recomputed and
// consumers should redraw.
type RecentsChanged struct {
	At    time.Time
	Count int
}

// ActiveEditorChanged signals that editor resolution produced a different
// active editor than before.
type ActiveEditorChanged struct {
	Name string
}

// NoEditor signals that resolution found no usable editor. The cache is left
// at its previous state.
type NoEditor struct {
	Location string
}

// CycleFinished signals that a scan cycle reached its finalize step.
type CycleFinished struct {
	CycleID    string
	Kind       string // "full" or "lightweight"
	Duration   time.Duration
	Discovered int
}
