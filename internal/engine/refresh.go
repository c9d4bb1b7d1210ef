package engine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/mfeld/recentws/internal/logfields"
)

const (
	minRefreshInterval = 30 * time.Second
	maxRefreshInterval = 300 * time.Second

	// interactionWindow is how recently the user must have acted for the
	// interval to stay pinned at the floor.
	interactionWindow = 5 * time.Minute
)

// refreshScheduler drives full and lightweight rescans on an adaptive
// one-shot timer. Intervals are recomputed per tick, so adaptation takes
// effect on the very next firing; user interaction snaps the interval back
// to the floor. Timers are cancel-and-replace, never accumulated.
type refreshScheduler struct {
	sched gocron.Scheduler
	fire  func(kind string)
	now   func() time.Time

	mu              sync.Mutex
	job             gocron.Job
	min             time.Duration
	interval        time.Duration
	lastInteraction time.Time
	stopped         bool
}

// newRefreshScheduler builds a scheduler whose floor is seed clamped into
// [30s, 300s]. seed comes from refreshIntervalSeed and is only the initial
// floor, never the ceiling.
func newRefreshScheduler(seed time.Duration, fire func(kind string)) (*refreshScheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	floor := seed
	if floor < minRefreshInterval {
		floor = minRefreshInterval
	}
	if floor > maxRefreshInterval {
		floor = maxRefreshInterval
	}

	return &refreshScheduler{
		sched: s,
		fire:  fire,
		now:   time.Now,
		min:   floor,
	}, nil
}

// start resets the interval to the floor, runs a full cycle immediately,
// and arms the first tick.
func (r *refreshScheduler) start() {
	r.mu.Lock()
	r.interval = r.min
	r.armLocked(r.interval)
	r.mu.Unlock()

	r.sched.Start()
	r.fire(cycleFull)
}

// stop cancels any pending timer.
func (r *refreshScheduler) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	if err := r.sched.Shutdown(); err != nil {
		slog.Warn("Refresh scheduler shutdown", logfields.Error(err))
	}
}

// tick adapts the interval, runs a lightweight cycle, and re-arms.
func (r *refreshScheduler) tick() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.interval = nextInterval(r.interval, r.min, r.now().Sub(r.lastInteraction) < interactionWindow)
	interval := r.interval
	r.armLocked(interval)
	r.mu.Unlock()

	slog.Debug("Refresh tick", logfields.Interval(interval.String()))
	r.fire(cycleLight)
}

// recordInteraction snaps the engine back to maximum freshness: the pending
// timer is replaced by one at the floor interval.
func (r *refreshScheduler) recordInteraction() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastInteraction = r.now()
	if r.stopped || r.interval <= r.min {
		return
	}
	r.interval = r.min
	r.armLocked(r.interval)
}

// armLocked replaces the pending one-shot job with one firing after d.
// Caller holds r.mu.
func (r *refreshScheduler) armLocked(d time.Duration) {
	if r.job != nil {
		if err := r.sched.RemoveJob(r.job.ID()); err != nil {
			slog.Debug("Stale refresh job removal", logfields.Error(err))
		}
		r.job = nil
	}

	job, err := r.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(r.now().Add(d))),
		gocron.NewTask(r.tick),
		gocron.WithName("refresh-tick"),
	)
	if err != nil {
		slog.Error("Failed to arm refresh timer", logfields.Error(err))
		return
	}
	r.job = job
}

// nextInterval computes the adaptive step: pinned to the floor while the
// user is active, otherwise grown by half up to the ceiling. The growth is
// exact (no per-step rounding) so the observable sequence from 30s is
// 30, 45, 67.5, 101.25, 151.875, 227.8125, 300.
func nextInterval(current, floor time.Duration, recentlyActive bool) time.Duration {
	if recentlyActive {
		return floor
	}
	next := current + current/2
	if next > maxRefreshInterval {
		return maxRefreshInterval
	}
	return next
}
