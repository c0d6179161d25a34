// Package debounce coalesces bursts of change signals into a single sync
// call once the stream has been quiet for a configured window.
package debounce

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Syncer performs the downstream synchronization. changes is the number of
// accepted events folded into this call.
type Syncer interface {
	Sync(ctx context.Context, changes int) error
}

// SyncFunc adapts a function to Syncer.
type SyncFunc func(ctx context.Context, changes int) error

// Sync calls f.
func (f SyncFunc) Sync(ctx context.Context, changes int) error {
	return f(ctx, changes)
}

// Trigger counts change signals and fires the Syncer one quiet window after
// the first signal of a burst. Signals arriving during the window are
// absorbed; signals arriving while a sync runs start the next cycle.
//
// Signal, Flush and the status accessors are safe for concurrent use. Run
// must be called from exactly one goroutine.
type Trigger struct {
	quiet  time.Duration
	syncer Syncer
	logger *slog.Logger

	// wake holds at most one token; the pending counter carries the count.
	wake     chan struct{}
	pending  atomic.Int64
	forced   atomic.Bool
	inFlight atomic.Bool
	fires    atomic.Int64
	lastFire atomic.Int64 // unix nanoseconds, 0 if never fired
}

// New creates a Trigger with the given quiet window.
func New(quiet time.Duration, syncer Syncer, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		quiet:  quiet,
		syncer: syncer,
		logger: logger,
		wake:   make(chan struct{}, 1),
	}
}

// Signal records one accepted change and returns the pending count.
func (t *Trigger) Signal() int64 {
	n := t.pending.Add(1)
	t.notify()
	return n
}

// Flush requests a sync at the end of the next quiet window even if no
// change is pending.
func (t *Trigger) Flush() {
	t.forced.Store(true)
	t.notify()
}

func (t *Trigger) notify() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// Run processes signals until ctx is cancelled. A sync in progress is not
// interrupted by cancellation; Run returns after it completes.
func (t *Trigger) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.wake:
		}

		timer := time.NewTimer(t.quiet)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		// Drain before swapping: a signal landing after the drain leaves a
		// token behind and is picked up by the next iteration.
		select {
		case <-t.wake:
		default:
		}
		n := t.pending.Swap(0)
		forced := t.forced.Swap(false)
		if n == 0 && !forced {
			continue
		}
		t.fire(ctx, int(n))
	}
}

func (t *Trigger) fire(ctx context.Context, changes int) {
	t.inFlight.Store(true)
	defer t.inFlight.Store(false)
	t.lastFire.Store(time.Now().UnixNano())
	t.fires.Add(1)

	t.logger.Info("debounce: quiet window elapsed, syncing", slog.Int("changes", changes))
	start := time.Now()
	if err := t.syncer.Sync(context.WithoutCancel(ctx), changes); err != nil {
		t.logger.Error("debounce: sync failed",
			slog.Int("changes", changes),
			slog.String("error", err.Error()))
		return
	}
	t.logger.Info("debounce: sync finished",
		slog.Int("changes", changes),
		slog.Duration("took", time.Since(start)))
}

// Pending returns the number of changes not yet handed to a sync.
func (t *Trigger) Pending() int64 {
	return t.pending.Load()
}

// InFlight reports whether a sync is running.
func (t *Trigger) InFlight() bool {
	return t.inFlight.Load()
}

// Fires returns how many syncs have been started.
func (t *Trigger) Fires() int64 {
	return t.fires.Load()
}

// LastFire returns when the last sync started, or the zero time.
func (t *Trigger) LastFire() time.Time {
	ns := t.lastFire.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// QuietWindow returns the configured quiet window.
func (t *Trigger) QuietWindow() time.Duration {
	return t.quiet
}
