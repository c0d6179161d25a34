package internal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/starford/notesync/internal/debounce"
	"github.com/starford/notesync/internal/gitsync"
	"github.com/starford/notesync/internal/journal"
	"github.com/starford/notesync/internal/models"
)

// syncEvents receives sync lifecycle notifications.
type syncEvents interface {
	PublishSyncStarted(id int64, changes int)
	PublishSyncFinished(rec models.SyncRecord)
}

// recorder journals and broadcasts every sync attempt made by next.
// store may be nil.
type recorder struct {
	next   debounce.Syncer
	store  journal.Store
	events syncEvents
	logger *slog.Logger
	now    func() time.Time
}

func newRecorder(next debounce.Syncer, store journal.Store, events syncEvents, logger *slog.Logger) *recorder {
	return &recorder{next: next, store: store, events: events, logger: logger, now: time.Now}
}

// Sync implements debounce.Syncer.
func (r *recorder) Sync(ctx context.Context, changes int) error {
	started := r.now().UTC()
	var id int64
	if r.store != nil {
		var err error
		if id, err = r.store.BeginSync(changes, started); err != nil {
			r.logger.Warn("journal: begin sync failed", slog.String("error", err.Error()))
		}
	}
	r.events.PublishSyncStarted(id, changes)

	syncErr := r.next.Sync(ctx, changes)

	rec := models.SyncRecord{
		ID:         id,
		StartedAt:  started,
		FinishedAt: r.now().UTC(),
		Changes:    changes,
		Status:     models.SyncOK,
	}
	if syncErr != nil {
		rec.Status = models.SyncFailed
		rec.Error = syncErr.Error()
		var stepErr *gitsync.StepError
		if errors.As(syncErr, &stepErr) {
			rec.Step = stepErr.Step
		}
	}
	if r.store != nil && id != 0 {
		if err := r.store.FinishSync(id, rec.FinishedAt, rec.Step, syncErr); err != nil {
			r.logger.Warn("journal: finish sync failed",
				slog.Int64("id", id),
				slog.String("error", err.Error()))
		}
	}
	r.events.PublishSyncFinished(rec)
	return syncErr
}

// disabledSyncer stands in for git when sync.enabled is false.
func disabledSyncer(logger *slog.Logger) debounce.Syncer {
	return debounce.SyncFunc(func(_ context.Context, changes int) error {
		logger.Info("sync: disabled, changes left unpublished", slog.Int("changes", changes))
		return nil
	})
}
