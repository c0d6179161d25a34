package correlate

import (
	"log/slog"
	"time"

	"github.com/starford/notesync/internal/expiring"
	"github.com/starford/notesync/internal/models"
)

// CacheCorrelator remembers the directory each name was deleted from for
// one window. A creation of the same name inside that window is a move;
// any other creation is final immediately.
type CacheCorrelator struct {
	core
	recent *expiring.Map[string, string]
}

var _ Engine = (*CacheCorrelator)(nil)

// NewCache creates a CacheCorrelator whose cache TTL equals the window.
func NewCache(opts Options) *CacheCorrelator {
	c := newCore(opts)
	return &CacheCorrelator{
		core:   c,
		recent: expiring.New[string, string](c.window),
	}
}

// Ingest resolves ev against the deletion cache.
func (c *CacheCorrelator) Ingest(ev models.RawEvent) {
	switch ev.Kind {
	case models.Deleted:
		c.recent.Put(ev.Name, ev.Dir)
		c.logger.Debug("correlate: deletion remembered",
			slog.String("name", ev.Name),
			slog.String("dir", ev.Dir))
	case models.Created:
		if dir, ok := c.recent.Get(ev.Name); ok {
			c.recent.Remove(ev.Name)
			c.move(models.RawEvent{Kind: models.Deleted, Name: ev.Name, Dir: dir}, ev)
			return
		}
		c.finalizeCreated(ev)
	}
}

// Reconcile is a no-op; expiry is handled by the cache.
func (c *CacheCorrelator) Reconcile(time.Time) {}

// Pending returns the number of remembered deletions.
func (c *CacheCorrelator) Pending() int {
	return c.recent.Len()
}

// Close cancels the cache's eviction timers.
func (c *CacheCorrelator) Close() {
	c.recent.Shutdown()
}
