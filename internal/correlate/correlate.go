// Package correlate turns unordered delete/create notifications into moves
// and makes a moved document's embedded assets follow it.
//
// Two strategies are provided. Correlator buffers events and pairs them by
// name on every reconciliation pass, which is insensitive to the order in
// which the host platform delivers the two halves of a move.
// CacheCorrelator remembers deletions in an expiring map and resolves a
// later creation against it; it only recognises delete-then-create.
package correlate

import (
	"log/slog"
	"os"
	"time"

	"github.com/starford/notesync/internal/models"
)

// Registrar extends watching to a newly discovered directory.
type Registrar interface {
	Register(path string) error
}

// Mover relocates the assets of a document moved from source to target.
type Mover interface {
	Relocate(source, target, name string) (models.Move, error)
}

// Engine is the contract shared by both strategies. It is driven from a
// single goroutine.
type Engine interface {
	// Ingest records ev and runs a reconciliation pass.
	Ingest(ev models.RawEvent)
	// Reconcile pairs and ages out pending events as of now.
	Reconcile(now time.Time)
	// Pending returns the number of events awaiting correlation.
	Pending() int
	// Close releases timers held by the engine.
	Close()
}

// Options configures either strategy.
type Options struct {
	// Window is the longest delay between the two halves of a move.
	Window    time.Duration
	Registrar Registrar
	Relocator Mover
	Logger    *slog.Logger
	// OnMove, if set, is called after every relocation that changed
	// directories.
	OnMove func(models.Move)
}

// DefaultWindow is used when Options.Window is not positive.
const DefaultWindow = time.Second

// core holds the finalization steps shared by both strategies.
type core struct {
	window    time.Duration
	registrar Registrar
	relocator Mover
	logger    *slog.Logger
	onMove    func(models.Move)
	now       func() time.Time
}

func newCore(opts Options) core {
	window := opts.Window
	if window <= 0 {
		window = DefaultWindow
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return core{
		window:    window,
		registrar: opts.Registrar,
		relocator: opts.Relocator,
		logger:    logger,
		onMove:    opts.OnMove,
		now:       time.Now,
	}
}

// move handles a correlated pair. Errors are logged; the caller's
// bookkeeping is unaffected.
func (c *core) move(deleted, created models.RawEvent) {
	if deleted.Dir == created.Dir {
		c.logger.Debug("correlate: replaced in place",
			slog.String("name", created.Name),
			slog.String("dir", created.Dir))
		return
	}

	c.logger.Info("correlate: move detected",
		slog.String("name", created.Name),
		slog.String("from", deleted.Dir),
		slog.String("to", created.Dir))

	if c.relocator == nil {
		return
	}
	mv, err := c.relocator.Relocate(deleted.Dir, created.Dir, created.Name)
	if err != nil {
		c.logger.Warn("correlate: relocation aborted",
			slog.String("name", created.Name),
			slog.String("error", err.Error()))
		return
	}
	mv.At = c.now()
	if c.onMove != nil {
		c.onMove(mv)
	}
}

// finalizeCreated handles an unpaired creation. Directories are registered for
// watching before this returns.
func (c *core) finalizeCreated(ev models.RawEvent) {
	path := ev.Path()
	info, err := os.Stat(path)
	if err != nil {
		c.logger.Debug("correlate: created entry vanished",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	if !info.IsDir() {
		c.logger.Info("correlate: new file", slog.String("path", path))
		return
	}
	c.logger.Info("correlate: new directory", slog.String("path", path))
	if c.registrar == nil {
		return
	}
	if err := c.registrar.Register(path); err != nil {
		c.logger.Warn("correlate: register new directory failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

func (c *core) finalizeDeleted(ev models.RawEvent) {
	c.logger.Info("correlate: deleted", slog.String("path", ev.Path()))
}
