// Package monitor runs the single-threaded ingestion loop that turns
// fsnotify events into correlated vault changes and debounce signals.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/notesync/internal/correlate"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/watchtree"
)

// Signaler receives one signal per accepted change.
type Signaler interface {
	Signal() int64
}

// ChangeCallback is called after each accepted change with the pending
// change count.
type ChangeCallback func(ev models.RawEvent, pending int64)

// Options configures a Monitor.
type Options struct {
	Root     string
	Excluder *watchtree.Excluder
	// Window drives the reconcile tick (half the window).
	Window time.Duration
	// NewEngine builds the correlation engine around the monitor's
	// registrar. Defaults to a buffering correlator without relocation.
	NewEngine func(reg correlate.Registrar) correlate.Engine
	Signal    Signaler
	OnChange  ChangeCallback
	Logger    *slog.Logger
}

// Monitor owns the fsnotify watcher, the registrar and the correlation
// engine. All three are only touched from Run's goroutine.
type Monitor struct {
	root     string
	w        *fsnotify.Watcher
	reg      *watchtree.Registrar
	excluder *watchtree.Excluder
	engine   correlate.Engine
	signal   Signaler
	onChange ChangeCallback
	tick     time.Duration
	logger   *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates a Monitor and registers the whole tree under opts.Root.
func New(opts Options) (*Monitor, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	window := opts.Window
	if window <= 0 {
		window = correlate.DefaultWindow
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("monitor: resolve root: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("monitor: create watcher: %w", err)
	}
	reg := watchtree.NewRegistrar(w, opts.Excluder, logger)
	if err := reg.Register(root); err != nil {
		w.Close()
		return nil, fmt.Errorf("monitor: register root: %w", err)
	}

	var engine correlate.Engine
	if opts.NewEngine != nil {
		engine = opts.NewEngine(reg)
	} else {
		engine = correlate.New(correlate.Options{Window: window, Registrar: reg, Logger: logger})
	}

	return &Monitor{
		root:     root,
		w:        w,
		reg:      reg,
		excluder: opts.Excluder,
		engine:   engine,
		signal:   opts.Signal,
		onChange: opts.OnChange,
		tick:     window / 2,
		logger:   logger,
	}, nil
}

// Run processes events until ctx is cancelled or the monitor is closed.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.Close()

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	m.logger.Info("monitor: started",
		slog.String("root", m.root),
		slog.Int("directories", m.reg.Count()))

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("monitor: stopped")
			return nil

		case now := <-ticker.C:
			m.engine.Reconcile(now)

		case ev, ok := <-m.w.Events:
			if !ok {
				m.logger.Info("monitor: event queue closed")
				return nil
			}
			m.handle(ev)

		case watchErr, ok := <-m.w.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("monitor: watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (m *Monitor) handle(ev fsnotify.Event) {
	kind, ok := classify(ev.Op)
	if !ok {
		return
	}
	name := filepath.Base(ev.Name)
	if m.excluder.Match(name) {
		return
	}
	raw := models.RawEvent{
		Kind:       kind,
		Name:       name,
		Dir:        filepath.Dir(ev.Name),
		ObservedAt: time.Now(),
	}

	switch kind {
	case models.Created:
		// Watch a new directory before reading the next event so that
		// anything created inside it is not missed.
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := m.reg.Register(ev.Name); err != nil {
				m.logger.Warn("monitor: register new dir failed",
					slog.String("path", ev.Name),
					slog.String("error", err.Error()))
			}
		}
	case models.Deleted:
		m.reg.Forget(ev.Name)
	}

	m.engine.Ingest(raw)

	var pending int64
	if m.signal != nil {
		pending = m.signal.Signal()
	}
	m.logger.Info("monitor: change",
		slog.String("kind", kind.String()),
		slog.String("path", ev.Name),
		slog.Int64("pending", pending))
	if m.onChange != nil {
		m.onChange(raw, pending)
	}
}

// classify maps an fsnotify op onto the closed event kind set. A rename
// reports the old path, which from the watcher's view is a deletion.
func classify(op fsnotify.Op) (models.Kind, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return models.Created, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return models.Deleted, true
	case op.Has(fsnotify.Write):
		return models.Modified, true
	default:
		return 0, false
	}
}

// Root returns the absolute watch root.
func (m *Monitor) Root() string {
	return m.root
}

// Watched returns the number of watched directories. Safe to call from any
// goroutine.
func (m *Monitor) Watched() int {
	return m.reg.Count()
}

// Close closes the event queue and releases the engine's timers. Run
// returns once the queue is closed. Close is idempotent.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		m.engine.Close()
		m.closeErr = m.w.Close()
	})
	return m.closeErr
}
