// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/notesync/internal/api"
	"github.com/starford/notesync/internal/correlate"
	"github.com/starford/notesync/internal/debounce"
	"github.com/starford/notesync/internal/gitsync"
	"github.com/starford/notesync/internal/journal"
	"github.com/starford/notesync/internal/mcpserver"
	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/monitor"
	"github.com/starford/notesync/internal/sse"
	"github.com/starford/notesync/internal/storage"
	"github.com/starford/notesync/internal/watchtree"
)

// Run starts the application with the given options and blocks until
// shutdown.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{
		stdin:     os.Stdin,
		logOutput: os.Stdout,
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("vault_path", cfg.Vault.Path),
		slog.String("strategy", cfg.Watch.Strategy),
		slog.Duration("correlation_window", cfg.Watch.CorrelationWindow),
		slog.Duration("quiet_window", cfg.Watch.QuietWindow),
		slog.Bool("sync_enabled", cfg.Sync.Enabled),
		slog.String("journal_path", cfg.Journal.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// The watch root must already exist.
	info, err := os.Stat(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("watch root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch root %s: not a directory", cfg.Vault.Path)
	}

	store, err := storage.NewFS(cfg.Vault.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	syncer := app.syncer
	if syncer == nil {
		if syncer, err = newSyncer(cfg, store.Root(), logger); err != nil {
			return err
		}
	}

	// Optional SQLite journal.
	var history journal.Store
	if cfg.Journal.Enabled() {
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		defer db.Close()
		history = db
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	trigger := debounce.New(cfg.Watch.QuietWindow, newRecorder(syncer, history, broker, logger), logger)

	relocator := correlate.NewRelocator(store, cfg.Vault.DocumentExtensions, logger)
	onMove := func(m models.Move) {
		if history != nil {
			if err := history.RecordMove(m); err != nil {
				logger.Warn("journal: record move failed", slog.String("error", err.Error()))
			}
		}
		broker.PublishMove(m)
	}

	// A journal stored inside the vault must not feed its own writes back
	// into the trigger.
	exclude := cfg.Vault.Exclude
	if cfg.Journal.Enabled() {
		if marker, inside := journalMarker(store.Root(), cfg.Journal.Path); inside {
			exclude = append(slices.Clone(exclude), marker)
			logger.Info("journal: stored inside the vault, excluding its files",
				slog.String("marker", marker))
		}
	}

	mon, err := monitor.New(monitor.Options{
		Root:     store.Root(),
		Excluder: watchtree.NewExcluder(exclude),
		Window:   cfg.Watch.CorrelationWindow,
		NewEngine: func(reg correlate.Registrar) correlate.Engine {
			o := correlate.Options{
				Window:    cfg.Watch.CorrelationWindow,
				Registrar: reg,
				Relocator: relocator,
				Logger:    logger,
				OnMove:    onMove,
			}
			if cfg.Watch.Strategy == StrategyCache {
				return correlate.NewCache(o)
			}
			return correlate.New(o)
		},
		Signal: trigger,
		OnChange: func(ev models.RawEvent, pending int64) {
			broker.PublishChange(ev.Kind.String(), ev.Path(), pending)
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("init monitor: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return mon.Run(gCtx)
	})

	g.Go(func() error {
		return trigger.Run(gCtx)
	})

	var httpServer *http.Server
	if cfg.App.HTTP.Enabled {
		handler := api.NewHandler(trigger, mon, history)
		var mcpHandler http.Handler
		if cfg.App.MCP.Enabled {
			mcpHandler = mcpserver.New(trigger, mon, store, history).Handler()
		}
		httpServer = &http.Server{
			Addr:    cfg.App.HTTP.Address(),
			Handler: newHTTPHandler(handler, cfg, broker, mcpHandler),
		}

		g.Go(func() error {
			logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server error: %w", err)
			}
			return nil
		})
	}

	// Stop on signal, stdin input or context cancellation.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		var input <-chan struct{}
		if cfg.App.StopOnStdin && app.stdin != nil {
			input = watchInput(app.stdin)
			logger.Info("Press Enter to stop")
		}

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-input:
			logger.Info("Input received, initiating shutdown")
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		cancel()

		if httpServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
			}
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Stopped successfully", slog.Int64("syncs", trigger.Fires()))
	return nil
}

// newSyncer resolves git for the host and builds the orchestrator.
func newSyncer(cfg *Config, root string, logger *slog.Logger) (debounce.Syncer, error) {
	if !cfg.Sync.Enabled {
		return disabledSyncer(logger), nil
	}
	gitPath, err := cfg.Sync.GitPathFor(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	resolved, err := exec.LookPath(gitPath)
	if err != nil {
		return nil, fmt.Errorf("sync: locate git: %w", err)
	}
	return gitsync.New(gitsync.Config{
		GitPath:       resolved,
		WorkDir:       root,
		Remote:        cfg.Sync.Remote,
		Branch:        cfg.Sync.Branch,
		CommitMessage: cfg.Sync.CommitMessage,
	}, logger), nil
}

func newHTTPHandler(h *api.Handler, cfg *Config, broker *sse.Broker, mcpHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(h, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))

	if mcpHandler != nil {
		r.Group(func(r chi.Router) {
			r.Use(api.AuthMiddleware(cfg.Auth.AuthEnabled(), cfg.Auth.Token))
			r.Handle("/mcp", mcpHandler)
		})
	}
	return r
}

// journalMarker returns the exclusion marker for a journal at path when it
// lies under root. The marker is the database's base name, which also
// matches its -wal, -shm and -journal companions.
func journalMarker(root, path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Base(abs), true
}

// watchInput closes the returned channel once r yields a byte, an error or
// EOF. The reading goroutine is not stopped on shutdown.
func watchInput(r io.Reader) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		buf := make([]byte, 1)
		_, _ = r.Read(buf)
	}()
	return done
}
