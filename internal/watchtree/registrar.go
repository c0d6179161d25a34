// Package watchtree registers directory trees with a filesystem watcher.
package watchtree

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Adder is the subset of *fsnotify.Watcher the registrar needs.
type Adder interface {
	Add(name string) error
}

// Registrar subscribes directories for create/modify/delete notifications.
//
// It is not safe for concurrent use: it is only ever driven from the single
// event-processing goroutine.
type Registrar struct {
	w        Adder
	excluder *Excluder
	logger   *slog.Logger
	watched  map[string]struct{}
	count    atomic.Int64 // mirrors len(watched) for readers on other goroutines
}

// NewRegistrar creates a Registrar that adds directories to w.
func NewRegistrar(w Adder, excluder *Excluder, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{
		w:        w,
		excluder: excluder,
		logger:   logger,
		watched:  make(map[string]struct{}),
	}
}

// Register walks the tree rooted at root and watches every directory not
// matched by the exclusion set. Already watched directories are skipped.
// Errors below root are logged and the affected subtree is skipped; only a
// root that cannot be stat'ed is reported to the caller.
func (r *Registrar) Register(root string) error {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("watchtree: stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			r.logger.Warn("watchtree: walk failed, skipping",
				slog.String("path", path),
				slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && r.excluder.Match(d.Name()) {
			return filepath.SkipDir
		}
		if _, ok := r.watched[path]; ok {
			return nil
		}
		if err := r.w.Add(path); err != nil {
			r.logger.Warn("watchtree: add failed, skipping",
				slog.String("path", path),
				slog.String("error", err.Error()))
			return filepath.SkipDir
		}
		r.watched[path] = struct{}{}
		r.count.Add(1)
		r.logger.Debug("watchtree: watching", slog.String("path", path))
		return nil
	})
}

// Forget drops the bookkeeping for dir and everything below it, so that a
// directory recreated under the same name is registered again. The
// underlying watch is released by the watcher itself when the directory
// disappears.
func (r *Registrar) Forget(dir string) {
	dir = filepath.Clean(dir)
	prefix := dir + string(os.PathSeparator)
	for p := range r.watched {
		if p == dir || strings.HasPrefix(p, prefix) {
			delete(r.watched, p)
			r.count.Add(-1)
		}
	}
}

// Watched reports whether dir is registered.
func (r *Registrar) Watched(dir string) bool {
	_, ok := r.watched[filepath.Clean(dir)]
	return ok
}

// Count returns the number of registered directories. Unlike the other
// methods it may be called from any goroutine.
func (r *Registrar) Count() int {
	return int(r.count.Load())
}
