package correlate

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/notesync/internal/models"
	"github.com/starford/notesync/internal/parser"
	"github.com/starford/notesync/internal/storage"
)

// Relocator moves the assets referenced by a moved document from the
// source directory's assets folder to the target's.
type Relocator struct {
	store      storage.Provider
	extensions []string
	logger     *slog.Logger
}

var _ Mover = (*Relocator)(nil)

// NewRelocator creates a Relocator. Only documents whose extension is in
// extensions are read; an empty list accepts every file.
func NewRelocator(store storage.Provider, extensions []string, logger *slog.Logger) *Relocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relocator{store: store, extensions: extensions, logger: logger}
}

// Relocate reads target/name and moves each referenced asset from
// source/assets to target/assets, replacing files already there. A failure
// to read the document aborts the relocation; a missing or unmovable asset
// is logged and recorded in Move.Missing.
func (r *Relocator) Relocate(source, target, name string) (models.Move, error) {
	mv := models.Move{Name: name, Source: source, Target: target}

	docPath := filepath.Join(target, name)
	info, err := r.store.Stat(docPath)
	if err != nil {
		return mv, fmt.Errorf("correlate: stat moved document: %w", err)
	}
	if info.IsDir() || !r.isDocument(name) {
		return mv, nil
	}

	data, err := r.store.Read(docPath)
	if err != nil {
		return mv, fmt.Errorf("correlate: read moved document: %w", err)
	}
	assets := parser.Assets(data)
	if len(assets) == 0 {
		return mv, nil
	}

	targetAssets := filepath.Join(target, parser.AssetsDir)
	if err := r.store.MkdirAll(targetAssets); err != nil {
		return mv, fmt.Errorf("correlate: create assets dir: %w", err)
	}

	sourceAssets := filepath.Join(source, parser.AssetsDir)
	for _, asset := range assets {
		src := filepath.Join(sourceAssets, filepath.FromSlash(asset))
		dst := filepath.Join(targetAssets, filepath.FromSlash(asset))

		if _, err := r.store.Stat(src); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				r.logger.Info("correlate: asset not found at source",
					slog.String("asset", asset),
					slog.String("source", src))
			} else {
				r.logger.Warn("correlate: stat asset failed",
					slog.String("asset", asset),
					slog.String("error", err.Error()))
			}
			mv.Missing = append(mv.Missing, asset)
			continue
		}
		if err := r.store.Move(src, dst); err != nil {
			r.logger.Warn("correlate: move asset failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()))
			mv.Missing = append(mv.Missing, asset)
			continue
		}
		r.logger.Info("correlate: asset moved",
			slog.String("from", src),
			slog.String("to", dst))
		mv.Assets = append(mv.Assets, asset)
	}
	return mv, nil
}

func (r *Relocator) isDocument(name string) bool {
	if len(r.extensions) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, e := range r.extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
