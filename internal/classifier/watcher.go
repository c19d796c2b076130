package classifier

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Watch reloads the handle when a new version is published under the
// artifact root. A version counts as published once its manifest exists;
// trainers write weights first and the manifest last.
//
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, h *Handle) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "classifier: create watcher")
	}
	defer w.Close()

	if err := os.MkdirAll(h.store.Root(), 0o755); err != nil {
		return eris.Wrap(err, "classifier: create artifact root")
	}
	if err := w.Add(h.store.Root()); err != nil {
		return eris.Wrap(err, "classifier: watch artifact root")
	}
	// Manifest writes land inside version subdirectories.
	if entries, err := os.ReadDir(h.store.Root()); err == nil {
		for _, e := range entries {
			if e.IsDir() {
				_ = w.Add(filepath.Join(h.store.Root(), e.Name()))
			}
		}
	}

	zap.L().Info("watching artifact root", zap.String("dir", h.store.Root()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("artifact watcher error", zap.Error(err))
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}

			if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
				_ = w.Add(ev.Name)
				// The manifest may have landed before this watch was
				// registered.
				if _, err := os.Stat(filepath.Join(ev.Name, manifestFile)); err != nil {
					continue
				}
				ev.Name = filepath.Join(ev.Name, manifestFile)
			}
			if filepath.Base(ev.Name) != manifestFile {
				continue
			}

			version := filepath.Base(filepath.Dir(ev.Name))
			if version == h.Version() {
				continue
			}

			// The weights file may still be flushing when the manifest
			// event fires; retry once before giving up.
			err := h.Load(version)
			if err != nil {
				time.Sleep(200 * time.Millisecond)
				err = h.Load(version)
			}
			if err != nil {
				zap.L().Warn("auto-reload failed",
					zap.String("version", version),
					zap.Error(err),
				)
			}
		}
	}
}
