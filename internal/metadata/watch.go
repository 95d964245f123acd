package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchTypesFile reloads reg whenever the catalog file at path is written or
// replaced, until ctx is done. The parent directory is watched so editors that
// save through a rename are picked up. A catalog that fails to load is logged
// and the previous one stays active.
func WatchTypesFile(ctx context.Context, path string, reg *TypeRegistry, onReload func(error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				err := reg.ReloadFile(abs)
				if err != nil {
					slog.WarnContext(ctx, "type catalog reload failed, keeping previous", "file", abs, "err", err)
				} else {
					slog.InfoContext(ctx, "type catalog reloaded", "file", abs, "types", len(reg.All()))
				}
				if onReload != nil {
					onReload(err)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "error watching type catalog", "err", err)
			}
		}
	}()
	return nil
}
