package registry

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 150 * time.Millisecond

// Watch reloads the registry file whenever it changes and hands each valid
// table to onReload. A file that fails to parse is logged and skipped; the
// previous table stays in effect. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file, so editors that save
// by rename keep triggering reloads.
func Watch(ctx context.Context, path string, log *slog.Logger, onReload func(*Registry)) error {
	if log == nil {
		log = slog.Default()
	}
	path = filepath.Clean(path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	var (
		timer  *time.Timer
		fire   <-chan time.Time
		target = filepath.Base(path)
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("registry watch error", "path", path, "err", err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			r, err := Load(path)
			if err != nil {
				log.Warn("registry reload failed; keeping previous table", "path", path, "err", err)
				continue
			}
			log.Info("registry reloaded", "path", path, "modules", len(r.modules))
			onReload(r)
		}
	}
}
