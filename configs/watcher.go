package configs

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatchPolicyFile reloads path whenever it changes and hands valid policies
// to onChange until ctx is done. The parent directory is watched so that
// editors replacing the file atomically are picked up. Invalid documents are
// logged and skipped.
func WatchPolicyFile(ctx context.Context, path string, logger *logrus.Logger, onChange func(*CachePolicy)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return fmt.Errorf("resolve policy path: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
					continue
				}
				p, err := LoadPolicyFile(abs)
				if err != nil {
					if logger != nil {
						logger.WithError(err).WithField("file", abs).Warn("ignoring invalid cache policy")
					}
					continue
				}
				if logger != nil {
					logger.WithFields(logrus.Fields{"file": abs, "ttls": len(p.TTLs), "seeds": len(p.Seeds)}).Info("cache policy reloaded")
				}
				onChange(p)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if logger != nil {
					logger.WithError(err).Warn("cache policy watcher error")
				}
			}
		}
	}()
	return nil
}
