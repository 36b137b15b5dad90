package registry

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay debounces bursts of file events into one reload.
const reloadDelay = 500 * time.Millisecond

type watchState struct {
	watcher *fsnotify.Watcher
	dir     string
}

// Watch starts watching a catalog directory and reloads the snapshot
// whenever a definition or the index changes. Failed reloads keep the
// previous snapshot active. Watching stops when ctx is cancelled.
func (r *Registry) Watch(ctx context.Context, dir string) error {
	if r.watch != nil {
		return fmt.Errorf("registry already watching %s", r.watch.dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := watchTree(watcher, dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch catalog directory: %w", err)
	}

	r.watch = &watchState{watcher: watcher, dir: dir}
	go r.processEvents(ctx)

	r.logger.Info().Str("dir", dir).Msg("Started watching primitive catalog")
	return nil
}

// watchTree adds dir and each of its subdirectories to the watcher.
func watchTree(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// processEvents reacts to catalog file changes with a debounced
// reload.
func (r *Registry) processEvents(ctx context.Context) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			_ = r.watch.watcher.Close()
			return

		case event, ok := <-r.watch.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".yaml") && !strings.HasSuffix(event.Name, ".yml") {
				continue
			}

			r.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Catalog file changed")

			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			reloadTimer = time.AfterFunc(reloadDelay, func() {
				if err := r.LoadDir(ctx, r.watch.dir); err != nil {
					r.logger.Error().Err(err).Msg("Failed to reload catalog, keeping previous snapshot")
				}
			})

		case err, ok := <-r.watch.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
