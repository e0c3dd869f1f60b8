package engine

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// playbookDebounce coalesces the burst of events editors emit on save.
const playbookDebounce = 200 * time.Millisecond

// WatchPlaybook reloads the playbook at path into r whenever the file changes,
// until ctx ends. A file that fails to parse keeps the previous playbook active.
func WatchPlaybook(ctx context.Context, path string, r *Recommender, logger *slog.Logger) error {
	if path == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create playbook watcher: %w", err)
	}
	// watch the directory so atomic renames are seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		var reload <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				reload = time.After(playbookDebounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("playbook watcher error", slog.Any("error", err))
			case <-reload:
				reload = nil
				playbook, err := LoadPlaybook(path)
				if err != nil {
					logger.Warn("playbook reload rejected", slog.String("path", path), slog.Any("error", err))
					continue
				}
				r.SetPlaybook(playbook)
				logger.Info("playbook reloaded", slog.String("path", path), slog.Int("rules", len(playbook.Rules)))
			}
		}
	}()
	return nil
}
