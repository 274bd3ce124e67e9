package pagemem

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch drops the in-memory map when the backing file is deleted out from
// under the process, so an external administrative reset takes effect
// without a restart. It blocks until ctx is cancelled.
//
// The watch is on the containing directory: the file itself may not exist
// yet, and watching the path directly would be lost on remove.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("pagemem watch: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.filePath)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("pagemem watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.filePath)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				s.logger.Info("page memory file removed externally, clearing memory", "file", s.filePath)
				s.Clear()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("page memory watcher error", "error", err)
		}
	}
}
