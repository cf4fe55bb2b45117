package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce batches the burst of events an editor save produces.
const DefaultWatchDebounce = 200 * time.Millisecond

// Watch reloads the config file at path whenever it is written and passes
// the result to onChange. Files that fail to load or validate go to onError
// and the previous config stays in effect. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file so that editors
// which replace the file on save are still seen.
func Watch(ctx context.Context, path string, debounce time.Duration, onChange func(*Config), onError func(error)) error {
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(debounce)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			onError(err)

		case <-pending:
			pending = nil
			cfg, err := LoadConfigFile(path)
			if err != nil {
				onError(err)
				continue
			}
			onChange(cfg)
		}
	}
}
