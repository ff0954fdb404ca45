package logging

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher watches a single config file and calls onChange after edits settle.
// It watches the parent directory because editors usually replace files by rename.
type ConfigWatcher struct {
	watcher     *fsnotify.Watcher
	path        string
	onChange    func()
	debounceDur time.Duration
}

// NewConfigWatcher creates a watcher for path. Call Run to start it.
func NewConfigWatcher(path string, onChange func()) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, err
	}
	return &ConfigWatcher{
		watcher:     w,
		path:        abs,
		onChange:    onChange,
		debounceDur: 250 * time.Millisecond,
	}, nil
}

// Run blocks until ctx is cancelled, then closes the underlying watcher.
func (cw *ConfigWatcher) Run(ctx context.Context) error {
	defer cw.watcher.Close()
	Get(CategoryConfig).Info("watching %s for changes", cw.path)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			Get(CategoryConfig).Debug("config %s event on %s", event.Op, event.Name)
			pending = time.After(cw.debounceDur)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return nil
			}
			Get(CategoryConfig).Warn("config watcher error: %v", err)

		case <-pending:
			pending = nil
			cw.onChange()
		}
	}
}
