// Package watcher notifies when a single file changes, coalescing bursts of
// writes. The monitor uses it to follow a run's experiment.log.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/arena/internal/log"
)

// Watcher monitors one file for changes and sends notifications.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

// Config holds watcher configuration options.
type Config struct {
	Path        string
	DebounceDur time.Duration
}

// DefaultDebounce coalesces the burst of writes a trial summary produces.
const DefaultDebounce = 200 * time.Millisecond

// DefaultConfig returns the debounce used by the monitor.
func DefaultConfig(path string) Config {
	return Config{Path: path, DebounceDur: DefaultDebounce}
}

// New creates a new file watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	if cfg.DebounceDur <= 0 {
		cfg.DebounceDur = DefaultDebounce
	}
	return &Watcher{
		fsWatcher: fsw,
		path:      cfg.Path,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching the file's directory, so the file may be created
// after Start. Returns a channel that receives a signal when the file changes.
func (w *Watcher) Start() (<-chan struct{}, error) {
	dir := filepath.Dir(w.path)
	if err := w.fsWatcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching directory %s: %w", dir, err)
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources. Calling it again is a no-op.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) loop() {
	// Stopped until the first relevant event; Reset rearms it (Go 1.23 timers
	// need no draining).
	pending := time.NewTimer(w.debounce)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if w.isRelevantEvent(event) {
				pending.Reset(w.debounce)
			}

		case <-pending.C:
			select {
			case w.onChange <- struct{}{}:
			default: // a change is already queued
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatMonitor, "file watcher error", err, "path", w.path)

		case <-w.done:
			return
		}
	}
}

// isRelevantEvent reports writes to, or creation of, the watched file.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	return filepath.Base(event.Name) == filepath.Base(w.path)
}
