// Package watcher signals when usage logs change on disk.
//
// The aggregation loop polls on a timer; this watcher lets the server
// refresh early when a log file actually changes instead of waiting out
// the interval. Raw filesystem events are debounced per path and then
// coalesced into a single change signal, so a burst of appends to many
// files wakes the consumer once.
//
// Example usage:
//
//	w, err := watcher.New(watcher.Config{}, logger.Default())
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//	if err := w.Start(ctx, cfg.SessionRoots()); err != nil {
//	    return err
//	}
//	for range w.Changes() {
//	    refresh()
//	}
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bokonon23/clawdbot-cost-monitor/pkg/logger"
	"github.com/bokonon23/clawdbot-cost-monitor/pkg/pathsafe"
)

// Config contains watcher configuration.
type Config struct {
	// Debounce is how long a path must stay quiet before its events
	// collapse into one change signal. Zero means 100ms.
	Debounce time.Duration
}

// Watcher emits a coalesced signal whenever a watched log changes.
type Watcher interface {
	// Start watches the given directories recursively until ctx is
	// cancelled or the watcher is closed. Missing directories are
	// skipped; ErrNoWatchPaths is returned when none exist.
	Start(ctx context.Context, roots []string) error

	// Changes delivers one signal per coalesced burst of log changes.
	// Signals arriving while the consumer is busy are dropped, never
	// queued.
	Changes() <-chan struct{}

	// Close releases the underlying filesystem watcher.
	Close() error
}

// watcher implements the Watcher interface using fsnotify.
type watcher struct {
	fsw     *fsnotify.Watcher
	logger  logger.Logger
	config  Config
	changes chan struct{}

	mu      sync.Mutex
	running bool
	closed  bool

	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
}

// New creates a log change watcher.
func New(cfg Config, log logger.Logger) (Watcher, error) {
	if cfg.Debounce == 0 {
		cfg.Debounce = 100 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &watcher{
		fsw:            fsw,
		logger:         log,
		config:         cfg,
		changes:        make(chan struct{}, 1),
		debounceTimers: make(map[string]*time.Timer),
	}, nil
}

// Start implements Watcher.Start.
func (w *watcher) Start(ctx context.Context, roots []string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWatcherClosed
	}
	if w.running {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.running = true
	w.mu.Unlock()

	watched := 0
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			w.logger.Warn("watch path unavailable, skipping", "path", root, "error", err)
			continue
		}
		if err := w.addRecursive(root); err != nil {
			w.logger.Warn("failed to watch path", "path", root, "error", err)
			continue
		}
		watched++
	}

	if watched == 0 {
		return ErrNoWatchPaths
	}

	w.logger.Info("log watcher started", "paths", watched, "debounce", w.config.Debounce)

	go w.processEvents(ctx)
	return nil
}

// Changes implements Watcher.Changes.
func (w *watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close implements Watcher.Close.
func (w *watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.running = false

	w.debounceMu.Lock()
	for _, timer := range w.debounceTimers {
		timer.Stop()
	}
	w.debounceTimers = nil
	w.debounceMu.Unlock()

	if err := w.fsw.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// processEvents drains fsnotify until the context ends or the watcher
// closes.
func (w *watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("filesystem watch error", "error", err)
		}
	}
}

// handleEvent filters one raw event and debounces it per path.
func (w *watcher) handleEvent(ev fsnotify.Event) {
	// New directories (e.g. a fresh agent's sessions dir) join the watch.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(ev.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", ev.Name, "error", err)
			}
			return
		}
	}

	if !strings.HasSuffix(ev.Name, pathsafe.LogExtension) {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.debounce(ev.Name)
}

// debounce restarts the quiet timer for one path; on expiry it raises
// the coalesced change signal.
func (w *watcher) debounce(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimers == nil {
		return
	}

	if timer, ok := w.debounceTimers[path]; ok {
		timer.Stop()
	}

	w.debounceTimers[path] = time.AfterFunc(w.config.Debounce, func() {
		w.debounceMu.Lock()
		if w.debounceTimers != nil {
			delete(w.debounceTimers, path)
		}
		w.debounceMu.Unlock()

		w.mu.Lock()
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}

		select {
		case w.changes <- struct{}{}:
		default:
		}
	})
}

// addRecursive watches a directory and all its subdirectories.
func (w *watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("error walking watch path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			w.logger.Warn("failed to add watch directory", "path", path, "error", addErr)
		}
		return nil
	})
}
