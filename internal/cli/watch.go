package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce is how long rapid successive changes are folded into one.
const watchDebounce = 100 * time.Millisecond

// Watcher re-runs a callback when a plan file or catalog changes.
type Watcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool // absolute file paths
	dirs     map[string]bool // absolute catalog directories; any .cue file counts
	onChange func(path string)
	logger   *slog.Logger

	mu         sync.Mutex
	lastChange time.Time
}

// NewWatcher creates a watcher over paths. Each path may be a file or a
// directory of CUE files.
func NewWatcher(paths []string, onChange func(path string), logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fsWatcher,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		onChange: onChange,
		logger:   logger,
	}
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fsWatcher.Close()
			return nil, err
		}
		if info, err := os.Stat(abs); err == nil && info.IsDir() {
			w.dirs[abs] = true
		} else {
			w.files[abs] = true
		}
	}
	return w, nil
}

// Start registers the watched directories and runs the event loop until
// ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	// Editors often replace files on save, so watch parent directories.
	added := make(map[string]bool)
	for f := range w.files {
		added[filepath.Dir(f)] = true
	}
	for d := range w.dirs {
		added[d] = true
	}
	for dir := range added {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
		w.logger.Info("watching", "dir", dir)
	}

	go w.eventLoop(ctx)
	return nil
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.accept(event, time.Now()) {
				w.onChange(event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// accept reports whether event should trigger a reload at now.
func (w *Watcher) accept(event fsnotify.Event, now time.Time) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	if !w.relevant(event.Name) {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if now.Sub(w.lastChange) < watchDebounce {
		return false
	}
	w.lastChange = now
	return true
}

func (w *Watcher) relevant(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	if w.files[abs] {
		return true
	}
	return w.dirs[filepath.Dir(abs)] && strings.EqualFold(filepath.Ext(abs), ".cue")
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
