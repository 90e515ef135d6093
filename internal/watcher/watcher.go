// Package watcher observes project source trees and reports debounced
// change notifications. It is optional and off by default; when enabled
// it can drive rebuild-on-change.
package watcher

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/devlane/devlane/internal/telemetry"
)

// skipDirs are never watched. node_modules alone can hold tens of
// thousands of directories.
var skipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"dist":         true,
	".cache":       true,
}

// Watcher batches filesystem events per project and fires a single
// notification after the debounce window goes quiet.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	hub      *telemetry.Hub
	onChange func(projectID string)
	log      *slog.Logger

	mu     sync.Mutex
	roots  map[string]string // project root dir -> project ID
	timers map[string]*time.Timer
	closed bool

	wg sync.WaitGroup
}

// New starts a watcher. onChange runs on the watcher goroutine after each
// quiet period; it must not block for long.
func New(debounce time.Duration, hub *telemetry.Hub, onChange func(projectID string), log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	w := &Watcher{
		fs:       fsw,
		debounce: debounce,
		hub:      hub,
		onChange: onChange,
		log:      log,
		roots:    make(map[string]string),
		timers:   make(map[string]*time.Timer),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Watch registers a project tree. Every subdirectory except the skip list
// is added; fsnotify does not recurse on its own.
func (w *Watcher) Watch(projectID, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.roots[abs] = projectID
	w.mu.Unlock()

	return filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if skipDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") && path != abs {
			return filepath.SkipDir
		}
		if addErr := w.fs.Add(path); addErr != nil {
			w.log.Debug("watch add failed", "path", path, "err", addErr)
		}
		return nil
	})
}

// Close stops the watcher and waits for the event loop to exit.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if id, ok := w.projectFor(ev.Name); ok {
				w.schedule(id)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "err", err)
		}
	}
}

// projectFor maps an event path to the longest registered project root.
func (w *Watcher) projectFor(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	best, id := "", ""
	for root, projectID := range w.roots {
		if strings.HasPrefix(path, root+string(filepath.Separator)) || path == root {
			if len(root) > len(best) {
				best, id = root, projectID
			}
		}
	}
	return id, best != ""
}

func (w *Watcher) schedule(projectID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.timers[projectID]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[projectID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, projectID)
		closed := w.closed
		w.mu.Unlock()
		if closed {
			return
		}
		if w.hub != nil {
			w.hub.PushLog(telemetry.LevelInfo, "source files changed", projectID)
		}
		if w.onChange != nil {
			w.onChange(projectID)
		}
	})
}
