// Package watch reports when an image file on disk changes.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"dither-studio/internal/logger"
)

// debouncer coalesces rapid event bursts into a single callback per file.
type debouncer struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	delay  time.Duration
	onFire func(path string)
}

func newDebouncer(delay time.Duration, onFire func(path string)) *debouncer {
	return &debouncer{
		timers: make(map[string]*time.Timer),
		delay:  delay,
		onFire: onFire,
	}
}

func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[path]; ok {
		t.Reset(d.delay)
		return
	}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, path)
		d.mu.Unlock()
		d.onFire(path)
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
}

// Watcher watches the directory holding a file, so editors that replace the file by
// renaming a temporary over it are still seen.
type Watcher struct {
	path    string
	fs      *fsnotify.Watcher
	db      *debouncer
	logger  logger.Logger
	closeMu sync.Once
}

func New(path string, delay time.Duration, onChange func(path string), log logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(abs)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{path: abs, fs: fs, logger: log}
	w.db = newDebouncer(delay, func(p string) {
		// a burst that ended with a removal leaves nothing to load
		if _, err := os.Stat(p); err != nil {
			return
		}
		w.logger.Info("Watcher", "image changed", map[string]interface{}{"path": p})
		onChange(p)
	})
	return w, nil
}

// Run delivers change notifications until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.db.stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				w.db.trigger(w.path)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("Watcher", err, map[string]interface{}{"path": w.path})
		}
	}
}

func (w *Watcher) Close() error {
	var err error
	w.closeMu.Do(func() {
		w.db.stop()
		err = w.fs.Close()
	})
	return err
}
