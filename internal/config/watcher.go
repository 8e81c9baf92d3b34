package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/bandwatch/bandwatch/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Watcher reloads configuration when the file changes on disk. Editors often
// replace the file atomically, so the parent directory is watched and events
// are filtered by file name.
type Watcher struct {
	loader   *Loader
	logger   *logging.Logger
	fsw      *fsnotify.Watcher
	debounce time.Duration
	stopOnce sync.Once
	done     chan struct{}
}

// NewWatcher creates a watcher for the loader's config path.
func NewWatcher(loader *Loader, logger *logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		loader:   loader,
		logger:   logger,
		fsw:      fsw,
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching for file changes.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.loader.path)
	if err := w.fsw.Add(dir); err != nil {
		return err
	}

	go w.loop()
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.fsw.Close()
	})
}

func (w *Watcher) loop() {
	base := filepath.Base(w.loader.path)
	var timer *time.Timer

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			// Coalesce bursts of events into one reload.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if _, err := w.loader.Reload(); err != nil {
					w.logger.Error("config reload failed", "error", err.Error())
					return
				}
				w.logger.Info("config reloaded", "path", w.loader.path)
			})
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", "error", err.Error())
		}
	}
}
