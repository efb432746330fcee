package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/brineport/pgwire/pkg/logger"
)

// Watcher reloads configuration from path whenever it changes on disk,
// debounced so a burst of writes (an editor save, e.g.) only triggers
// one reload.
type Watcher struct {
	path     string
	callback func(*Config)

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	stopCh  chan struct{}
}

// NewWatcher starts watching path and invokes callback with the newly
// loaded Config after every debounced change.
func NewWatcher(path string, callback func(*Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		callback: callback,
		watcher:  fsw,
		stopCh:   make(chan struct{}),
	}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	const debounce = 500 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(debounce, w.reload)
			} else {
				timer.Reset(debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("config watcher error", "err", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg, err := Load(w.path)
	if err != nil {
		logger.Warn("config reload failed", "err", err)
		return
	}
	w.callback(cfg)
}

// Stop stops watching and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}
