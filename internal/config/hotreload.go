package config

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeHandler receives the freshly loaded config after the file changed.
type ChangeHandler func(cfg *Config)

// Watcher reloads the config file when it changes on disk. Editors often
// produce bursts of write events, so reloads are debounced.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	debounce time.Duration
	stop     chan struct{}

	mu       sync.Mutex
	handlers []ChangeHandler
}

func NewWatcher(path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     path,
		watcher:  fw,
		debounce: 300 * time.Millisecond,
	}, nil
}

// OnChange registers a handler invoked after each successful reload.
func (cw *Watcher) OnChange(h ChangeHandler) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.handlers = append(cw.handlers, h)
}

func (cw *Watcher) Start() error {
	if err := cw.watcher.Add(cw.path); err != nil {
		return err
	}
	cw.stop = make(chan struct{})
	go cw.loop()
	slog.Info("watching config file", "path", cw.path)
	return nil
}

func (cw *Watcher) Stop() {
	if cw.stop != nil {
		close(cw.stop)
	}
	cw.watcher.Close()
}

func (cw *Watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-cw.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(cw.debounce, cw.reload)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("config watch error", "error", err)
		}
	}
}

// reload parses the file again and fans the result out to handlers. A file
// that fails to parse keeps the previous config in effect.
func (cw *Watcher) reload() {
	cfg, err := Load(cw.path)
	if err != nil {
		slog.Error("config reload failed, keeping previous settings", "error", err)
		return
	}

	cw.mu.Lock()
	handlers := make([]ChangeHandler, len(cw.handlers))
	copy(handlers, cw.handlers)
	cw.mu.Unlock()

	for _, h := range handlers {
		h(cfg)
	}
	slog.Info("config reloaded", "path", cw.path)
}
