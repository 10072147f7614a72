package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of write events editors emit when
// saving a file.
const reloadDebounce = 200 * time.Millisecond

// Watcher reloads the configuration file on change and invokes a
// callback with the fresh configuration.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	log      *slog.Logger
	onReload func(Config)

	closeCh chan struct{}
}

// NewWatcher watches a config file. onReload runs on the watcher's
// goroutine after each successful reload; a reload that fails to parse
// or validate is logged and skipped, keeping the last good config live.
func NewWatcher(path string, log *slog.Logger, onReload func(Config)) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors replace files on save
	// and a direct watch dies with the old inode.
	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		watcher:  fsw,
		log:      log,
		onReload: onReload,
		closeCh:  make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	var timer *time.Timer
	target := filepath.Clean(w.path)

	for {
		select {
		case <-w.closeCh:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Warn("config reload failed, keeping previous config", "path", w.path, "error", err)
		return
	}
	w.log.Info("config reloaded", "path", w.path)
	w.onReload(cfg)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.closeCh)
	return w.watcher.Close()
}
