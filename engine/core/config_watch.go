package core

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Editors save in bursts (truncate, write, chmod, or write-temp-and-rename);
// one reload per burst is enough.
const configReloadDelay = 100 * time.Millisecond

// ConfigWatcher reloads a config file whenever it changes on disk. The
// callback runs on the watcher goroutine.
type ConfigWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Config)

	mu    sync.Mutex
	timer *time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

// WatchConfig starts watching path. The directory is watched rather than the
// file so renames over the file are seen too. A file that fails to decode is
// logged and skipped, the running config stays in place.
func WatchConfig(path string, onReload func(*Config)) (*ConfigWatcher, error) {
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
		return nil, fmt.Errorf("failed to watch config %s: %w", path, err)
	}

	cw := &ConfigWatcher{
		path:     abs,
		watcher:  w,
		onReload: onReload,
		done:     make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.start()
	LogDebug("watching config %s", abs)
	return cw, nil
}

func (cw *ConfigWatcher) start() {
	defer cw.wg.Done()
	for {
		select {
		case e, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != cw.path {
				continue
			}
			if e.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				cw.schedule()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			LogError("config watcher: %s", err)

		case <-cw.done:
			return
		}
	}
}

func (cw *ConfigWatcher) schedule() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(configReloadDelay, cw.reload)
}

func (cw *ConfigWatcher) reload() {
	select {
	case <-cw.done:
		return
	default:
	}
	cfg, err := LoadConfig(cw.path)
	if err != nil {
		LogWarn("config reload skipped: %s", err)
		return
	}
	LogInfo("config %s reloaded", cw.path)
	cw.onReload(cfg)
}

func (cw *ConfigWatcher) Close() error {
	select {
	case <-cw.done:
		return nil
	default:
	}
	close(cw.done)
	cw.mu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()
	err := cw.watcher.Close()
	cw.wg.Wait()
	return err
}
