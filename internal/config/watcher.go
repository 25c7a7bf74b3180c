package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	path     string
	onReload func(Config, error)
	log      zerolog.Logger
	debounce time.Duration

	mu      sync.RWMutex
	current Config
	reloads atomic.Uint32
}

// NewWatcher loads path once and returns a watcher over it.
// onReload is called after every debounced change, with the error when the
// new file fails to load or validate; the previous snapshot is kept then.
func NewWatcher(path string, log zerolog.Logger, onReload func(Config, error)) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load initial config: %w", err)
	}
	if onReload == nil {
		onReload = func(Config, error) {}
	}
	return &Watcher{path: path, onReload: onReload, log: log, debounce: defaultDebounce, current: cfg}, nil
}

// Run watches until ctx is done. The parent directory is watched so
// editors that replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}
	target := filepath.Clean(w.path)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Str("path", w.path).Msg("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	n := w.reloads.Add(1)
	cfg, err := Load(w.path)
	if err != nil {
		w.log.Error().Err(err).Str("path", w.path).Uint32("count", n).Msg("config reload failed")
		w.onReload(w.Snapshot(), err)
		return
	}
	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	w.log.Info().Str("path", w.path).Uint32("count", n).Msg("config reloaded")
	w.onReload(cfg, nil)
}

// Snapshot returns the last successfully loaded config.
func (w *Watcher) Snapshot() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ReloadCount returns the number of reload attempts.
func (w *Watcher) ReloadCount() uint32 { return w.reloads.Load() }
