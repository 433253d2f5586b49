package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pane-renamer/internal/workerutil"
)

const defaultWatchDebounce = 100 * time.Millisecond

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(Config)

	fs     *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Watch starts watching path. The parent directory is watched so atomic
// rename saves are seen. onChange receives every config that loads and
// validates; invalid edits are logged and skipped.
func Watch(ctx context.Context, path string, onChange func(Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch config: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		path:     absPath,
		debounce: defaultWatchDebounce,
		onChange: onChange,
		fs:       fsw,
		cancel:   cancel,
	}
	workerutil.RunWithPanicRecovery(ctx, "config-watch", &w.wg, w.run, workerutil.RecoveryOptions{
		IsShutdown: func() bool { return ctx.Err() != nil },
	})
	return w, nil
}

// Close stops the watcher and waits for the loop to exit.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) run(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			slog.Warn("[WARN-CONFIG] watcher error", "error", err)
		case <-fire:
			fire = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Warn("[WARN-CONFIG] reload skipped, keeping previous config", "path", w.path, "error", err)
		return
	}
	slog.Info("[config] reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
