package configwatch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Sentinel-Gate/Sentinelgate/internal/config"
	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/resource"
)

// debounceWindow collapses the burst of Write/Create events a single save
// produces (editors commonly write a temp file then rename it over the
// original) into one reload.
const debounceWindow = 500 * time.Millisecond

// LocalWatcher reloads a Registry from its backing config file whenever
// that file changes on disk.
type LocalWatcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	registry  *resource.Registry
	logger    *slog.Logger
	done      chan struct{}
}

// NewLocalWatcher watches the directory containing path (not path itself,
// so an editor's create-temp-then-rename-over-original sequence is still
// observed) and reloads registry on every change to path's basename.
func NewLocalWatcher(path string, registry *resource.Registry, logger *slog.Logger) (*LocalWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("configwatch: creating file watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("configwatch: watching directory %s: %w", dir, err)
	}

	w := &LocalWatcher{
		fsWatcher: fw,
		path:      path,
		registry:  registry,
		logger:    logger,
		done:      make(chan struct{}),
	}
	go w.run()
	logger.Info("config file watcher started", "path", path)
	return w, nil
}

func (w *LocalWatcher) run() {
	name := filepath.Base(w.path)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(debounceWindow)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.reload()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("config file watcher error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *LocalWatcher) reload() {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		w.logger.Error("config reload: read failed, keeping running config", "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error("config reload: validation failed, keeping running config", "error", err)
		return
	}
	if err := ApplyConfig(cfg, w.registry); err != nil {
		w.logger.Error("config reload: apply failed, keeping running config", "error", err)
		return
	}
	w.logger.Info("config reloaded from file", "path", w.path)
}

// Close stops the watcher goroutine and releases the fsnotify watcher. Safe
// to call more than once.
func (w *LocalWatcher) Close() error {
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return w.fsWatcher.Close()
}
