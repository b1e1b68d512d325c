// Package watcher notifies the indexer of filesystem activity under a
// project root so changes can be picked up without waiting for the next
// scheduled pass. It recursively watches every directory (fsnotify does not
// watch subtrees on its own) and debounces bursts of events — an editor
// save often produces several events for the same file — into a single
// callback.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/standardbeagle/source-fast/internal/config"
	"github.com/standardbeagle/source-fast/internal/store"
)

// Watcher wraps an fsnotify.Watcher recursively rooted at one directory,
// invoking onChange at most once per debounce window no matter how many
// filesystem events arrive during it.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	cfg      *config.Config
	debounce time.Duration
	onChange func()
	logger   *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Watcher. onChange is called from the watcher's own
// goroutine, after the debounce window following the most recent event has
// elapsed with no further events.
func New(root string, cfg *config.Config, onChange func(), logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := time.Duration(cfg.Index.WatchDebounceMs) * time.Millisecond
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	return &Watcher{
		fsw:      fsw,
		root:     root,
		cfg:      cfg,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}, nil
}

// Start adds recursive watches under root and begins processing events. It
// returns once the initial watch tree is established; event processing
// continues on a background goroutine until Stop is called or ctx is
// cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addWatches(w.root); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.run(runCtx)
	return nil
}

// Stop halts event processing and closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	err := w.fsw.Close()
	w.wg.Wait()
	return err
}

func (w *Watcher) addWatches(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != root && (filepath.Base(path) == ".git" || filepath.Base(path) == store.DirName) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil && w.logger != nil {
			w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer w.wg.Done()

	var timer *time.Timer
	var timerC <-chan time.Time

	resetDebounce := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		}
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create) != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(event.Name)
				}
			}
			resetDebounce()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}

		case <-timerC:
			timerC = nil
			if w.onChange != nil {
				w.onChange()
			}
		}
	}
}
