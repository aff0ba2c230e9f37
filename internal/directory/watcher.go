package directory

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"worksite/internal/logging"
)

// Watcher observes a linked filesystem root and reports when it disappears.
type Watcher struct {
	watcher *fsnotify.Watcher
	root    string
	onLost  func()
	log     *zap.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// WatchRoot starts watching root. onLost runs at most once, when root itself is
// removed or renamed.
func WatchRoot(root string, onLost func(), logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	if err := fw.Add(abs); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	w := &Watcher{
		watcher: fw,
		root:    abs,
		onLost:  onLost,
		log:     logging.OrNop(logger),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	lost := false
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if lost || !w.isRootGone(ev) {
				continue
			}
			lost = true
			w.log.Warn("linked directory removed", zap.String("root", w.root), zap.String("op", ev.Op.String()))
			if w.onLost != nil {
				w.onLost()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("directory watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) isRootGone(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return filepath.Clean(ev.Name) == w.root
}
