package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"worksite/internal/logging"
)

// DefaultDebounce coalesces the burst of events a spreadsheet save produces.
const DefaultDebounce = 500 * time.Millisecond

// SourceWatcher re-runs an import whenever a local spreadsheet changes.
// It watches the parent directory because editors often replace the file.
type SourceWatcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context) error
	log      *zap.Logger
}

// NewSourceWatcher watches path and calls onChange after each debounced change.
func NewSourceWatcher(path string, debounce time.Duration, onChange func(ctx context.Context) error, logger *zap.Logger) (*SourceWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &SourceWatcher{path: abs, debounce: debounce, onChange: onChange, log: logging.Component(logger, "import-watcher")}, nil
}

// Run blocks until ctx is done.
func (w *SourceWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	var (
		mu    sync.Mutex
		timer *time.Timer
		wg    sync.WaitGroup
	)
	defer func() {
		mu.Lock()
		if timer != nil && timer.Stop() {
			wg.Done()
		}
		mu.Unlock()
		wg.Wait()
	}()
	fire := func() {
		defer wg.Done()
		if err := w.onChange(ctx); err != nil {
			w.log.Warn("re-import failed", zap.String("path", w.path), zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			mu.Lock()
			if timer != nil && timer.Stop() {
				wg.Done()
			}
			wg.Add(1)
			timer = time.AfterFunc(w.debounce, fire)
			mu.Unlock()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("import watcher error", zap.Error(err))
		}
	}
}
