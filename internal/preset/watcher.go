package preset

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vk/patchgridgo/internal/ctxlog"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher observes the presets directory and reports edits after a quiet
// period, so that a burst of writes from an editor or rsync collapses
// into one reload.
type Watcher struct {
	dir      string
	debounce time.Duration
	onChange func()

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	stopped bool
}

// NewWatcher returns a watcher that invokes onChange from its own
// goroutine after changes to .hcl files under dir have settled. A zero
// debounce selects the default.
func NewWatcher(dir string, debounce time.Duration, onChange func()) *Watcher {
	if debounce == 0 {
		debounce = defaultDebounce
	}
	return &Watcher{dir: dir, debounce: debounce, onChange: onChange}
}

// Start begins watching. The directory must exist.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(w.dir); err != nil {
		fsw.Close()
		return err
	}

	w.mu.Lock()
	w.watcher = fsw
	w.mu.Unlock()

	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".hcl") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			logger.Debug("Preset file changed", "file", event.Name, "op", event.Op.String())
			w.bump()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("Preset watcher error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

// bump (re)arms the debounce timer.
func (w *Watcher) bump() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

// Stop ends watching. A pending debounce is cancelled.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	if w.timer != nil {
		w.timer.Stop()
	}
	if w.watcher != nil {
		w.watcher.Close()
	}
}
