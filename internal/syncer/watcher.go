package syncer

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DataWatcher watches the local snapshot database for writes made by
// another process (a second instance, file-sync tooling) and triggers a
// reload callback after the writes settle.
type DataWatcher struct {
	watcher  *fsnotify.Watcher
	dbPath   string
	debounce time.Duration
	onChange func()
	logger   *log.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// NewDataWatcher creates a watcher for the database at dbPath. onChange
// is called after external writes stop for the debounce interval.
func NewDataWatcher(dbPath string, debounce time.Duration, onChange func(), logger *log.Logger) (*DataWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &DataWatcher{
		watcher:  w,
		dbPath:   dbPath,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}, nil
}

// Run watches until ctx is cancelled. The watch is on the database's
// directory so events survive the atomic rename patterns file-sync tools
// use; only events for the database file (and its WAL siblings) count.
func (w *DataWatcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.dbPath)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	defer w.watcher.Close()

	w.logger.Printf("Watching %s for external changes", dir)
	base := filepath.Base(w.dbPath)

	for {
		select {
		case <-ctx.Done():
			w.cancelTimer()
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !strings.HasPrefix(filepath.Base(event.Name), base) {
				continue
			}
			w.bump()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Printf("Watcher error: %v", err)
		}
	}
}

func (w *DataWatcher) bump() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.onChange)
}

func (w *DataWatcher) cancelTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
