package pathindex

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/tdmaps/internal/debug"
	"github.com/standardbeagle/tdmaps/pkg/pathutil"
)

// DefaultWatchDebounce is used when no debounce is configured
const DefaultWatchDebounce = 200 * time.Millisecond

// Watcher keeps an Index current from file system events
type Watcher struct {
	index    *Index
	watcher  *fsnotify.Watcher
	debounce time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu       sync.Mutex
	pending  map[string]fsnotify.Op
	timer    *time.Timer
	inflight sync.WaitGroup
	stopped  bool

	onChange func(added, removed int)
}

// NewWatcher creates a watcher for ix
func NewWatcher(ix *Index, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		index:    ix,
		watcher:  fw,
		debounce: debounce,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]fsnotify.Op),
	}, nil
}

// SetOnChange is called after each batch that changed the index
func (w *Watcher) SetOnChange(fn func(added, removed int)) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

// Start adds watches for every kept directory and begins processing events
func (w *Watcher) Start() error {
	root := w.index.Root()
	if err := w.addWatches(root); err != nil {
		return fmt.Errorf("failed to add watches starting from %s: %w", root, err)
	}
	w.wg.Add(1)
	go w.processEvents()
	debug.LogIndex("path watcher started for %s\n", root)
	return nil
}

// Stop stops watching; batched events not yet applied are dropped
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.cancel()
		if closeErr := w.watcher.Close(); closeErr != nil {
			log.Printf("Error closing fsnotify watcher: %v", closeErr)
			err = closeErr
		}
		w.wg.Wait()

		w.mu.Lock()
		w.stopped = true
		if w.timer != nil && w.timer.Stop() {
			w.inflight.Done()
		}
		w.pending = make(map[string]fsnotify.Op)
		w.mu.Unlock()
		w.inflight.Wait()
	})
	return err
}

func (w *Watcher) addWatches(dir string) error {
	filter := w.index.Filter()
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if key, ok := pathutil.RelativeKey(path, w.index.Root()); ok && filter.SkipDir(key) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			log.Printf("Warning: failed to add watch for %s: %v", path, err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.queue(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Path watcher error: %v", err)
		}
	}
}

func (w *Watcher) queue(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.pending[event.Name] |= event.Op

	if w.timer != nil && w.timer.Stop() {
		w.inflight.Done()
	}
	w.inflight.Add(1)
	w.timer = time.AfterFunc(w.debounce, func() {
		defer w.inflight.Done()
		w.flush()
	})
}

// flush applies the batch: paths that no longer exist are removed, new
// directories are watched and indexed with their content
func (w *Watcher) flush() {
	w.mu.Lock()
	batch := w.pending
	w.pending = make(map[string]fsnotify.Op)
	onChange := w.onChange
	w.mu.Unlock()

	added, removed := 0, 0
	for path := range batch {
		if w.ctx.Err() != nil {
			return
		}
		key, ok := pathutil.RelativeKey(path, w.index.Root())
		if !ok || key == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			removed += w.index.Remove(key)
			continue
		}
		if !info.IsDir() {
			if w.index.Add(key, false) {
				added++
			}
			continue
		}
		if w.index.Filter().SkipDir(key) {
			continue
		}
		if err := w.addWatches(path); err != nil {
			log.Printf("Warning: failed to watch new directory %s: %v", path, err)
		}
		before := w.index.Len()
		if err := w.index.AddTree(w.ctx, key); err != nil {
			debug.LogIndex("path watcher: indexing %s: %v\n", key, err)
		}
		added += w.index.Len() - before
	}

	debug.LogIndex("path watcher: +%d -%d\n", added, removed)
	if onChange != nil && (added > 0 || removed > 0) {
		onChange(added, removed)
	}
}
