package live

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/tdmaps/internal/debug"
	"github.com/standardbeagle/tdmaps/internal/mapping"
)

// DefaultWatchDebounce batches bursts of writes to the same document
const DefaultWatchDebounce = 100 * time.Millisecond

// Watcher reports changes made to mapping documents outside the host
type Watcher struct {
	watcher   *fsnotify.Watcher
	dir       string
	debouncer *eventDebouncer
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once

	onChanged  func(path string, data []byte)
	onRemoved  func(path string)
	isOwnWrite func(data []byte) bool

	statsMu         sync.RWMutex
	eventsProcessed int64
	echoesSkipped   int64
	lastEventTime   time.Time
}

type watchEvent int

const (
	watchEventChange watchEvent = iota
	watchEventRemove
)

// NewWatcher creates a watcher for the *.json documents directly inside dir
func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		watcher: fw,
		dir:     dir,
		ctx:     ctx,
		cancel:  cancel,
	}
	w.debouncer = newEventDebouncer(debounce, w)
	return w, nil
}

// SetCallbacks sets the handlers for changed and removed documents
func (w *Watcher) SetCallbacks(onChanged func(path string, data []byte), onRemoved func(path string)) {
	w.onChanged = onChanged
	w.onRemoved = onRemoved
}

// SetEchoFilter skips change events whose content the host wrote itself
func (w *Watcher) SetEchoFilter(isOwnWrite func(data []byte) bool) {
	w.isOwnWrite = isOwnWrite
}

// Start begins watching
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.wg.Add(1)
	go w.processEvents()

	debug.LogLive("watching %s\n", w.dir)
	return nil
}

// Stop stops the watcher and drops events still waiting for the debounce
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		w.cancel()
		if closeErr := w.watcher.Close(); closeErr != nil {
			log.Printf("Error closing fsnotify watcher: %v", closeErr)
			err = closeErr
		}
		w.wg.Wait()
		w.debouncer.stop()
	})
	return err
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
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Mapping watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name
	if !mapping.IsMappingFile(filepath.Base(path)) || filepath.Dir(path) != filepath.Clean(w.dir) {
		return
	}
	debug.LogLive("watcher: %v %s\n", event.Op, path)

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if _, err := os.Stat(path); err != nil {
			w.debouncer.addEvent(path, watchEventRemove)
			return
		}
		w.debouncer.addEvent(path, watchEventChange)
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.debouncer.addEvent(path, watchEventChange)
	}
}

func (w *Watcher) dispatch(path string, kind watchEvent) {
	if w.ctx.Err() != nil {
		return
	}
	switch kind {
	case watchEventRemove:
		if w.onRemoved != nil {
			w.onRemoved(path)
		}
	case watchEventChange:
		data, err := os.ReadFile(path)
		if err != nil {
			debug.LogLive("watcher: cannot read %s: %v\n", path, err)
			return
		}
		if w.isOwnWrite != nil && w.isOwnWrite(data) {
			w.incrementStats(0, 1)
			return
		}
		if w.onChanged != nil {
			w.onChanged(path, data)
		}
	}
	w.incrementStats(1, 0)
}

func (w *Watcher) incrementStats(events, echoes int64) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.eventsProcessed += events
	w.echoesSkipped += echoes
	w.lastEventTime = time.Now()
}

// WatchStats contains statistics about watched documents
type WatchStats struct {
	EventsProcessed int64
	EchoesSkipped   int64
	LastEventTime   time.Time
	IsActive        bool
}

// Stats returns current statistics
func (w *Watcher) Stats() WatchStats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return WatchStats{
		EventsProcessed: w.eventsProcessed,
		EchoesSkipped:   w.echoesSkipped,
		LastEventTime:   w.lastEventTime,
		IsActive:        w.ctx.Err() == nil,
	}
}

// eventDebouncer keeps the latest event per path until a quiet period passes
type eventDebouncer struct {
	mu       sync.Mutex
	events   map[string]watchEvent
	debounce time.Duration
	timer    *time.Timer
	inflight sync.WaitGroup
	stopped  bool
	target   *Watcher
}

func newEventDebouncer(debounce time.Duration, target *Watcher) *eventDebouncer {
	return &eventDebouncer{
		events:   make(map[string]watchEvent),
		debounce: debounce,
		target:   target,
	}
}

func (d *eventDebouncer) addEvent(path string, kind watchEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.events[path] = kind

	if d.timer != nil && d.timer.Stop() {
		d.inflight.Done()
	}
	d.inflight.Add(1)
	d.timer = time.AfterFunc(d.debounce, func() {
		defer d.inflight.Done()
		d.flush()
	})
}

// flush dispatches removals before changes
func (d *eventDebouncer) flush() {
	d.mu.Lock()
	events := d.events
	d.events = make(map[string]watchEvent)
	d.mu.Unlock()

	var removes, changes []string
	for path, kind := range events {
		if kind == watchEventRemove {
			removes = append(removes, path)
		} else {
			changes = append(changes, path)
		}
	}
	for _, path := range removes {
		d.target.dispatch(path, watchEventRemove)
	}
	for _, path := range changes {
		d.target.dispatch(path, watchEventChange)
	}
}

func (d *eventDebouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	if d.timer != nil && d.timer.Stop() {
		d.inflight.Done()
	}
	d.events = make(map[string]watchEvent)
	d.mu.Unlock()
	d.inflight.Wait()
}
