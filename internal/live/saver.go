package live

import (
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/tdmaps/internal/debug"
	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
)

// DefaultSaveDebounce is the quiet period before an edited document is saved
const DefaultSaveDebounce = 50 * time.Millisecond

// DocumentSaver persists an open document through the host's save path
type DocumentSaver interface {
	SaveDocument(doc Document) error
}

// FileSaver writes the document text to its path
type FileSaver struct{}

// SaveDocument implements DocumentSaver
func (FileSaver) SaveDocument(doc Document) error {
	if err := os.WriteFile(doc.Path(), []byte(doc.Text()), 0644); err != nil {
		return tderrors.NewFileError("write", doc.Path(), err)
	}
	return nil
}

// DebouncedSaver coalesces save requests into one save after a quiet period.
// A new request cancels and replaces a pending one; a save that is already
// running is never cancelled and never overlaps another.
type DebouncedSaver struct {
	saver    DocumentSaver
	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending Document
	closed  bool

	saving   atomic.Bool
	inflight sync.WaitGroup

	// Optional callback for test synchronization
	onSaveComplete func(doc Document, err error)
}

// NewDebouncedSaver creates a saver; a non-positive debounce uses DefaultSaveDebounce
func NewDebouncedSaver(saver DocumentSaver, debounce time.Duration) *DebouncedSaver {
	if debounce <= 0 {
		debounce = DefaultSaveDebounce
	}
	if saver == nil {
		saver = FileSaver{}
	}
	return &DebouncedSaver{saver: saver, debounce: debounce}
}

// Schedule requests a save of doc after the debounce period
func (ds *DebouncedSaver) Schedule(doc Document) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if ds.closed {
		return
	}
	ds.pending = doc
	ds.resetTimerLocked()
}

func (ds *DebouncedSaver) resetTimerLocked() {
	if ds.timer != nil && ds.timer.Stop() {
		ds.inflight.Done()
	}
	ds.inflight.Add(1)
	ds.timer = time.AfterFunc(ds.debounce, func() {
		defer ds.inflight.Done()
		ds.performSave()
	})
}

// performSave saves the pending document. When another save is still
// running the request is rescheduled rather than dropped.
func (ds *DebouncedSaver) performSave() {
	if !ds.saving.CompareAndSwap(false, true) {
		ds.mu.Lock()
		if !ds.closed && ds.pending != nil {
			ds.resetTimerLocked()
		}
		ds.mu.Unlock()
		debug.LogLive("save in progress, rescheduled\n")
		return
	}
	defer ds.saving.Store(false)

	ds.mu.Lock()
	doc := ds.pending
	ds.pending = nil
	callback := ds.onSaveComplete
	ds.mu.Unlock()

	if doc == nil {
		return
	}

	err := ds.saver.SaveDocument(doc)
	if err != nil {
		log.Printf("Warning: background save of %s failed: %v", doc.Path(), err)
	} else {
		debug.LogLive("saved %s\n", doc.Path())
	}
	if callback != nil {
		callback(doc, err)
	}
}

// Flush saves a pending document now instead of waiting for the timer
func (ds *DebouncedSaver) Flush() {
	ds.mu.Lock()
	if ds.timer != nil && ds.timer.Stop() {
		ds.inflight.Done()
	}
	ds.mu.Unlock()
	ds.performSave()
}

// Pending reports whether a save is waiting for its timer
func (ds *DebouncedSaver) Pending() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.pending != nil
}

// Shutdown drops a pending save and waits for a running one to finish
func (ds *DebouncedSaver) Shutdown() {
	ds.mu.Lock()
	ds.closed = true
	ds.pending = nil
	if ds.timer != nil && ds.timer.Stop() {
		ds.inflight.Done()
	}
	ds.mu.Unlock()
	ds.inflight.Wait()
}

// SetOnSaveComplete sets a callback invoked after every save attempt (for testing)
func (ds *DebouncedSaver) SetOnSaveComplete(callback func(doc Document, err error)) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.onSaveComplete = callback
}
