// Package live mirrors the mapping document being edited so annotations
// follow keystrokes before the document is saved.
package live

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/standardbeagle/tdmaps/internal/debug"
	"github.com/standardbeagle/tdmaps/internal/mapping"
	"github.com/standardbeagle/tdmaps/pkg/pathutil"
)

// Document is an open editor buffer
type Document interface {
	Path() string
	Text() string
}

// Refresher repaints the annotated tree
type Refresher interface {
	RefreshTree()
}

type nopRefresher struct{}

func (nopRefresher) RefreshTree() {}

// Buffer is an in-memory Document
type Buffer struct {
	path string
	mu   sync.RWMutex
	text string
}

// NewBuffer returns a buffer for path holding text
func NewBuffer(path, text string) *Buffer {
	return &Buffer{path: path, text: text}
}

// Path implements Document
func (b *Buffer) Path() string { return b.path }

// Text implements Document
func (b *Buffer) Text() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.text
}

// SetText replaces the buffer content
func (b *Buffer) SetText(text string) {
	b.mu.Lock()
	b.text = text
	b.mu.Unlock()
}

// Cache holds the annotations of the last valid edit of a mapping document
type Cache struct {
	mappingDir string

	mu            sync.RWMutex
	files         *mapping.OrderedMap
	packages      *mapping.OrderedMap
	filesColor    *mapping.OrderedMap
	packagesColor *mapping.OrderedMap

	docsMu sync.Mutex
	docs   map[string]Document

	refreshMu sync.RWMutex
	refresher Refresher

	saver *DebouncedSaver
}

// NewCache creates a cache for documents under mappingDir
func NewCache(mappingDir string, saver DocumentSaver, debounce time.Duration) *Cache {
	return &Cache{
		mappingDir:    cleanPath(mappingDir),
		files:         mapping.NewOrderedMap(),
		packages:      mapping.NewOrderedMap(),
		filesColor:    mapping.NewOrderedMap(),
		packagesColor: mapping.NewOrderedMap(),
		docs:          make(map[string]Document),
		refresher:     nopRefresher{},
		saver:         NewDebouncedSaver(saver, debounce),
	}
}

func cleanPath(p string) string {
	return filepath.ToSlash(filepath.Clean(strings.ReplaceAll(p, `\`, "/")))
}

// SetRefresher installs the tree refresher
func (c *Cache) SetRefresher(r Refresher) {
	if r == nil {
		r = nopRefresher{}
	}
	c.refreshMu.Lock()
	c.refresher = r
	c.refreshMu.Unlock()
}

func (c *Cache) refresh() {
	c.refreshMu.RLock()
	r := c.refresher
	c.refreshMu.RUnlock()
	r.RefreshTree()
}

// Saver returns the debounced saver used for edited documents
func (c *Cache) Saver() *DebouncedSaver { return c.saver }

// IsMappingDocument reports whether path is a .json file under the mapping directory
func (c *Cache) IsMappingDocument(path string) bool {
	p := cleanPath(path)
	return mapping.IsMappingFile(p) && strings.HasPrefix(p, c.mappingDir+"/")
}

// Register starts tracking edits of doc. Documents outside the mapping
// directory are ignored.
func (c *Cache) Register(doc Document) bool {
	if doc == nil || !c.IsMappingDocument(doc.Path()) {
		return false
	}
	key := cleanPath(doc.Path())
	c.docsMu.Lock()
	defer c.docsMu.Unlock()
	if _, ok := c.docs[key]; ok {
		return true
	}
	c.docs[key] = doc
	debug.LogLive("registered %s\n", key)
	return true
}

// Unregister stops tracking the document at path. The live maps are
// emptied once no document is tracked.
func (c *Cache) Unregister(path string) bool {
	key := cleanPath(path)
	c.docsMu.Lock()
	defer c.docsMu.Unlock()
	if _, ok := c.docs[key]; !ok {
		return false
	}
	delete(c.docs, key)
	debug.LogLive("unregistered %s\n", key)
	if len(c.docs) == 0 {
		c.reset()
	}
	return true
}

func (c *Cache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = mapping.NewOrderedMap()
	c.packages = mapping.NewOrderedMap()
	c.filesColor = mapping.NewOrderedMap()
	c.packagesColor = mapping.NewOrderedMap()
}

// Registered reports whether the document at path is tracked
func (c *Cache) Registered(path string) bool {
	c.docsMu.Lock()
	defer c.docsMu.Unlock()
	_, ok := c.docs[cleanPath(path)]
	return ok
}

// DocumentChanged handles an edit of a tracked document. Valid content
// replaces the cache, repaints the tree and schedules a save; invalid content
// changes nothing. It reports whether the cache was updated.
func (c *Cache) DocumentChanged(doc Document) bool {
	if doc == nil || !c.Registered(doc.Path()) {
		return false
	}
	if !c.Update(doc.Text()) {
		return false
	}
	c.refresh()
	c.saver.Schedule(doc)
	return true
}

// editable is a Document whose text can be replaced
type editable interface {
	SetText(text string)
}

// Reload applies content read from disk to the tracked document at path and
// to the cache. Untracked paths are ignored.
func (c *Cache) Reload(path string, data []byte) bool {
	c.docsMu.Lock()
	doc, ok := c.docs[cleanPath(path)]
	c.docsMu.Unlock()
	if !ok {
		return false
	}
	if e, ok := doc.(editable); ok {
		e.SetText(string(data))
	}
	return c.ReloadFromFile(data)
}

// ReloadFromFile applies content read from disk after an outside change
func (c *Cache) ReloadFromFile(data []byte) bool {
	if !c.Update(string(data)) {
		return false
	}
	c.refresh()
	return true
}

// Update replaces the four live maps with the content of text, clearing
// first. Text that does not parse as a mapping document is ignored.
func (c *Cache) Update(text string) bool {
	doc, err := mapping.ParseString(text)
	if err != nil {
		debug.LogLive("keeping last valid content: %v\n", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.files = doc.Mappings.Files.Clone()
	c.packages = doc.Mappings.Packages.Clone()
	c.filesColor = doc.Mappings.FilesTextColor.Clone()
	c.packagesColor = doc.Mappings.PackagesTextColor.Clone()
	debug.LogLive("cache updated: %d files, %d packages\n", c.files.Len(), c.packages.Len())
	return true
}

// FileAnnotation returns the live annotation of a file
func (c *Cache) FileAnnotation(path string) (string, bool) {
	return c.get(func() *mapping.OrderedMap { return c.files }, path)
}

// PackageAnnotation returns the live annotation of a directory
func (c *Cache) PackageAnnotation(path string) (string, bool) {
	return c.get(func() *mapping.OrderedMap { return c.packages }, path)
}

// FileTextColor returns the live color of a file
func (c *Cache) FileTextColor(path string) (string, bool) {
	return c.get(func() *mapping.OrderedMap { return c.filesColor }, path)
}

// PackageTextColor returns the live color of a directory
func (c *Cache) PackageTextColor(path string) (string, bool) {
	return c.get(func() *mapping.OrderedMap { return c.packagesColor }, path)
}

func (c *Cache) get(pick func() *mapping.OrderedMap, path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return pick().Get(pathutil.Normalize(path))
}

// Close detaches every document and cancels a pending save
func (c *Cache) Close() {
	c.docsMu.Lock()
	c.docs = make(map[string]Document)
	c.docsMu.Unlock()
	c.reset()
	c.saver.Shutdown()
}
