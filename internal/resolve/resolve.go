// Package resolve decides which annotation, if any, is shown for a project
// tree entry.
package resolve

import (
	"strings"

	"github.com/standardbeagle/tdmaps/internal/builtin"
	"github.com/standardbeagle/tdmaps/internal/debug"
	"github.com/standardbeagle/tdmaps/internal/mapping"
	"github.com/standardbeagle/tdmaps/internal/store"
	"github.com/standardbeagle/tdmaps/pkg/pathutil"
)

// EntryKind tells files and directories apart
type EntryKind int

const (
	FileEntry EntryKind = iota
	DirectoryEntry
)

func (k EntryKind) String() string {
	if k == DirectoryEntry {
		return "directory"
	}
	return "file"
}

// Source names the layer an annotation came from
type Source int

const (
	SourceNone Source = iota
	SourceLive
	SourceUserFile
	SourceUserPackage
	SourceUserFileMatch
	SourceUserPackageMatch
	SourceBuiltinFile
	SourceBuiltinPackage
	SourceBuiltinFileMatch
	SourceBuiltinPackageMatch
)

var sourceNames = map[Source]string{
	SourceNone:                "none",
	SourceLive:                "live",
	SourceUserFile:            "user-file",
	SourceUserPackage:         "user-package",
	SourceUserFileMatch:       "user-file-match",
	SourceUserPackageMatch:    "user-package-match",
	SourceBuiltinFile:         "builtin-file",
	SourceBuiltinPackage:      "builtin-package",
	SourceBuiltinFileMatch:    "builtin-file-match",
	SourceBuiltinPackageMatch: "builtin-package-match",
}

func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsBuiltin reports whether the source is a bundled or loaded library
func (s Source) IsBuiltin() bool {
	return s >= SourceBuiltinFile
}

// Entry is a candidate tree entry
type Entry struct {
	Path string // Project-relative, "/" separated; "" is the root
	Name string // Leaf name; derived from Path when empty
	Kind EntryKind
}

func (e Entry) leaf() string {
	if e.Name != "" {
		return e.Name
	}
	return pathutil.Leaf(e.Path)
}

// Result is a resolved annotation. Color is empty when the default applies.
type Result struct {
	Text   string
	Color  string
	Source Source
	Key    string // Exact path, name or pattern that produced Text
}

// DisplayColor returns Color or the default annotation color
func (r Result) DisplayColor() string {
	if r.Color == "" {
		return mapping.DefaultColor
	}
	return r.Color
}

// AnnotationStore is the user annotation layer
type AnnotationStore interface {
	ProjectTreeAnnotationsEnabled() bool
	BuiltinMappingsEnabled() bool
	Annotation(path string) (string, bool)
	PackageAnnotation(path string) (string, bool)
	FileTextColor(path string) (string, bool)
	PackageTextColor(path string) (string, bool)
	FileMatchAnnotation(fileName, relativePath string) (store.Match, bool)
	PackageMatchAnnotation(packagePath string) (store.Match, bool)
}

// LiveCache is the edit-time layer consulted before the store
type LiveCache interface {
	FileAnnotation(path string) (string, bool)
	PackageAnnotation(path string) (string, bool)
	FileTextColor(path string) (string, bool)
	PackageTextColor(path string) (string, bool)
}

// Library is the builtin library layer
type Library interface {
	FileMapping(fileName string) (builtin.Hit, bool)
	PackageMapping(name string) (builtin.Hit, bool)
	FileMatchMapping(fileName string) (builtin.Hit, bool)
	PackageMatchMapping(packagePath string) (builtin.Hit, bool)
}

// Pipeline resolves entries through the live, user and builtin layers.
// live and library may be nil.
type Pipeline struct {
	store   AnnotationStore
	live    LiveCache
	library Library
}

// New creates a pipeline
func New(s AnnotationStore, live LiveCache, library Library) *Pipeline {
	return &Pipeline{store: s, live: live, library: library}
}

// skipName reports names that never carry annotations
func skipName(name string) bool {
	return name == "" || (strings.HasPrefix(name, ".") && len(name) < 3)
}

func usable(text string, ok bool) (string, bool) {
	text = strings.TrimSpace(text)
	return text, ok && text != ""
}

// Resolve returns the annotation for e; the first layer with a non-empty text wins
func (p *Pipeline) Resolve(e Entry) (Result, bool) {
	if !p.store.ProjectTreeAnnotationsEnabled() {
		return Result{}, false
	}
	name := e.leaf()
	if skipName(name) {
		return Result{}, false
	}
	key, inside := pathutil.Key(e.Path)
	if !inside {
		return Result{}, false
	}

	r, ok := p.resolve(key, name, e.Kind)
	if ok {
		debug.LogResolve("%s %q -> %q (%s)\n", e.Kind, key, r.Text, r.Source)
	}
	return r, ok
}

// ResolvePath resolves an absolute path. Paths outside root have no annotation.
func (p *Pipeline) ResolvePath(root, absPath string, kind EntryKind) (Result, bool) {
	key, ok := pathutil.RelativeKey(absPath, root)
	if !ok {
		return Result{}, false
	}
	name := pathutil.Leaf(key)
	if key == "" {
		name = pathutil.Leaf(pathutil.Normalize(absPath))
	}
	return p.Resolve(Entry{Path: key, Name: name, Kind: kind})
}

func (p *Pipeline) resolve(key, name string, kind EntryKind) (Result, bool) {
	if r, ok := p.resolveLive(key, kind); ok {
		return r, true
	}
	if r, ok := p.resolveUser(key, name, kind); ok {
		return r, true
	}
	if p.library != nil && p.store.BuiltinMappingsEnabled() {
		return p.resolveBuiltin(key, name, kind)
	}
	return Result{}, false
}

func (p *Pipeline) resolveLive(key string, kind EntryKind) (Result, bool) {
	if p.live == nil {
		return Result{}, false
	}
	lookup, colorOf := p.live.FileAnnotation, p.live.FileTextColor
	storeColor := p.store.FileTextColor
	if kind == DirectoryEntry {
		lookup, colorOf = p.live.PackageAnnotation, p.live.PackageTextColor
		storeColor = p.store.PackageTextColor
	}
	text, ok := usable(lookup(key))
	if !ok {
		return Result{}, false
	}
	color, found := colorOf(key)
	if !found {
		color, _ = storeColor(key)
	}
	return Result{Text: text, Color: color, Source: SourceLive, Key: key}, true
}

func (p *Pipeline) resolveUser(key, name string, kind EntryKind) (Result, bool) {
	if text, ok := usable(p.store.Annotation(key)); ok {
		color, _ := p.store.FileTextColor(key)
		return Result{Text: text, Color: color, Source: SourceUserFile, Key: key}, true
	}
	if text, ok := usable(p.store.PackageAnnotation(key)); ok {
		color, _ := p.store.PackageTextColor(key)
		return Result{Text: text, Color: color, Source: SourceUserPackage, Key: key}, true
	}

	if kind == FileEntry {
		m, found := p.store.FileMatchAnnotation(name, key)
		if text, ok := usable(m.Text, found); ok {
			color, has := p.store.FileTextColor(m.Pattern)
			if !has {
				color, _ = p.store.FileTextColor(name)
			}
			return Result{Text: text, Color: color, Source: SourceUserFileMatch, Key: m.Pattern}, true
		}
		return Result{}, false
	}

	m, found := p.store.PackageMatchAnnotation(packagePath(key, name))
	if text, ok := usable(m.Text, found); ok {
		color, _ := p.store.PackageTextColor(key)
		return Result{Text: text, Color: color, Source: SourceUserPackageMatch, Key: m.Pattern}, true
	}
	return Result{}, false
}

func (p *Pipeline) resolveBuiltin(key, name string, kind EntryKind) (Result, bool) {
	hit := func(h builtin.Hit, ok bool) (Result, bool) {
		text, usableText := usable(h.Text, ok)
		if !usableText {
			return Result{}, false
		}
		return Result{Text: text, Key: h.Key}, true
	}

	if r, ok := hit(p.library.FileMapping(name)); ok {
		r.Source = SourceBuiltinFile
		return r, true
	}
	if r, ok := hit(p.library.PackageMapping(name)); ok {
		r.Source = SourceBuiltinPackage
		return r, true
	}
	if kind == FileEntry {
		if r, ok := hit(p.library.FileMatchMapping(name)); ok {
			r.Source = SourceBuiltinFileMatch
			return r, true
		}
		return Result{}, false
	}
	if r, ok := hit(p.library.PackageMatchMapping(packagePath(key, name))); ok {
		r.Source = SourceBuiltinPackageMatch
		return r, true
	}
	return Result{}, false
}

func packagePath(key, name string) string {
	if key == "" {
		return name
	}
	return key
}
