// Package builtin resolves annotations from the bundled framework libraries
// and from libraries loaded at runtime.
package builtin

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/standardbeagle/tdmaps/internal/debug"
	"github.com/standardbeagle/tdmaps/internal/mapping"
	"github.com/standardbeagle/tdmaps/internal/pattern"
)

//go:embed libraries/*.json
var libraryFS embed.FS

// defaultLibraries are loaded in this order; lookups follow it
var defaultLibraries = []struct {
	key  string
	file string
}{
	{"spring-boot", "libraries/spring-boot-common.json"},
	{"apache", "libraries/apache-commons.json"},
	{"mybatis", "libraries/mybatis-common.json"},
}

// ErrEmptyLibrary is returned for a library without files, packages or package patterns
var ErrEmptyLibrary = errors.New("mapping library has no content")

// Library is one mapping library document
type Library struct {
	Name        string           `json:"name"`
	Version     string           `json:"version,omitempty"`
	Description string           `json:"description,omitempty"`
	Author      string           `json:"author,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	LastUpdated string           `json:"lastUpdated,omitempty"`
	Mappings    mapping.Mappings `json:"mappings"`
}

// Hit is an annotation found in a library
type Hit struct {
	Library string // Key the library was registered under
	Key     string // Exact name or pattern that matched
	Text    string
}

type entry struct {
	key     string
	builtin bool
	lib     *Library
}

// Resolver aggregates libraries. The first library whose map contains a key wins.
type Resolver struct {
	mu        sync.RWMutex
	libraries []entry
	enabled   bool
}

// New returns a resolver; the bundled libraries are loaded when enabled
func New(enabled bool) *Resolver {
	r := &Resolver{enabled: enabled}
	if enabled {
		r.loadDefaults()
	}
	return r
}

func (r *Resolver) loadDefaults() {
	for _, d := range defaultLibraries {
		data, err := libraryFS.ReadFile(d.file)
		if err != nil {
			log.Printf("Warning: missing builtin library %s: %v", d.file, err)
			continue
		}
		lib, err := parseLibrary(data)
		if err != nil {
			log.Printf("Warning: failed to load builtin library %s: %v", d.file, err)
			continue
		}
		r.putLocked(entry{key: d.key, builtin: true, lib: lib})
	}
	debug.Log("BUILTIN", "loaded %d builtin libraries\n", len(r.libraries))
}

func parseLibrary(data []byte) (*Library, error) {
	var lib Library
	if err := json.Unmarshal(data, &lib); err != nil {
		return nil, err
	}
	return &lib, nil
}

// putLocked replaces a library with the same key in place or appends it
func (r *Resolver) putLocked(e entry) {
	for i := range r.libraries {
		if r.libraries[i].key == e.key {
			r.libraries[i] = e
			return
		}
	}
	r.libraries = append(r.libraries, e)
}

// Enabled reports whether the bundled libraries are loaded
func (r *Resolver) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// SetEnabled drops the bundled libraries when disabled and reloads them when
// enabled. Custom libraries are kept either way.
func (r *Resolver) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enabled == enabled {
		return
	}
	r.enabled = enabled

	kept := r.libraries[:0]
	for _, e := range r.libraries {
		if !e.builtin {
			kept = append(kept, e)
		}
	}
	r.libraries = kept
	if enabled {
		custom := append([]entry(nil), r.libraries...)
		r.libraries = nil
		r.loadDefaults()
		for _, e := range custom {
			r.putLocked(e)
		}
	}
}

// LoadCustomLibrary registers a library from JSON under name. The library's
// own name defaults to name.
func (r *Resolver) LoadCustomLibrary(name, content string) error {
	lib, err := parseLibrary([]byte(content))
	if err != nil {
		return fmt.Errorf("parse mapping library %s: %w", name, err)
	}
	m := lib.Mappings
	if m.Files.Len()+m.Packages.Len()+m.PackageMatch.Len() == 0 {
		return ErrEmptyLibrary
	}
	if lib.Name == "" {
		lib.Name = name
	}

	r.mu.Lock()
	r.putLocked(entry{key: name, lib: lib})
	r.mu.Unlock()
	debug.Log("BUILTIN", "loaded library %s: %d packages, %d files, %d package patterns\n",
		lib.Name, m.Packages.Len(), m.Files.Len(), m.PackageMatch.Len())
	return nil
}

// Libraries returns the libraries in lookup order
func (r *Resolver) Libraries() []*Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Library, 0, len(r.libraries))
	for _, e := range r.libraries {
		out = append(out, e.lib)
	}
	return out
}

// Library returns the library registered under key
func (r *Resolver) Library(key string) (*Library, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.libraries {
		if e.key == key {
			return e.lib, true
		}
	}
	return nil, false
}

func (r *Resolver) exact(name string, pick func(mapping.Mappings) *mapping.OrderedMap) (Hit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.libraries {
		if text, ok := pick(e.lib.Mappings).Get(name); ok {
			return Hit{Library: e.key, Key: name, Text: text}, true
		}
	}
	return Hit{}, false
}

func (r *Resolver) matching(pick func(mapping.Mappings) *mapping.OrderedMap, matches func(string) bool) (Hit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.libraries {
		var hit Hit
		found := false
		pick(e.lib.Mappings).Range(func(p, text string) bool {
			if strings.TrimSpace(text) == "" || !matches(p) {
				return true
			}
			hit, found = Hit{Library: e.key, Key: p, Text: text}, true
			return false
		})
		if found {
			return hit, true
		}
	}
	return Hit{}, false
}

func files(m mapping.Mappings) *mapping.OrderedMap        { return m.Files }
func packages(m mapping.Mappings) *mapping.OrderedMap     { return m.Packages }
func fileMatch(m mapping.Mappings) *mapping.OrderedMap    { return m.FileMatch }
func packageMatch(m mapping.Mappings) *mapping.OrderedMap { return m.PackageMatch }

// FileMapping looks up a file name in the exact file maps
func (r *Resolver) FileMapping(fileName string) (Hit, bool) {
	return r.exact(fileName, files)
}

// PackageMapping looks up a directory name in the exact package maps
func (r *Resolver) PackageMapping(name string) (Hit, bool) {
	return r.exact(name, packages)
}

// FileMatchMapping tries the file patterns against a file name
func (r *Resolver) FileMatchMapping(fileName string) (Hit, bool) {
	return r.matching(fileMatch, func(p string) bool {
		return pattern.MatchesFile(fileName, p, "")
	})
}

// PackageMatchMapping tries the package patterns against a directory path
func (r *Resolver) PackageMatchMapping(packagePath string) (Hit, bool) {
	return r.matching(packageMatch, func(p string) bool {
		return pattern.MatchesPackage(packagePath, p)
	})
}

// SmartSearch tries an exact package, then an exact file, then package patterns
func (r *Resolver) SmartSearch(name string) (Hit, bool) {
	if hit, ok := r.PackageMapping(name); ok {
		return hit, true
	}
	if hit, ok := r.FileMapping(name); ok {
		return hit, true
	}
	return r.PackageMatchMapping(name)
}

// AllMappings combines exact package and file entries; patterns are excluded
func (r *Resolver) AllMappings() *mapping.OrderedMap {
	return r.collect(packages, files)
}

// AllFileMatchPatterns combines the file patterns of every library
func (r *Resolver) AllFileMatchPatterns() *mapping.OrderedMap {
	return r.collect(fileMatch)
}

// AllPackageMatchPatterns combines the package patterns of every library
func (r *Resolver) AllPackageMatchPatterns() *mapping.OrderedMap {
	return r.collect(packageMatch)
}

func (r *Resolver) collect(picks ...func(mapping.Mappings) *mapping.OrderedMap) *mapping.OrderedMap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := mapping.NewOrderedMap()
	for _, e := range r.libraries {
		for _, pick := range picks {
			out.PutAllAbsent(pick(e.lib.Mappings))
		}
	}
	return out
}
