package store

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/standardbeagle/tdmaps/internal/debug"
	"github.com/standardbeagle/tdmaps/internal/i18n"
	"github.com/standardbeagle/tdmaps/internal/mapping"
	"github.com/standardbeagle/tdmaps/internal/pattern"
	"github.com/standardbeagle/tdmaps/pkg/pathutil"
)

// Match is a pattern annotation that applied to an entry
type Match struct {
	Pattern string
	Text    string
}

// isDefaultColor reports whether color means "no override"
func isDefaultColor(color string) bool {
	c := strings.TrimSpace(color)
	return c == "" || strings.EqualFold(c, mapping.DefaultColor)
}

// keyOf returns the key of a project-relative path. Paths escaping the
// project root have none and their mutations are dropped.
func keyOf(path string) (string, bool) {
	key, ok := pathutil.Key(path)
	if !ok {
		debug.LogStore("ignoring path outside the project root: %s\n", path)
	}
	return key, ok
}

func setColor(colors *mapping.OrderedMap, key, color string) {
	if isDefaultColor(color) {
		colors.Delete(key)
		return
	}
	colors.Set(key, color)
}

// SetAnnotation stores the annotation of a file. A default or empty color
// removes any color override.
func (s *Store) SetAnnotation(path, text, color string) error {
	key, ok := keyOf(path)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.files.Set(key, text)
	setColor(s.filesColor, key, color)
	s.mu.Unlock()
	return s.save()
}

// SetAnnotationAndRefresh stores the annotation of a file and repaints the tree
func (s *Store) SetAnnotationAndRefresh(path, text, color string) error {
	err := s.SetAnnotation(path, text, color)
	s.getRefresher().RefreshTree()
	return err
}

// SetPackageAnnotation stores the annotation of a directory
func (s *Store) SetPackageAnnotation(path, text, color string) error {
	key, ok := keyOf(path)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.packages.Set(key, text)
	setColor(s.packagesColor, key, color)
	s.mu.Unlock()
	return s.save()
}

// SetPackageAnnotationAndRefresh stores the annotation of a directory and repaints the tree
func (s *Store) SetPackageAnnotationAndRefresh(path, text, color string) error {
	err := s.SetPackageAnnotation(path, text, color)
	s.getRefresher().RefreshTree()
	return err
}

// Annotation returns the exact annotation of a file
func (s *Store) Annotation(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files.Get(pathutil.Normalize(path))
}

// PackageAnnotation returns the exact annotation of a directory
func (s *Store) PackageAnnotation(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.packages.Get(pathutil.Normalize(path))
}

// HasAnnotation reports whether a file has an exact annotation
func (s *Store) HasAnnotation(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.files.Has(pathutil.Normalize(path))
}

// HasPackageAnnotation reports whether a directory has an exact annotation
func (s *Store) HasPackageAnnotation(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.packages.Has(pathutil.Normalize(path))
}

// RemoveAnnotation deletes a file annotation and its color
func (s *Store) RemoveAnnotation(path string) error {
	key, ok := keyOf(path)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.files.Delete(key)
	s.filesColor.Delete(key)
	s.mu.Unlock()
	return s.save()
}

// RemovePackageAnnotation deletes a directory annotation and its color
func (s *Store) RemovePackageAnnotation(path string) error {
	key, ok := keyOf(path)
	if !ok {
		return nil
	}
	s.mu.Lock()
	s.packages.Delete(key)
	s.packagesColor.Delete(key)
	s.mu.Unlock()
	return s.save()
}

// FileMatchAnnotation returns the first file pattern matching fileName.
// A key equal to fileName wins outright; otherwise patterns are tried in
// document order and entries with blank text are skipped.
func (s *Store) FileMatchAnnotation(fileName, relativePath string) (Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return firstMatch(s.fileMatch, fileName, func(p string) bool {
		return pattern.MatchesFile(fileName, p, relativePath)
	})
}

// PackageMatchAnnotation returns the first package pattern matching packagePath
func (s *Store) PackageMatchAnnotation(packagePath string) (Match, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return firstMatch(s.packageMatch, packagePath, func(p string) bool {
		return pattern.MatchesPackage(packagePath, p)
	})
}

func firstMatch(patterns *mapping.OrderedMap, exact string, matches func(string) bool) (Match, bool) {
	if patterns.Len() == 0 {
		return Match{}, false
	}
	if text, ok := patterns.Get(exact); ok {
		return Match{Pattern: exact, Text: text}, true
	}
	var found Match
	var ok bool
	patterns.Range(func(p, text string) bool {
		if strings.TrimSpace(text) == "" {
			return true
		}
		if matches(p) {
			found, ok = Match{Pattern: p, Text: text}, true
			return false
		}
		return true
	})
	return found, ok
}

// SetFileMatchAnnotation stores a file pattern annotation
func (s *Store) SetFileMatchAnnotation(p, text string) error {
	s.mu.Lock()
	s.fileMatch.Set(p, text)
	s.mu.Unlock()
	return s.save()
}

// SetPackageMatchAnnotation stores a package pattern annotation
func (s *Store) SetPackageMatchAnnotation(p, text string) error {
	s.mu.Lock()
	s.packageMatch.Set(p, text)
	s.mu.Unlock()
	return s.save()
}

// RemoveFileMatchAnnotation deletes a file pattern
func (s *Store) RemoveFileMatchAnnotation(p string) error {
	s.mu.Lock()
	s.fileMatch.Delete(p)
	s.mu.Unlock()
	return s.save()
}

// RemovePackageMatchAnnotation deletes a package pattern
func (s *Store) RemovePackageMatchAnnotation(p string) error {
	s.mu.Lock()
	s.packageMatch.Delete(p)
	s.mu.Unlock()
	return s.save()
}

// SetAnnotations merges file annotations and saves once
func (s *Store) SetAnnotations(m *mapping.OrderedMap) error {
	return s.putAll(func() { s.files.PutAll(normalizedKeys(m)) })
}

// SetPackageAnnotations merges directory annotations and saves once
func (s *Store) SetPackageAnnotations(m *mapping.OrderedMap) error {
	return s.putAll(func() { s.packages.PutAll(normalizedKeys(m)) })
}

// SetFileMatchAnnotations merges file patterns and saves once
func (s *Store) SetFileMatchAnnotations(m *mapping.OrderedMap) error {
	return s.putAll(func() { s.fileMatch.PutAll(m) })
}

// SetPackageMatchAnnotations merges package patterns and saves once
func (s *Store) SetPackageMatchAnnotations(m *mapping.OrderedMap) error {
	return s.putAll(func() { s.packageMatch.PutAll(m) })
}

func (s *Store) putAll(fn func()) error {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
	return s.save()
}

func normalizedKeys(m *mapping.OrderedMap) *mapping.OrderedMap {
	out := mapping.NewOrderedMap()
	m.Range(func(k, v string) bool {
		if key, ok := keyOf(k); ok {
			out.Set(key, v)
		}
		return true
	})
	return out
}

// FileTextColor returns the color override of a file
func (s *Store) FileTextColor(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filesColor.Get(pathutil.Normalize(path))
}

// PackageTextColor returns the color override of a directory
func (s *Store) PackageTextColor(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.packagesColor.Get(pathutil.Normalize(path))
}

// SetFileTextColor stores a file color as given
func (s *Store) SetFileTextColor(path, color string) error {
	key, ok := keyOf(path)
	if !ok {
		return nil
	}
	return s.putAll(func() { s.filesColor.Set(key, color) })
}

// SetPackageTextColor stores a directory color as given
func (s *Store) SetPackageTextColor(path, color string) error {
	key, ok := keyOf(path)
	if !ok {
		return nil
	}
	return s.putAll(func() { s.packagesColor.Set(key, color) })
}

// AllAnnotations returns a copy of the file annotations
func (s *Store) AllAnnotations() *mapping.OrderedMap {
	return s.copyOf(func() *mapping.OrderedMap { return s.files })
}

// AllPackageAnnotations returns a copy of the directory annotations
func (s *Store) AllPackageAnnotations() *mapping.OrderedMap {
	return s.copyOf(func() *mapping.OrderedMap { return s.packages })
}

// AllFileMatch returns a copy of the file patterns
func (s *Store) AllFileMatch() *mapping.OrderedMap {
	return s.copyOf(func() *mapping.OrderedMap { return s.fileMatch })
}

// AllPackageMatch returns a copy of the package patterns
func (s *Store) AllPackageMatch() *mapping.OrderedMap {
	return s.copyOf(func() *mapping.OrderedMap { return s.packageMatch })
}

// AllFileTextColors returns a copy of the file colors
func (s *Store) AllFileTextColors() *mapping.OrderedMap {
	return s.copyOf(func() *mapping.OrderedMap { return s.filesColor })
}

// AllPackageTextColors returns a copy of the directory colors
func (s *Store) AllPackageTextColors() *mapping.OrderedMap {
	return s.copyOf(func() *mapping.OrderedMap { return s.packagesColor })
}

func (s *Store) copyOf(pick func() *mapping.OrderedMap) *mapping.OrderedMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pick().Clone()
}

// Mappings returns a copy of all six maps
func (s *Store) Mappings() mapping.Mappings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.mappingsLocked()
	return mapping.Mappings{
		Files:             m.Files.Clone(),
		Packages:          m.Packages.Clone(),
		FileMatch:         m.FileMatch.Clone(),
		PackageMatch:      m.PackageMatch.Clone(),
		FilesTextColor:    m.FilesTextColor.Clone(),
		PackagesTextColor: m.PackagesTextColor.Clone(),
	}
}

// ClearAllAnnotations empties every map, deletes every other document in the
// mapping directory and rewrites the empty local document, which open
// editors of it reload.
func (s *Store) ClearAllAnnotations() error {
	s.mu.Lock()
	s.replaceLocked(mapping.EmptyMappings())
	s.mu.Unlock()

	s.clearMappingDirectory()
	err := s.save()

	s.getRefresher().RefreshTree()
	return err
}

func (s *Store) clearMappingDirectory() {
	dir := s.MappingDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Warning: failed to list %s: %v", dir, err)
		}
		return
	}
	for _, e := range entries {
		if e.Name() == s.opts.LocalFile || e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to delete %s: %v", path, err)
			continue
		}
		debug.LogStore("deleted %s\n", path)
	}
}

// BuiltinMappingsEnabled reports whether the builtin library is consulted
func (s *Store) BuiltinMappingsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.builtinEnabled
}

// SetBuiltinMappingsEnabled toggles the builtin library; it saves only on change
func (s *Store) SetBuiltinMappingsEnabled(enabled bool) error {
	s.mu.Lock()
	changed := s.builtinEnabled != enabled
	s.builtinEnabled = enabled
	s.mu.Unlock()
	if !changed {
		return nil
	}
	return s.save()
}

// ProjectTreeAnnotationsEnabled reports whether annotations are shown at all
func (s *Store) ProjectTreeAnnotationsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.treeEnabled
}

// SetProjectTreeAnnotationsEnabled shows or hides all annotations. The toggle
// is session state and is not persisted.
func (s *Store) SetProjectTreeAnnotationsEnabled(enabled bool) {
	s.mu.Lock()
	s.treeEnabled = enabled
	s.mu.Unlock()
	s.getRefresher().RefreshTree()
}

// ToggleProjectTreeAnnotations flips the display toggle and returns the new state
func (s *Store) ToggleProjectTreeAnnotations() bool {
	s.mu.Lock()
	s.treeEnabled = !s.treeEnabled
	enabled := s.treeEnabled
	s.mu.Unlock()
	s.getRefresher().RefreshTree()
	return enabled
}

// Language returns the project's display language
func (s *Store) Language() i18n.Language {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.language
}

// SetLanguage changes the display language and persists it
func (s *Store) SetLanguage(lang i18n.Language) error {
	s.mu.Lock()
	s.language = i18n.FromCode(string(lang))
	s.mu.Unlock()
	return s.save()
}
