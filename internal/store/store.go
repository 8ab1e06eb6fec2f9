// Package store holds the project's annotations in memory and persists them
// to the local mapping document.
package store

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/standardbeagle/tdmaps/internal/config"
	"github.com/standardbeagle/tdmaps/internal/debug"
	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
	"github.com/standardbeagle/tdmaps/internal/i18n"
	"github.com/standardbeagle/tdmaps/internal/mapping"
)

// Options locates the mapping documents of one project
type Options struct {
	Root       string // Absolute project root
	Dir        string // Mapping directory relative to Root
	LocalFile  string // Local document name inside Dir
	LegacyFile string // Legacy XML relative to Root
}

// OptionsFromConfig derives store options from a loaded config
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Root:       cfg.Project.Root,
		Dir:        cfg.Mappings.Dir,
		LocalFile:  cfg.Mappings.LocalFile,
		LegacyFile: cfg.Mappings.LegacyFile,
	}
}

func (o Options) withDefaults() Options {
	if o.Dir == "" {
		o.Dir = config.DefaultMappingDir
	}
	if o.LocalFile == "" {
		o.LocalFile = config.DefaultLocalFile
	}
	if o.LegacyFile == "" {
		o.LegacyFile = config.DefaultLegacyFile
	}
	return o
}

// Refresher is notified when stored annotations change in bulk
type Refresher interface {
	// RefreshTree repaints every annotated entry
	RefreshTree()
	// ReloadDocument forces open editors of path to re-read it from disk
	ReloadDocument(path string)
}

type nopRefresher struct{}

func (nopRefresher) RefreshTree()          {}
func (nopRefresher) ReloadDocument(string) {}

// Store is the annotation store of one project. It is safe for concurrent use.
type Store struct {
	opts Options

	mu            sync.RWMutex
	files         *mapping.OrderedMap
	packages      *mapping.OrderedMap
	fileMatch     *mapping.OrderedMap
	packageMatch  *mapping.OrderedMap
	filesColor    *mapping.OrderedMap
	packagesColor *mapping.OrderedMap

	builtinEnabled bool
	treeEnabled    bool
	language       i18n.Language
	skipped        []error
	migrated       bool

	// serializes writes of the local document
	writeMu   sync.Mutex
	lastWrite atomic.Uint64

	refreshMu sync.RWMutex
	refresher Refresher
}

// New returns an empty store. Call Load to read the mapping directory.
func New(opts Options) *Store {
	mappings := mapping.EmptyMappings()
	return &Store{
		opts:           opts.withDefaults(),
		files:          mappings.Files,
		packages:       mappings.Packages,
		fileMatch:      mappings.FileMatch,
		packageMatch:   mappings.PackageMatch,
		filesColor:     mappings.FilesTextColor,
		packagesColor:  mappings.PackagesTextColor,
		builtinEnabled: true,
		treeEnabled:    true,
		language:       i18n.English,
		refresher:      nopRefresher{},
	}
}

// Open creates a store and loads it from disk
func Open(ctx context.Context, opts Options) (*Store, error) {
	s := New(opts)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// SetRefresher installs the collaborator notified on bulk changes
func (s *Store) SetRefresher(r Refresher) {
	if r == nil {
		r = nopRefresher{}
	}
	s.refreshMu.Lock()
	s.refresher = r
	s.refreshMu.Unlock()
}

func (s *Store) getRefresher() Refresher {
	s.refreshMu.RLock()
	defer s.refreshMu.RUnlock()
	return s.refresher
}

// Root returns the absolute project root
func (s *Store) Root() string { return s.opts.Root }

// MappingDir returns the absolute mapping directory
func (s *Store) MappingDir() string {
	return filepath.Join(s.opts.Root, s.opts.Dir)
}

// LocalPath returns the absolute path of the local document
func (s *Store) LocalPath() string {
	return filepath.Join(s.MappingDir(), s.opts.LocalFile)
}

// LocalFileName returns the local document's base name
func (s *Store) LocalFileName() string { return s.opts.LocalFile }

// Skipped returns the documents that failed to load during the last Load
func (s *Store) Skipped() []error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]error(nil), s.skipped...)
}

// Migrated reports whether the last Load imported the legacy XML file
func (s *Store) Migrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.migrated
}

// Load reads the mapping directory. A missing directory is created and
// leaves the store empty, unless a legacy XML file exists at the root, in
// which case it is migrated and saved in the JSON format. Documents that
// fail to parse are logged and skipped.
func (s *Store) Load(ctx context.Context) error {
	dir := s.MappingDir()

	info, statErr := os.Stat(dir)
	if statErr != nil || !info.IsDir() {
		if migrated, err := s.tryMigrate(); migrated || err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return tderrors.NewFileError("mkdir", dir, err)
		}
		debug.LogStore("created mapping directory %s\n", dir)
		return nil
	}

	result, err := mapping.Scan(ctx, dir)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		log.Printf("Warning: failed to read mapping directory %s: %v", dir, err)
		_, migrateErr := s.tryMigrate()
		return migrateErr
	}
	s.apply(result)
	return nil
}

// Reload re-reads the mapping directory when it exists and repaints the tree
func (s *Store) Reload(ctx context.Context) error {
	dir := s.MappingDir()
	if _, err := os.Stat(dir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return tderrors.NewFileError("stat", dir, err)
	}
	result, err := mapping.Scan(ctx, dir)
	if err != nil {
		return err
	}
	s.apply(result)
	s.getRefresher().RefreshTree()
	return nil
}

func (s *Store) apply(result *mapping.ScanResult) {
	for _, skipped := range result.Skipped {
		log.Printf("Warning: skipping mapping document: %v", skipped)
	}
	merged := mapping.Merge(result.Files, s.opts.LocalFile)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(merged.Mappings)
	if merged.BuiltinMappingsEnabled != nil {
		s.builtinEnabled = *merged.BuiltinMappingsEnabled
	}
	if merged.Language != nil {
		s.language = i18n.FromCode(*merged.Language)
	}
	s.skipped = result.Skipped
	if local, ok := result.Find(s.opts.LocalFile); ok {
		s.lastWrite.Store(local.Hash)
	}
	debug.LogStore("loaded %d files, %d packages, %d file patterns, %d package patterns from %v\n",
		s.files.Len(), s.packages.Len(), s.fileMatch.Len(), s.packageMatch.Len(), merged.Sources)
}

func (s *Store) replaceLocked(m mapping.Mappings) {
	s.files = m.Files.Clone()
	s.packages = m.Packages.Clone()
	s.fileMatch = m.FileMatch.Clone()
	s.packageMatch = m.PackageMatch.Clone()
	s.filesColor = m.FilesTextColor.Clone()
	s.packagesColor = m.PackagesTextColor.Clone()
}

// tryMigrate imports the legacy XML file when present
func (s *Store) tryMigrate() (bool, error) {
	legacyPath := filepath.Join(s.opts.Root, s.opts.LegacyFile)
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, tderrors.NewFileError("read", legacyPath, err)
	}

	legacy := mapping.ParseLegacyXML(string(data))
	s.mu.Lock()
	s.files = legacy.Mappings.Files
	s.packages = legacy.Mappings.Packages
	s.fileMatch = legacy.Mappings.FileMatch
	s.packageMatch = legacy.Mappings.PackageMatch
	s.filesColor = mapping.NewOrderedMap()
	s.packagesColor = mapping.NewOrderedMap()
	if legacy.BuiltinMappingsEnabled != nil {
		s.builtinEnabled = *legacy.BuiltinMappingsEnabled
	}
	s.migrated = true
	s.mu.Unlock()

	log.Printf("Migrated legacy annotations from %s; it can be deleted", legacyPath)
	return true, s.Save()
}

// Save writes the local document and asks open editors of it to reload.
// In-memory state is kept when the write fails.
func (s *Store) Save() error {
	path, err := s.write()
	if err != nil {
		return err
	}
	// The watcher drops our own writes, so editors are told directly
	s.getRefresher().ReloadDocument(path)
	return nil
}

func (s *Store) write() (string, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	data, err := s.localDocument().Marshal()
	if err != nil {
		return "", err
	}

	dir := s.MappingDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", tderrors.NewFileError("mkdir", dir, err)
	}
	path := s.LocalPath()
	// Record before writing so a watcher seeing the event recognises it
	s.lastWrite.Store(mapping.Hash(data))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", tderrors.NewFileError("write", path, err)
	}
	debug.LogStore("saved %s (%d bytes)\n", path, len(data))
	return path, nil
}

// IsOwnWrite reports whether data is exactly the content last written or loaded
func (s *Store) IsOwnWrite(data []byte) bool {
	return s.lastWrite.Load() == mapping.Hash(data)
}

func (s *Store) localDocument() *mapping.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return mapping.NewLocal(s.builtinEnabled, s.language.Code(), s.mappingsLocked())
}

func (s *Store) mappingsLocked() mapping.Mappings {
	return mapping.Mappings{
		Files:             s.files,
		Packages:          s.packages,
		FileMatch:         s.fileMatch,
		PackageMatch:      s.packageMatch,
		FilesTextColor:    s.filesColor,
		PackagesTextColor: s.packagesColor,
	}
}

// save persists after a mutation. Failures are logged and returned.
func (s *Store) save() error {
	if err := s.Save(); err != nil {
		log.Printf("Warning: failed to save annotations: %v", err)
		return err
	}
	return nil
}

// JSONContentForExport returns the local document as pretty JSON
func (s *Store) JSONContentForExport() (string, error) {
	data, err := s.localDocument().Marshal()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
