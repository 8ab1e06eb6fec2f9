// Package project wires the annotation components of one project root into a
// session with a single open/close lifecycle.
package project

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/standardbeagle/tdmaps/internal/builtin"
	"github.com/standardbeagle/tdmaps/internal/community"
	"github.com/standardbeagle/tdmaps/internal/config"
	"github.com/standardbeagle/tdmaps/internal/debug"
	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
	"github.com/standardbeagle/tdmaps/internal/extract"
	"github.com/standardbeagle/tdmaps/internal/live"
	"github.com/standardbeagle/tdmaps/internal/pathindex"
	"github.com/standardbeagle/tdmaps/internal/resolve"
	"github.com/standardbeagle/tdmaps/internal/search"
	"github.com/standardbeagle/tdmaps/internal/store"
)

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("project session is closed")

// Session owns the store, the builtin libraries, the live cache and the
// watchers of one project. It is safe for concurrent use.
type Session struct {
	cfg *config.Config

	store     *store.Store
	library   *builtin.Resolver
	live      *live.Cache
	pipeline  *resolve.Pipeline
	community *community.Client
	extractor *extract.Extractor

	liveWatcher *live.Watcher

	indexOnce    sync.Once
	index        *pathindex.Index
	indexErr     error
	indexWatcher *pathindex.Watcher
	searcher     *search.Searcher

	mu        sync.Mutex
	onRefresh func()
	closed    bool
	closeOnce sync.Once
}

// Open loads the project's mapping documents and starts the mapping file
// watcher when cfg.Live.Watch is set. The path index is built on first use.
func Open(ctx context.Context, cfg *config.Config) (*Session, error) {
	if cfg == nil {
		return nil, tderrors.NewConfigError("config", "", errors.New("nil config"))
	}
	if cfg.Project.Root == "" {
		return nil, tderrors.NewConfigError("project.root", "", errors.New("project root is required"))
	}

	st, err := store.Open(ctx, store.OptionsFromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("open annotation store: %w", err)
	}

	s := &Session{
		cfg:       cfg,
		store:     st,
		library:   builtin.New(st.BuiltinMappingsEnabled()),
		community: community.New(cfg.Community),
		extractor: extract.New(extract.Options{Root: cfg.Project.Root, Exclude: extractExclusions(cfg)}),
	}
	s.live = live.NewCache(st.MappingDir(), live.FileSaver{}, time.Duration(cfg.Live.SaveDebounceMs)*time.Millisecond)
	s.live.SetRefresher(s)
	s.pipeline = resolve.New(st, s.live, s.library)
	st.SetRefresher(s)

	if cfg.Live.Watch {
		if err := s.startLiveWatcher(); err != nil {
			// Resolution still works from the loaded state
			log.Printf("Warning: mapping file watcher disabled: %v", err)
		}
	}
	debug.Log("PROJECT", "opened %s\n", cfg.Project.Root)
	return s, nil
}

// extractExclusions adds the root .gitignore to the configured excludes when
// the index honours it, so extraction skips the same generated trees
func extractExclusions(cfg *config.Config) []string {
	if !cfg.Index.RespectGitignore {
		return cfg.Exclude
	}
	gi := config.NewGitignoreParser()
	if err := gi.LoadGitignore(cfg.Project.Root); err != nil {
		debug.Log("PROJECT", "no gitignore exclusions: %v\n", err)
		return cfg.Exclude
	}
	return config.DeduplicatePatterns(append(append([]string{}, cfg.Exclude...), gi.GetExclusionPatterns()...))
}

func (s *Session) startLiveWatcher() error {
	w, err := live.NewWatcher(s.store.MappingDir(), 0)
	if err != nil {
		return err
	}
	w.SetEchoFilter(s.store.IsOwnWrite)
	w.SetCallbacks(s.mappingFileChanged, s.mappingFileRemoved)
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return err
	}
	s.liveWatcher = w
	return nil
}

func (s *Session) mappingFileChanged(path string, data []byte) {
	if err := s.store.Reload(context.Background()); err != nil {
		log.Printf("Warning: failed to reload mappings after change to %s: %v", path, err)
	}
	s.syncLibrary()
	s.live.Reload(path, data)
}

func (s *Session) mappingFileRemoved(path string) {
	if err := s.store.Reload(context.Background()); err != nil {
		log.Printf("Warning: failed to reload mappings after removal of %s: %v", path, err)
	}
	s.syncLibrary()
	s.live.Unregister(path)
}

// syncLibrary makes the bundled libraries follow the store's flag
func (s *Session) syncLibrary() {
	s.library.SetEnabled(s.store.BuiltinMappingsEnabled())
}

// Config returns the session configuration
func (s *Session) Config() *config.Config { return s.cfg }

// Root returns the absolute project root
func (s *Session) Root() string { return s.cfg.Project.Root }

// Store returns the annotation store
func (s *Session) Store() *store.Store { return s.store }

// Library returns the builtin library resolver
func (s *Session) Library() *builtin.Resolver { return s.library }

// Live returns the live edit cache
func (s *Session) Live() *live.Cache { return s.live }

// Pipeline returns the resolution pipeline
func (s *Session) Pipeline() *resolve.Pipeline { return s.pipeline }

// Community returns the community library client
func (s *Session) Community() *community.Client { return s.community }

// Extractor returns the doc comment extractor
func (s *Session) Extractor() *extract.Extractor { return s.extractor }

// OnRefresh installs a callback run whenever the annotated tree should be repainted
func (s *Session) OnRefresh(fn func()) {
	s.mu.Lock()
	s.onRefresh = fn
	s.mu.Unlock()
}

// RefreshTree implements store.Refresher and live.Refresher
func (s *Session) RefreshTree() {
	s.mu.Lock()
	fn := s.onRefresh
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ReloadDocument implements store.Refresher. An open mapping document and
// the live cache are re-read so they match what the store wrote.
func (s *Session) ReloadDocument(path string) {
	if !s.live.Registered(path) {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		debug.Log("PROJECT", "cannot reload %s: %v\n", path, err)
		return
	}
	s.live.Reload(path, data)
}

// Resolve returns the annotation for a project-relative entry
func (s *Session) Resolve(e resolve.Entry) (resolve.Result, bool) {
	return s.pipeline.Resolve(e)
}

// ResolvePath returns the annotation for an absolute path
func (s *Session) ResolvePath(absPath string, kind resolve.EntryKind) (resolve.Result, bool) {
	return s.pipeline.ResolvePath(s.Root(), absPath, kind)
}

// SetBuiltinMappingsEnabled persists the flag and loads or drops the bundled libraries
func (s *Session) SetBuiltinMappingsEnabled(enabled bool) error {
	if err := s.store.SetBuiltinMappingsEnabled(enabled); err != nil {
		return err
	}
	s.library.SetEnabled(enabled)
	return nil
}

// Import merges a mapping document into the store. It reports whether anything was imported.
func (s *Session) Import(content string) (bool, error) {
	imported, err := s.store.ImportFromMappingFormat(content)
	if err != nil {
		return false, err
	}
	s.syncLibrary()
	s.RefreshTree()
	return imported, nil
}

// OpenDocument starts tracking a mapping document being edited. The buffer
// starts with the current file content and the live cache is primed from it.
func (s *Session) OpenDocument(path string) (*live.Buffer, error) {
	if !s.live.IsMappingDocument(path) {
		return nil, fmt.Errorf("not a mapping document: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tderrors.NewFileError("read", path, err)
	}
	buf := live.NewBuffer(path, string(data))
	s.live.Register(buf)
	s.live.Update(buf.Text())
	return buf, nil
}

// EditDocument replaces the text of an open document. Valid content updates
// the live cache and schedules a save; it reports whether the cache changed.
func (s *Session) EditDocument(buf *live.Buffer, text string) bool {
	buf.SetText(text)
	return s.live.DocumentChanged(buf)
}

// CloseDocument stops tracking a document
func (s *Session) CloseDocument(path string) {
	s.live.Unregister(path)
}

// PathIndex returns the project path index, building it on first use and
// keeping it current from file system events when cfg.Index.WatchMode is set
func (s *Session) PathIndex(ctx context.Context) (*pathindex.Index, error) {
	s.indexOnce.Do(func() {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			s.indexErr = ErrClosed
			return
		}

		ix := pathindex.New(pathindex.Options{
			Root:           s.Root(),
			Filter:         pathindex.FilterFromConfig(s.cfg),
			MaxFileCount:   s.cfg.Index.MaxFileCount,
			FollowSymlinks: s.cfg.Index.FollowSymlinks,
		})
		if err := ix.Build(ctx); err != nil {
			s.indexErr = err
			return
		}
		s.index = ix
		s.searcher = search.New(s.store, s.library, ix)

		if s.cfg.Index.WatchMode {
			w, err := pathindex.NewWatcher(ix, time.Duration(s.cfg.Index.WatchDebounceMs)*time.Millisecond)
			if err == nil {
				err = w.Start()
			}
			if err != nil {
				log.Printf("Warning: path index watcher disabled: %v", err)
				if w != nil {
					_ = w.Stop()
				}
				return
			}
			w.SetOnChange(func(added, removed int) {
				debug.LogIndex("index changed: +%d -%d\n", added, removed)
				s.RefreshTree()
			})
			s.mu.Lock()
			if s.closed {
				s.mu.Unlock()
				_ = w.Stop()
				return
			}
			s.indexWatcher = w
			s.mu.Unlock()
		}
	})
	return s.index, s.indexErr
}

// Search finds annotations matching query with the configured search options
func (s *Session) Search(ctx context.Context, query string) ([]search.Result, error) {
	return s.SearchWith(ctx, query, search.OptionsFromConfig(s.cfg))
}

// SearchWith finds annotations matching query
func (s *Session) SearchWith(ctx context.Context, query string, opts search.Options) ([]search.Result, error) {
	if _, err := s.PathIndex(ctx); err != nil {
		return nil, err
	}
	return s.searcher.Search(query, opts), nil
}

// Extract sets the doc comment of every source file under paths as its annotation
func (s *Session) Extract(ctx context.Context, paths []string, color string) (extract.Report, error) {
	return s.extractor.Run(ctx, s.store, paths, color)
}

// InstallLibrary downloads a community library into the mapping directory
func (s *Session) InstallLibrary(ctx context.Context, repoPath string) (string, error) {
	return s.community.Install(ctx, s.store, repoPath)
}

// Close stops the watchers and cancels a pending document save. It is safe
// to call more than once.
func (s *Session) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.onRefresh = nil
		iw := s.indexWatcher
		s.mu.Unlock()

		s.store.SetRefresher(nil)
		s.live.SetRefresher(nil)
		if s.liveWatcher != nil {
			if err := s.liveWatcher.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		if iw != nil {
			if err := iw.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
		s.live.Close()
		debug.Log("PROJECT", "closed %s\n", s.Root())
	})
	return tderrors.NewMultiError(errs).ErrOrNil()
}
