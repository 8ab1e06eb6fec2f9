// Package pathindex keeps a list of the project's files and directories so
// pattern annotations can be expanded without walking the tree per query.
package pathindex

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/standardbeagle/tdmaps/internal/debug"
	"github.com/standardbeagle/tdmaps/pkg/pathutil"
)

// Entry is one indexed path
type Entry struct {
	Key   string // Project-relative, "/" separated
	IsDir bool
}

// Name returns the last element of the key
func (e Entry) Name() string { return pathutil.Leaf(e.Key) }

// Options configures an Index
type Options struct {
	Root           string
	Filter         *Filter
	MaxFileCount   int // 0 means unlimited
	FollowSymlinks bool
}

// Index is a concurrent-safe set of project paths
type Index struct {
	opts Options

	mu      sync.RWMutex
	entries map[string]bool // key -> is directory
	files   int
	sorted  []Entry // nil when stale
	capped  bool
}

// New creates an empty index
func New(opts Options) *Index {
	if opts.Filter == nil {
		opts.Filter = NewFilter(nil, nil, nil)
	}
	return &Index{opts: opts, entries: make(map[string]bool)}
}

// Root returns the indexed directory
func (ix *Index) Root() string { return ix.opts.Root }

// Filter returns the path filter
func (ix *Index) Filter() *Filter { return ix.opts.Filter }

// Build replaces the index with a fresh walk of the root
func (ix *Index) Build(ctx context.Context) error {
	entries := make(map[string]bool)
	files := 0
	capped := false

	err := ix.walk(ctx, ix.opts.Root, func(key string, isDir bool) bool {
		if !isDir {
			if ix.opts.MaxFileCount > 0 && files >= ix.opts.MaxFileCount {
				capped = true
				return false
			}
			files++
		}
		entries[key] = isDir
		return true
	})
	if err != nil {
		return err
	}
	if capped {
		log.Printf("Warning: path index stopped at %d files", ix.opts.MaxFileCount)
	}

	ix.mu.Lock()
	ix.entries = entries
	ix.files = files
	ix.capped = capped
	ix.sorted = nil
	ix.mu.Unlock()

	debug.LogIndex("indexed %d entries (%d files) under %s\n", len(entries), files, ix.opts.Root)
	return nil
}

// walk visits every kept path below dir. visit returns false to stop adding
// files; directories are still visited.
func (ix *Index) walk(ctx context.Context, dir string, visit func(key string, isDir bool) bool) error {
	visited := make(map[string]bool)
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == dir {
				return err
			}
			return nil // Skip unreadable entries, continue walking
		}
		key, ok := pathutil.RelativeKey(path, ix.opts.Root)
		if !ok {
			return nil
		}

		isDir := d.IsDir()
		if d.Type()&fs.ModeSymlink != 0 {
			if !ix.opts.FollowSymlinks {
				return nil
			}
			info, statErr := os.Stat(path)
			if statErr != nil {
				return nil
			}
			isDir = info.IsDir()
		}

		if isDir {
			// Symlink cycles
			if real, evalErr := filepath.EvalSymlinks(path); evalErr == nil {
				if visited[real] {
					return filepath.SkipDir
				}
				visited[real] = true
			}
			if ix.opts.Filter.SkipDir(key) {
				return filepath.SkipDir
			}
			if key != "" {
				visit(key, true)
			}
			return nil
		}

		if ix.opts.Filter.KeepFile(key) {
			visit(key, false)
		}
		return nil
	})
}

// Add records a path, reporting whether it was new. Filtered paths are ignored.
func (ix *Index) Add(key string, isDir bool) bool {
	key = pathutil.Normalize(key)
	if key == "" {
		return false
	}
	if (isDir && ix.opts.Filter.SkipDir(key)) || (!isDir && !ix.opts.Filter.KeepFile(key)) {
		return false
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.entries[key]; ok {
		return false
	}
	if !isDir {
		if ix.opts.MaxFileCount > 0 && ix.files >= ix.opts.MaxFileCount {
			ix.capped = true
			return false
		}
		ix.files++
	}
	ix.entries[key] = isDir
	ix.sorted = nil
	return true
}

// AddTree indexes dirKey and everything below it
func (ix *Index) AddTree(ctx context.Context, dirKey string) error {
	return ix.walk(ctx, pathutil.Abs(ix.opts.Root, dirKey), func(key string, isDir bool) bool {
		ix.Add(key, isDir)
		return true
	})
}

// Remove drops key and, for a directory, everything below it.
// It returns the number of entries removed.
func (ix *Index) Remove(key string) int {
	key = pathutil.Normalize(key)
	if key == "" {
		return 0
	}
	prefix := key + "/"

	ix.mu.Lock()
	defer ix.mu.Unlock()
	removed := 0
	for k, isDir := range ix.entries {
		if k != key && !strings.HasPrefix(k, prefix) {
			continue
		}
		delete(ix.entries, k)
		if !isDir {
			ix.files--
		}
		removed++
	}
	if removed > 0 {
		ix.sorted = nil
	}
	return removed
}

// Has reports whether key is indexed
func (ix *Index) Has(key string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.entries[pathutil.Normalize(key)]
	return ok
}

// Len returns the number of indexed entries
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// Capped reports whether MaxFileCount stopped files from being indexed
func (ix *Index) Capped() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.capped
}

// Entries returns all entries sorted by key. The slice is shared; do not modify it.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	if ix.sorted != nil {
		out := ix.sorted
		ix.mu.RUnlock()
		return out
	}
	ix.mu.RUnlock()

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.sorted == nil {
		sorted := make([]Entry, 0, len(ix.entries))
		for k, isDir := range ix.entries {
			sorted = append(sorted, Entry{Key: k, IsDir: isDir})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
		ix.sorted = sorted
	}
	return ix.sorted
}

// Files returns the file entries accepted by match
func (ix *Index) Files(match func(Entry) bool) []Entry {
	return ix.collect(false, match)
}

// Dirs returns the directory entries accepted by match
func (ix *Index) Dirs(match func(Entry) bool) []Entry {
	return ix.collect(true, match)
}

func (ix *Index) collect(dirs bool, match func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range ix.Entries() {
		if e.IsDir == dirs && (match == nil || match(e)) {
			out = append(out, e)
		}
	}
	return out
}
