// Package search finds annotations by their text across the user and the
// builtin layers, expanding pattern entries into the project paths they match.
package search

import (
	"sort"
	"strings"

	"github.com/standardbeagle/tdmaps/internal/builtin"
	"github.com/standardbeagle/tdmaps/internal/config"
	"github.com/standardbeagle/tdmaps/internal/debug"
	"github.com/standardbeagle/tdmaps/internal/mapping"
	"github.com/standardbeagle/tdmaps/internal/pathindex"
	"github.com/standardbeagle/tdmaps/internal/pattern"
	"github.com/standardbeagle/tdmaps/internal/resolve"
)

// Options tunes matching
type Options struct {
	MaxResults     int // 0 means unlimited
	Fuzzy          bool
	FuzzyThreshold float64
	Stemming       bool
}

// OptionsFromConfig reads the search section of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MaxResults:     cfg.Search.MaxResults,
		Fuzzy:          cfg.Search.EnableFuzzy,
		FuzzyThreshold: cfg.Search.FuzzyThreshold,
		Stemming:       cfg.Search.EnableStemming,
	}
}

// Result is one annotated path
type Result struct {
	Path        string
	Annotation  string
	Source      resolve.Source
	IsDirectory bool
	Score       float64
	Key         string // Pattern or library key that produced the result
}

// UserAnnotations is the user layer as seen by search
type UserAnnotations interface {
	AllAnnotations() *mapping.OrderedMap
	AllPackageAnnotations() *mapping.OrderedMap
	AllFileMatch() *mapping.OrderedMap
	AllPackageMatch() *mapping.OrderedMap
	BuiltinMappingsEnabled() bool
}

// Libraries is the builtin layer as seen by search
type Libraries interface {
	Libraries() []*builtin.Library
}

// Searcher runs queries. index and libraries may be nil, in which case
// pattern and library entries yield nothing.
type Searcher struct {
	user      UserAnnotations
	libraries Libraries
	index     *pathindex.Index
}

// New creates a searcher
func New(user UserAnnotations, libraries Libraries, index *pathindex.Index) *Searcher {
	return &Searcher{user: user, libraries: libraries, index: index}
}

type collector struct {
	m       *matcher
	seen    map[string]bool
	results []Result
}

func (c *collector) add(r Result) {
	if c.seen[r.Path] {
		return
	}
	c.seen[r.Path] = true
	c.results = append(c.results, r)
}

// Search returns the paths whose annotation matches query. Every path appears
// once, under the highest priority source. Results are ordered by match
// quality band (exact text hits first), then source priority, then path
// case-insensitively. An empty query returns nothing.
func (s *Searcher) Search(query string, opts Options) []Result {
	m := newMatcher(query, opts)
	if m.query == "" {
		return nil
	}
	c := &collector{m: m, seen: make(map[string]bool)}

	s.searchExact(c, s.user.AllAnnotations(), resolve.SourceUserFile, false)
	s.searchExact(c, s.user.AllPackageAnnotations(), resolve.SourceUserPackage, true)
	s.searchFilePatterns(c, s.user.AllFileMatch(), resolve.SourceUserFileMatch)
	s.searchPackagePatterns(c, s.user.AllPackageMatch(), resolve.SourceUserPackageMatch)

	if s.libraries != nil && s.user.BuiltinMappingsEnabled() {
		libs := s.libraries.Libraries()
		for _, lib := range libs {
			s.searchLibraryFiles(c, lib.Mappings.Files)
		}
		for _, lib := range libs {
			s.searchPackagePatterns(c, lib.Mappings.Packages, resolve.SourceBuiltinPackage)
		}
		for _, lib := range libs {
			s.searchFilePatterns(c, lib.Mappings.FileMatch, resolve.SourceBuiltinFileMatch)
		}
		for _, lib := range libs {
			s.searchPackagePatterns(c, lib.Mappings.PackageMatch, resolve.SourceBuiltinPackageMatch)
		}
	}

	results := c.results
	sort.SliceStable(results, func(i, j int) bool {
		bi, bj := band(results[i].Score), band(results[j].Score)
		if bi != bj {
			return bi < bj
		}
		if results[i].Source != results[j].Source {
			return results[i].Source < results[j].Source
		}
		return strings.ToLower(results[i].Path) < strings.ToLower(results[j].Path)
	})
	if opts.MaxResults > 0 && len(results) > opts.MaxResults {
		results = results[:opts.MaxResults]
	}
	debug.Log("SEARCH", "%q: %d results\n", query, len(results))
	return results
}

// band groups exact text hits ahead of everything else
func band(score float64) int {
	if score >= ScoreExact {
		return 0
	}
	return 1
}

func (s *Searcher) searchExact(c *collector, m *mapping.OrderedMap, source resolve.Source, isDir bool) {
	m.Range(func(key, text string) bool {
		if strings.TrimSpace(text) == "" {
			return true
		}
		if score := c.m.score(text, key); score > 0 {
			c.add(Result{Path: key, Annotation: text, Source: source, IsDirectory: isDir, Score: score, Key: key})
		}
		return true
	})
}

func (s *Searcher) searchFilePatterns(c *collector, m *mapping.OrderedMap, source resolve.Source) {
	if s.index == nil {
		return
	}
	m.Range(func(p, text string) bool {
		score := c.m.score(text, p)
		if score == 0 || strings.TrimSpace(text) == "" {
			return true
		}
		for _, e := range s.index.Files(func(e pathindex.Entry) bool {
			return pattern.MatchesFile(e.Name(), p, e.Key)
		}) {
			c.add(Result{Path: e.Key, Annotation: text, Source: source, Score: score, Key: p})
		}
		return true
	})
}

func (s *Searcher) searchPackagePatterns(c *collector, m *mapping.OrderedMap, source resolve.Source) {
	if s.index == nil {
		return
	}
	m.Range(func(p, text string) bool {
		score := c.m.score(text, p)
		if score == 0 || strings.TrimSpace(text) == "" {
			return true
		}
		for _, e := range s.index.Dirs(func(e pathindex.Entry) bool {
			return pattern.MatchesPackage(e.Key, p)
		}) {
			c.add(Result{Path: e.Key, Annotation: text, Source: source, IsDirectory: true, Score: score, Key: p})
		}
		return true
	})
}

// searchLibraryFiles lists every project file carrying a library file name
func (s *Searcher) searchLibraryFiles(c *collector, m *mapping.OrderedMap) {
	if s.index == nil {
		return
	}
	m.Range(func(name, text string) bool {
		score := c.m.score(text, name)
		if score == 0 || strings.TrimSpace(text) == "" {
			return true
		}
		for _, e := range s.index.Files(func(e pathindex.Entry) bool { return e.Name() == name }) {
			c.add(Result{Path: e.Key, Annotation: text, Source: resolve.SourceBuiltinFile, Score: score, Key: name})
		}
		return true
	})
}
