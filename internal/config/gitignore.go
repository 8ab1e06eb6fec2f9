package config

import (
	"bufio"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// GitignoreParser handles parsing and matching .gitignore files
type GitignoreParser struct {
	patterns []GitignorePattern
}

type GitignorePattern struct {
	Pattern   string
	Negate    bool
	Directory bool
	Absolute  bool

	patternType PatternType
	prefix      string // Fast prefix matching for simple patterns
	suffix      string // Fast suffix matching for simple patterns
}

// PatternType represents the type of pattern for optimization
type PatternType int

const (
	PatternExact PatternType = iota
	PatternPrefix
	PatternSuffix
	PatternWildcard
)

// NewGitignoreParser creates a new gitignore parser
func NewGitignoreParser() *GitignoreParser {
	return &GitignoreParser{
		patterns: make([]GitignorePattern, 0),
	}
}

// LoadGitignore loads patterns from rootPath/.gitignore. A missing file is not an error.
func (gp *GitignoreParser) LoadGitignore(rootPath string) error {
	file, err := os.Open(filepath.Join(rootPath, ".gitignore"))
	if err != nil {
		return nil
	}
	defer file.Close()

	return gp.Parse(file)
}

// Parse reads gitignore lines from r
func (gp *GitignoreParser) Parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		gp.AddPattern(line)
	}
	return scanner.Err()
}

// AddPattern adds a single pattern line
func (gp *GitignoreParser) AddPattern(line string) {
	gp.patterns = append(gp.patterns, parseGitignorePattern(line))
}

// Len returns the number of loaded patterns
func (gp *GitignoreParser) Len() int {
	return len(gp.patterns)
}

func parseGitignorePattern(line string) GitignorePattern {
	p := GitignorePattern{}

	if strings.HasPrefix(line, "!") {
		p.Negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.Directory = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.Absolute = true
		line = line[1:]
	}
	p.Pattern = line

	switch {
	case !strings.ContainsAny(line, "*?["):
		p.patternType = PatternExact
	case strings.Count(line, "*") == 1 && !strings.ContainsAny(line, "?[") && strings.HasPrefix(line, "*") && !strings.Contains(line, "/"):
		p.patternType = PatternSuffix
		p.suffix = line[1:]
	case strings.Count(line, "*") == 1 && !strings.ContainsAny(line, "?[") && strings.HasSuffix(line, "*"):
		p.patternType = PatternPrefix
		p.prefix = line[:len(line)-1]
	default:
		p.patternType = PatternWildcard
	}
	return p
}

// ShouldIgnore checks if a slash-separated, root-relative path is ignored.
// Later patterns override earlier ones, so a negation can re-include a path.
func (gp *GitignoreParser) ShouldIgnore(relPath string, isDir bool) bool {
	relPath = filepath.ToSlash(relPath)

	ignored := false
	for _, p := range gp.patterns {
		if p.matches(relPath, isDir) {
			ignored = !p.Negate
		}
	}
	return ignored
}

func (p GitignorePattern) matches(relPath string, isDir bool) bool {
	if p.Directory && !isDir {
		// A file matches a directory pattern only through one of its parents
		dir := path.Dir(relPath)
		for dir != "." && dir != "/" {
			if p.matchesPath(dir) {
				return true
			}
			dir = path.Dir(dir)
		}
		return false
	}
	return p.matchesPath(relPath)
}

func (p GitignorePattern) matchesPath(relPath string) bool {
	if p.Absolute || strings.Contains(p.Pattern, "/") {
		return p.fastMatch(relPath)
	}
	// Relative pattern without a slash: match any trailing sub-path
	parts := strings.Split(relPath, "/")
	for i := range parts {
		if p.fastMatch(strings.Join(parts[i:], "/")) {
			return true
		}
	}
	return false
}

func (p GitignorePattern) fastMatch(candidate string) bool {
	switch p.patternType {
	case PatternExact:
		return p.Pattern == candidate
	case PatternPrefix:
		return strings.HasPrefix(candidate, p.prefix) && !strings.Contains(candidate[len(p.prefix):], "/")
	case PatternSuffix:
		return strings.HasSuffix(candidate, p.suffix) && !strings.Contains(candidate, "/")
	default:
		matched, _ := path.Match(p.Pattern, candidate)
		return matched
	}
}

// GetExclusionPatterns returns the non-negated patterns as doublestar globs
// over file keys. A pattern without a trailing slash may name a file or a
// directory, so it yields a glob for each. Negations are dropped; callers that
// need them use ShouldIgnore.
func (gp *GitignoreParser) GetExclusionPatterns() []string {
	var exclusions []string
	for _, p := range gp.patterns {
		if p.Negate {
			continue
		}
		glob := p.Pattern
		if !p.Absolute {
			glob = "**/" + glob
		}
		if !p.Directory {
			exclusions = append(exclusions, glob)
		}
		exclusions = append(exclusions, glob+"/**")
	}
	return exclusions
}
