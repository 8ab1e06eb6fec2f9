package pathindex

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/tdmaps/internal/config"
)

// Filter decides which project-relative keys enter the index
type Filter struct {
	include   []string
	exclude   []string
	gitignore *config.GitignoreParser
}

// NewFilter builds a filter from the configured globs. gitignore may be nil.
func NewFilter(include, exclude []string, gitignore *config.GitignoreParser) *Filter {
	return &Filter{
		include:   append([]string(nil), include...),
		exclude:   append([]string(nil), exclude...),
		gitignore: gitignore,
	}
}

// FilterFromConfig loads the root .gitignore when the configuration asks for it
func FilterFromConfig(cfg *config.Config) *Filter {
	var gi *config.GitignoreParser
	if cfg.Index.RespectGitignore {
		gi = config.NewGitignoreParser()
		_ = gi.LoadGitignore(cfg.Project.Root)
	}
	return NewFilter(cfg.Include, cfg.Exclude, gi)
}

// SkipDir reports whether the directory key and everything under it is excluded
func (f *Filter) SkipDir(key string) bool {
	if key == "" {
		return false
	}
	for _, pattern := range f.exclude {
		if matched, err := doublestar.Match(pattern, key); err == nil && matched {
			return true
		}
		// "**/target/**" also names the directory itself
		if trimmed := strings.TrimSuffix(pattern, "/**"); trimmed != pattern {
			if matched, err := doublestar.Match(trimmed, key); err == nil && matched {
				return true
			}
		}
	}
	return f.gitignore != nil && f.gitignore.ShouldIgnore(key, true)
}

// KeepFile reports whether the file key is indexed
func (f *Filter) KeepFile(key string) bool {
	for _, pattern := range f.exclude {
		if matched, err := doublestar.Match(pattern, key); err == nil && matched {
			return false
		}
	}
	if f.gitignore != nil && f.gitignore.ShouldIgnore(key, false) {
		return false
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pattern := range f.include {
		if matched, err := doublestar.Match(pattern, key); err == nil && matched {
			return true
		}
	}
	return false
}
