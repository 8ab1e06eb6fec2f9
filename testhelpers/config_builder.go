// Package testhelpers provides shared utilities for testing tdmaps
package testhelpers

import (
	"github.com/standardbeagle/tdmaps/internal/config"
)

// TestConfigBuilder provides a fluent API for building test configs with safe defaults.
// Watchers are off and nothing is read from the home directory.
// Usage:
//
//	cfg := testhelpers.NewTestConfigBuilder(root).
//		WithExclusions("vendor/**").
//		WithLiveWatch(true).
//		Build()
type TestConfigBuilder struct {
	projectRoot string
	exclusions  []string
	inclusions  []string
	liveWatch   bool
	indexWatch  bool
	mirrors     []string
	apiBase     string
}

// NewTestConfigBuilder creates a config builder with safe defaults for a project path
func NewTestConfigBuilder(projectRoot string) *TestConfigBuilder {
	return &TestConfigBuilder{
		projectRoot: projectRoot,
		exclusions: []string{
			"**/.git/**",
			"**/node_modules/**",
			"**/" + config.DefaultMappingDir + "/**",
		},
	}
}

// WithExclusions adds additional exclusion patterns
func (b *TestConfigBuilder) WithExclusions(patterns ...string) *TestConfigBuilder {
	b.exclusions = append(b.exclusions, patterns...)
	return b
}

// WithIncludePatterns replaces the include patterns
func (b *TestConfigBuilder) WithIncludePatterns(patterns ...string) *TestConfigBuilder {
	b.inclusions = patterns
	return b
}

// WithLiveWatch turns the mapping file watcher on or off
func (b *TestConfigBuilder) WithLiveWatch(enabled bool) *TestConfigBuilder {
	b.liveWatch = enabled
	return b
}

// WithIndexWatch turns the path index watcher on or off
func (b *TestConfigBuilder) WithIndexWatch(enabled bool) *TestConfigBuilder {
	b.indexWatch = enabled
	return b
}

// WithCommunity points the community client at a test server
func (b *TestConfigBuilder) WithCommunity(apiBase string, mirrors ...string) *TestConfigBuilder {
	b.apiBase = apiBase
	b.mirrors = mirrors
	return b
}

// Build creates the final test config with all settings
func (b *TestConfigBuilder) Build() *config.Config {
	cfg := config.Default(b.projectRoot)
	cfg.Project.Name = "test-project"
	cfg.Live.SaveDebounceMs = 10 // Fast debounce for tests
	cfg.Live.Watch = b.liveWatch
	cfg.Index.MaxFileCount = 1000
	cfg.Index.RespectGitignore = false
	cfg.Index.WatchMode = b.indexWatch
	cfg.Index.WatchDebounceMs = 10
	cfg.Search.MaxResults = 50
	if b.apiBase != "" {
		cfg.Community.APIBase = b.apiBase
		cfg.Community.Mirrors = b.mirrors
		cfg.Community.TimeoutSec = 5
	}
	cfg.Include = append([]string{}, b.inclusions...)
	cfg.Exclude = append([]string{}, b.exclusions...)
	return cfg
}
