package config

import (
	"os"
)

// Mapping document locations relative to the project root
const (
	DefaultMappingDir = ".td-maps"
	DefaultLocalFile  = "local-description.json"
	DefaultLegacyFile = "annotations.xml"
)

// Community library defaults
const (
	DefaultAPIBase = "https://api.github.com"
	DefaultOwner   = "JaysonX-Tech"
	DefaultRepo    = "tree-description-repository"
	DefaultBranch  = "main"
)

// DefaultMirrors are tried strictly in order when downloading raw content
var DefaultMirrors = []string{
	"https://raw.githubusercontent.com",
	"https://hub.gitmirror.com/raw.githubusercontent.com",
	"https://cdn.statically.io",
}

type Config struct {
	Version   int
	Project   Project
	Mappings  Mappings
	Live      Live
	Index     Index
	Search    Search
	Community Community
	Include   []string
	Exclude   []string
}

type Project struct {
	Root string
	Name string
}

// Mappings locates the mapping documents
type Mappings struct {
	Dir        string // Directory under the root holding *.json documents
	LocalFile  string // The distinguished local document inside Dir
	LegacyFile string // XML file at the root migrated once when Dir is unreadable
}

// Live controls the edit-time cache
type Live struct {
	SaveDebounceMs int  // Quiet period before a background document save
	Watch          bool // Watch mapping files for changes made outside the host
}

type Index struct {
	MaxFileCount     int
	FollowSymlinks   bool
	RespectGitignore bool // Process .gitignore files for additional exclusions
	WatchMode        bool // Keep the index current from file system events
	WatchDebounceMs  int  // Debounce time for file change events
}

type Search struct {
	MaxResults     int
	EnableFuzzy    bool
	FuzzyThreshold float64 // Jaro-Winkler similarity required for a fuzzy hit
	EnableStemming bool
}

// Community configures the remote mapping library
type Community struct {
	APIBase    string
	Owner      string
	Repo       string
	Branch     string
	TimeoutSec int
	Mirrors    []string
}

func Load(path string) (*Config, error) {
	return LoadWithRoot(path, "")
}

func LoadWithRoot(path string, rootDir string) (*Config, error) {
	searchDir := "."
	if rootDir != "" {
		searchDir = rootDir
	}

	// Step 1: Load global base config from ~/.tdmaps.kdl (if exists)
	homeDir, err := os.UserHomeDir()
	var baseConfig *Config
	if err == nil {
		if globalCfg, err := LoadKDL(homeDir); err == nil && globalCfg != nil {
			baseConfig = globalCfg
		}
	}

	// Step 2: Load project-specific config, an explicit path wins over the root
	var projectConfig *Config
	if path != "" {
		cfg, err := LoadKDLFile(path, searchDir)
		if err != nil {
			return nil, err
		}
		projectConfig = cfg
	} else if kdlCfg, err := LoadKDL(searchDir); err == nil && kdlCfg != nil {
		projectConfig = kdlCfg
	} else if err != nil {
		return nil, err
	}

	// Step 3: Merge configs (project overrides base, but preserve base exclusions)
	var cfg *Config
	switch {
	case baseConfig != nil && projectConfig != nil:
		cfg = mergeConfigs(baseConfig, projectConfig)
	case projectConfig != nil:
		cfg = projectConfig
	case baseConfig != nil:
		baseConfig.Project.Root = absOr(searchDir)
		cfg = baseConfig
	default:
		cfg = Default(absOr(searchDir))
	}

	cfg.EnrichExclusionsWithBuildArtifacts()
	return cfg, nil
}

// Default returns the configuration used when no KDL file exists
func Default(root string) *Config {
	return &Config{
		Version: 1,
		Project: Project{
			Root: root,
		},
		Mappings: Mappings{
			Dir:        DefaultMappingDir,
			LocalFile:  DefaultLocalFile,
			LegacyFile: DefaultLegacyFile,
		},
		Live: Live{
			SaveDebounceMs: 50,
			Watch:          true,
		},
		Index: Index{
			MaxFileCount:     50000,
			FollowSymlinks:   false,
			RespectGitignore: true,
			WatchMode:        true,
			WatchDebounceMs:  200,
		},
		Search: Search{
			MaxResults:     200,
			EnableFuzzy:    true,
			FuzzyThreshold: 0.85,
			EnableStemming: true,
		},
		Community: Community{
			APIBase:    DefaultAPIBase,
			Owner:      DefaultOwner,
			Repo:       DefaultRepo,
			Branch:     DefaultBranch,
			TimeoutSec: 15,
			Mirrors:    append([]string(nil), DefaultMirrors...),
		},
		Include: []string{},
		Exclude: getDefaultExclusions(),
	}
}

func absOr(dir string) string {
	if dir == "." || dir == "" {
		if cwd, err := os.Getwd(); err == nil {
			return cwd
		}
		return "."
	}
	return dir
}

// mergeConfigs merges a base config with a project config
// Project config takes precedence, but base exclusions are preserved
func mergeConfigs(base, project *Config) *Config {
	merged := *project

	if len(base.Exclude) > 0 {
		merged.Exclude = DeduplicatePatterns(append(append([]string{}, base.Exclude...), project.Exclude...))
	}

	// Inclusions: project overrides base completely if specified
	if len(project.Include) == 0 && len(base.Include) > 0 {
		merged.Include = base.Include
	}

	return &merged
}

// EnrichExclusionsWithBuildArtifacts detects build output directories from language configs
// and adds them to the exclusion list
func (c *Config) EnrichExclusionsWithBuildArtifacts() {
	if c.Project.Root == "" {
		return
	}

	detector := NewBuildArtifactDetector(c.Project.Root)
	detectedPatterns := detector.DetectOutputDirectories()

	if len(detectedPatterns) > 0 {
		c.Exclude = append(c.Exclude, detectedPatterns...)
		c.Exclude = DeduplicatePatterns(c.Exclude)
	}
}

func getDefaultExclusions() []string {
	return []string{
		// Version control
		"**/.git/**",
		"**/.svn/**",
		"**/.hg/**",

		// IDE metadata
		"**/.idea/**",
		"**/.vscode/**",
		"**/.vs/**",

		// Package managers & dependencies
		"**/node_modules/**",
		"**/vendor/**",
		"**/bower_components/**",
		"**/.gradle/**",
		"**/.m2/**",
		"**/venv/**",
		"**/.venv/**",
		"**/__pycache__/**",

		// Build artifacts & output
		"**/dist/**",
		"**/build/**",
		"**/out/**",
		"**/target/**",
		"**/bin/**",
		"**/obj/**",
		"**/*.class",
		"**/*.min.js",
		"**/*.min.css",

		// OS files
		"**/.DS_Store",
		"**/Thumbs.db",
		"**/desktop.ini",
	}
}
