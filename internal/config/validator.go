package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
)

// Validator validates configuration and sets smart defaults
type Validator struct{}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAndSetDefaults validates configuration and applies smart defaults.
// Out of range tuning values are clamped; structural problems are errors.
func (v *Validator) ValidateAndSetDefaults(cfg *Config) error {
	if err := v.validateProjectConfig(&cfg.Project); err != nil {
		return tderrors.NewConfigError("project", cfg.Project.Root, err)
	}

	if err := v.validateMappingsConfig(&cfg.Mappings); err != nil {
		return tderrors.NewConfigError("mappings", cfg.Mappings.Dir, err)
	}

	if err := v.validateCommunityConfig(&cfg.Community); err != nil {
		return tderrors.NewConfigError("community", cfg.Community.APIBase, err)
	}

	v.setSmartDefaults(cfg)
	return nil
}

func (v *Validator) validateProjectConfig(project *Project) error {
	if project.Root == "" {
		return errors.New("project root cannot be empty")
	}
	return nil
}

// validateMappingsConfig keeps the mapping directory inside the project root
func (v *Validator) validateMappingsConfig(m *Mappings) error {
	if filepath.IsAbs(m.Dir) {
		return fmt.Errorf("mapping directory must be relative to the project root, got %s", m.Dir)
	}
	if strings.HasPrefix(filepath.Clean(m.Dir), "..") {
		return fmt.Errorf("mapping directory escapes the project root: %s", m.Dir)
	}
	if m.LocalFile != "" && !strings.HasSuffix(strings.ToLower(m.LocalFile), ".json") {
		return fmt.Errorf("local mapping file must be a .json file, got %s", m.LocalFile)
	}
	return nil
}

func (v *Validator) validateCommunityConfig(c *Community) error {
	if c.APIBase != "" && !strings.HasPrefix(c.APIBase, "http://") && !strings.HasPrefix(c.APIBase, "https://") {
		return fmt.Errorf("api_base must be an http(s) URL, got %s", c.APIBase)
	}
	return nil
}

func (v *Validator) setSmartDefaults(cfg *Config) {
	if cfg.Mappings.Dir == "" {
		cfg.Mappings.Dir = DefaultMappingDir
	}
	if cfg.Mappings.LocalFile == "" {
		cfg.Mappings.LocalFile = DefaultLocalFile
	}
	if cfg.Mappings.LegacyFile == "" {
		cfg.Mappings.LegacyFile = DefaultLegacyFile
	}

	if cfg.Live.SaveDebounceMs <= 0 {
		cfg.Live.SaveDebounceMs = 50
	}

	if cfg.Index.MaxFileCount <= 0 {
		cfg.Index.MaxFileCount = 50000
	}
	if cfg.Index.WatchDebounceMs <= 0 {
		cfg.Index.WatchDebounceMs = 200
	}

	if cfg.Search.MaxResults <= 0 {
		cfg.Search.MaxResults = 200
	}
	if cfg.Search.FuzzyThreshold <= 0 || cfg.Search.FuzzyThreshold > 1 {
		cfg.Search.FuzzyThreshold = 0.85
	}

	if cfg.Community.APIBase == "" {
		cfg.Community.APIBase = DefaultAPIBase
	}
	if cfg.Community.Owner == "" {
		cfg.Community.Owner = DefaultOwner
	}
	if cfg.Community.Repo == "" {
		cfg.Community.Repo = DefaultRepo
	}
	if cfg.Community.Branch == "" {
		cfg.Community.Branch = DefaultBranch
	}
	if cfg.Community.TimeoutSec <= 0 {
		cfg.Community.TimeoutSec = 15
	}
	if len(cfg.Community.Mirrors) == 0 {
		cfg.Community.Mirrors = append([]string(nil), DefaultMirrors...)
	}
}

// ValidateConfig is a convenience function for quick validation
func ValidateConfig(cfg *Config) error {
	validator := NewValidator()
	return validator.ValidateAndSetDefaults(cfg)
}
