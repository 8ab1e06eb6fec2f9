package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tderrors "github.com/standardbeagle/tdmaps/internal/errors"
)

func TestValidator_ValidConfig(t *testing.T) {
	cfg := Default("/tmp/project")
	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, 50, cfg.Live.SaveDebounceMs)
}

// TestValidator_Errors tests structural problems that cannot be clamped.
func TestValidator_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty root", func(c *Config) { c.Project.Root = "" }, "project"},
		{"absolute mapping dir", func(c *Config) { c.Mappings.Dir = "/etc/maps" }, "mappings"},
		{"escaping mapping dir", func(c *Config) { c.Mappings.Dir = "../maps" }, "mappings"},
		{"non json local file", func(c *Config) { c.Mappings.LocalFile = "local.xml" }, "mappings"},
		{"bad api base", func(c *Config) { c.Community.APIBase = "ftp://x" }, "community"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default("/tmp/project")
			tt.mutate(cfg)

			err := ValidateConfig(cfg)
			require.Error(t, err)

			var cfgErr *tderrors.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

// TestValidator_Clamps tests out of range values are replaced with defaults.
func TestValidator_Clamps(t *testing.T) {
	cfg := &Config{Project: Project{Root: "/tmp/project"}}
	cfg.Live.SaveDebounceMs = -5
	cfg.Search.FuzzyThreshold = 1.5
	cfg.Index.WatchDebounceMs = 0

	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, 50, cfg.Live.SaveDebounceMs)
	assert.Equal(t, 0.85, cfg.Search.FuzzyThreshold)
	assert.Equal(t, 200, cfg.Index.WatchDebounceMs)
	assert.Equal(t, 200, cfg.Search.MaxResults)
	assert.Equal(t, 50000, cfg.Index.MaxFileCount)
	assert.Equal(t, DefaultMappingDir, cfg.Mappings.Dir)
	assert.Equal(t, DefaultLocalFile, cfg.Mappings.LocalFile)
	assert.Equal(t, DefaultLegacyFile, cfg.Mappings.LegacyFile)
	assert.Equal(t, DefaultMirrors, cfg.Community.Mirrors)
	assert.Equal(t, 15, cfg.Community.TimeoutSec)
	assert.Equal(t, DefaultAPIBase, cfg.Community.APIBase)
	assert.Equal(t, DefaultOwner, cfg.Community.Owner)
	assert.Equal(t, DefaultRepo, cfg.Community.Repo)
	assert.Equal(t, DefaultBranch, cfg.Community.Branch)
}

func TestValidator_KeepsValidThreshold(t *testing.T) {
	cfg := Default("/tmp/project")
	cfg.Search.FuzzyThreshold = 1.0
	require.NoError(t, ValidateConfig(cfg))
	assert.Equal(t, 1.0, cfg.Search.FuzzyThreshold)
}
